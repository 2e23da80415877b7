package session

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/cyberinferno/go-gameserver/logger"
)

// Dedup is handler middleware that suppresses duplicate requests: a request
// whose correlation id was already seen on the same session within the TTL is
// dropped without reaching the wrapped handler. Clients that retry on their
// own request timeout can then do so without running a handler twice.
//
// Requests without a correlation id are never suppressed. Dedup is opt-in;
// the core makes no at-most-once promise beyond what the reassembler gives.
type Dedup struct {
	next Handler
	seen *cache.Cache
}

// NewDedup wraps next with duplicate-request suppression. Seen correlation
// ids expire after ttl.
//
// Parameters:
//   - next: The handler to protect
//   - ttl: How long a correlation id stays suppressed
//
// Returns:
//   - The wrapping handler
func NewDedup(next Handler, ttl time.Duration) *Dedup {
	return &Dedup{
		next: next,
		seen: cache.New(ttl, 2*ttl),
	}
}

// Handle implements Handler.
func (d *Dedup) Handle(req *Request) error {
	if req.ID == "" {
		return d.next.Handle(req)
	}

	key := req.Session.ID() + "/" + req.ID
	if err := d.seen.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
		req.Session.log.Debug("duplicate request suppressed",
			logger.Field{Key: "msg_type", Value: req.Type},
			logger.Field{Key: "msg_id", Value: req.ID},
		)
		return nil
	}

	return d.next.Handle(req)
}
