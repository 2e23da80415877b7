package session

import (
	"errors"
	"fmt"
)

// ErrBufferOverflow is returned by a reassembly pass when the retained
// pending bytes exceed the session's maximum message size. It is fatal to the
// session: a client streaming bytes that never decode is either broken or
// hostile.
var ErrBufferOverflow = errors.New("session: inbound buffer exceeds max message size")

// reassembler converts an arbitrarily-chunked inbound byte stream into an
// ordered sequence of decoded values. The inbound protocol carries no length
// prefix, so message boundaries are discovered by speculatively decoding from
// the front of the buffer and retrying once more bytes arrive.
//
// A reassembler is not safe for concurrent use; the owning session runs at
// most one pass at a time.
type reassembler struct {
	codec Codec
	max   int

	// pending holds bytes received but not yet decoded. nil means no partial
	// data is pending, which keeps repeated empty passes cheap.
	pending []byte
}

// feed appends chunk to any retained partial buffer and decodes as many
// complete values as the buffer now holds, in stream order.
//
// Any decode error is treated as "not enough bytes yet": the codec cannot
// reliably distinguish a truncated value from a malformed one, so the
// reassembler waits conservatively and lets the size guard catch streams that
// never become valid. The unconsumed tail is retained for the next pass; if
// that tail exceeds the configured maximum, feed returns ErrBufferOverflow.
func (r *reassembler) feed(chunk []byte) ([]any, error) {
	buf := chunk
	if r.pending != nil {
		buf = append(r.pending, chunk...)
	}

	var decoded []any
	off := 0
	for off < len(buf) {
		v, n, err := r.codec.DecodeValue(buf[off:])
		if err != nil || n <= 0 {
			break
		}
		decoded = append(decoded, v)
		off += n
	}

	if off >= len(buf) {
		r.pending = nil
	} else {
		tail := make([]byte, len(buf)-off)
		copy(tail, buf[off:])
		r.pending = tail
	}

	if len(r.pending) > r.max {
		return decoded, fmt.Errorf("%w: %d bytes pending, limit %d", ErrBufferOverflow, len(r.pending), r.max)
	}

	return decoded, nil
}

// pendingLen reports how many undecoded bytes are currently retained.
func (r *reassembler) pendingLen() int {
	return len(r.pending)
}
