package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cyberinferno/go-gameserver/logger"
)

// Well-known message fields. Every client request carries FieldType; requests
// that expect a reply also carry FieldID, a client-chosen correlation id that
// is echoed back so the client can match the response.
const (
	FieldType    = "type"
	FieldID      = "id"
	FieldMsgID   = "msg_id"
	FieldSuccess = "success"
	FieldMsg     = "msg"
)

// maxFaultText caps the rendered length of a handler fault so a pathological
// error value cannot blow up the log or the error reply.
const maxFaultText = 512

// Request is the isolated context for one dispatched message. It captures
// the message identity and the session state at dispatch time.
type Request struct {
	// Session is the session the message arrived on; use it to send replies.
	Session *Session
	// Actor is the actor associated with the session when the message was
	// dispatched, or nil if none was bound yet.
	Actor Actor
	// Type is the message's type discriminator; empty if the message had none.
	Type string
	// ID is the correlation id, or "" when the request does not expect a reply.
	ID string
	// Body is the full decoded message.
	Body map[string]any
}

// Handler processes one decoded request message. A successful return sends no
// implicit reply; the handler is responsible for any response via
// Request.Session.Send. An error return, or a panic, triggers the session's
// per-message fault path.
//
// Consecutive messages of one session are handled sequentially by the
// session's worker, but nothing stops distinct sessions from invoking the
// same Handler concurrently; implementations must be safe for that.
type Handler interface {
	Handle(req *Request) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(req *Request) error

// Handle implements Handler.
func (f HandlerFunc) Handle(req *Request) error {
	return f(req)
}

// ErrUnknownType is wrapped into the error a Router returns for a message
// type with no registered handler.
var ErrUnknownType = errors.New("unknown message type")

// Router dispatches requests to handlers registered per message type. It is
// the usual Handler given to sessions. Registration is typically done once at
// startup, but the Router is safe for concurrent use throughout.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register installs fn as the handler for msgType, replacing any previous one.
func (r *Router) Register(msgType string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[msgType] = fn
}

// Handle implements Handler by routing on the request's type field.
func (r *Router) Handle(req *Request) error {
	r.mu.RLock()
	fn, ok := r.handlers[req.Type]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
	}

	return fn(req)
}

// dispatch executes the handler for one decoded value inside the per-message
// isolation scope. A fault here, including a panic, is contained to this
// message: the session stays open and later messages are unaffected.
func (s *Session) dispatch(v any) {
	req, ok := s.requestFrom(v)
	if !ok {
		s.log.Warn("discarding non-request value", logger.Field{Key: "value_type", Value: fmt.Sprintf("%T", v)})
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.failDispatch(normalizePanic(r), req)
		}
	}()

	if err := s.opts.handler.Handle(req); err != nil {
		s.failDispatch(err, req)
	}
}

// requestFrom builds the request context for one decoded value. Only mappings
// can be requests; anything else has no type or correlation id to act on.
func (s *Session) requestFrom(v any) (*Request, bool) {
	body, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}

	msgType, _ := body[FieldType].(string)
	id, _ := body[FieldID].(string)

	return &Request{
		Session: s,
		Actor:   s.Actor(),
		Type:    msgType,
		ID:      id,
		Body:    body,
	}, true
}

// failDispatch is the recoverable error path for one message. The fault is
// logged with the session identity and, when the client can be addressed (an
// actor is bound and the request carried a correlation id), reported back as
// a structured failure reply. A failure while sending that reply is logged
// and swallowed; it never escalates.
func (s *Session) failDispatch(err error, req *Request) {
	s.log.Error("handler failed",
		logger.Field{Key: "msg_type", Value: req.Type},
		logger.Field{Key: "msg_id", Value: req.ID},
		logger.Field{Key: "session", Value: s.String()},
		logger.Field{Key: "error", Value: err.Error()},
	)

	if req.Actor == nil || req.ID == "" {
		return
	}

	reply := map[string]any{
		FieldMsgID:   req.ID,
		FieldType:    req.Type,
		FieldSuccess: false,
		FieldMsg:     err.Error(),
	}

	if serr := s.Send(reply); serr != nil {
		s.log.Error("error reply not sent",
			logger.Field{Key: "msg_id", Value: req.ID},
			logger.Field{Key: "error", Value: serr.Error()},
		)
	}
}

// normalizePanic converts a recovered panic value into a plain error with a
// bounded message.
func normalizePanic(r any) error {
	msg := fmt.Sprintf("handler panic: %v", r)
	if len(msg) > maxFaultText {
		msg = msg[:maxFaultText]
	}

	return errors.New(msg)
}
