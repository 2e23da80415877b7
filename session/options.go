package session

import (
	"errors"
	"time"

	"github.com/cyberinferno/go-gameserver/logger"
)

// Default configuration values.
const (
	// defaultMaxMessageSize is the default cap on unparsed buffered inbound bytes (1MB).
	defaultMaxMessageSize = 1024 * 1024
	// defaultReadBufferSize is the default size of the transport read buffer.
	defaultReadBufferSize = 4096
)

// Errors returned when a session is constructed with missing required options.
var (
	// ErrNoCodec is returned by New when no codec is provided.
	ErrNoCodec = errors.New("session: no codec configured")
	// ErrNoHandler is returned by New when no request handler is provided.
	ErrNoHandler = errors.New("session: no request handler configured")
)

// CloseListener is notified exactly once when a session has fully closed.
// hadError is true when the session was torn down by a transport or decode
// fault rather than a clean disconnect.
type CloseListener func(s *Session, hadError bool)

// options holds the configuration for a session.
type options struct {
	codec   Codec
	handler Handler
	logger  logger.Logger

	maxMessageSize int
	readBufferSize int
	idleTimeout    time.Duration

	onClose CloseListener
}

// Option is a function that configures session options.
type Option func(*options)

// WithCodec sets the binary object codec used to decode inbound values and
// encode outbound messages. Required.
func WithCodec(c Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithHandler sets the request handler invoked for each decoded message. Required.
func WithHandler(h Handler) Option {
	return func(o *options) {
		o.handler = h
	}
}

// WithLogger sets the logger. If not set, log output is discarded.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMaxMessageSize sets the hard cap on unparsed buffered inbound bytes.
// A client whose pending bytes exceed this limit after a reassembly pass is
// disconnected.
func WithMaxMessageSize(size int) Option {
	return func(o *options) {
		o.maxMessageSize = size
	}
}

// WithReadBufferSize sets the size of the buffer used for transport reads.
func WithReadBufferSize(size int) Option {
	return func(o *options) {
		o.readBufferSize = size
	}
}

// WithIdleTimeout sets how long a read may sit idle before the idle event is
// logged. The session is not terminated on idle; 0 disables the timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = d
	}
}

// WithCloseListener sets the listener notified when the session closes.
func WithCloseListener(fn CloseListener) Option {
	return func(o *options) {
		o.onClose = fn
	}
}

// checkOptions validates and sets default values for session options.
func checkOptions(opts *options) error {
	if opts.codec == nil {
		return ErrNoCodec
	}

	if opts.handler == nil {
		return ErrNoHandler
	}

	if opts.logger == nil {
		opts.logger = logger.Nop()
	}

	if opts.maxMessageSize <= 0 {
		opts.maxMessageSize = defaultMaxMessageSize
	}

	if opts.readBufferSize <= 0 {
		opts.readBufferSize = defaultReadBufferSize
	}

	return nil
}
