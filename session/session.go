// Package session implements the per-connection core of the game server: it
// owns one transport connection, reassembles the headerless inbound byte
// stream into decoded messages, dispatches each message to the application's
// request handler inside its own fault-isolation scope, and frames outbound
// replies with a length prefix.
//
// Two independent isolation scopes protect the process. Transport and decode
// faults are fatal to the session and force the connection closed. A fault in
// handling one message is contained to that message: it is logged, reported
// to the client when it can be addressed, and the connection stays open for
// the messages that follow.
package session

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-gameserver/logger"
)

// Codec is the binary object codec capability the session layer depends on.
// Implementations must be safe for concurrent use.
type Codec interface {
	// Encode serializes one value, failing if the value is not representable
	// (e.g. it contains a reference cycle).
	Encode(v any) ([]byte, error)

	// DecodeValue decodes a single value from the front of buf and reports how
	// many bytes it consumed. Any error means buf does not start with a
	// complete value.
	DecodeValue(buf []byte) (any, int, error)
}

// Actor is the authenticated application entity associated with a session
// after login. The session holds a plain, non-owning reference: it never
// creates or destroys the actor and the actor may outlive the session.
type Actor interface {
	// ActorID returns the actor's stable identifier, used in logs and for
	// addressing error replies.
	ActorID() string
}

// Errors returned by session operations.
var (
	// ErrSessionClosed is returned when operating on a closed session.
	ErrSessionClosed = errors.New("session: closed")
	// ErrActorBound is returned by BindActor when an actor is already associated.
	ErrActorBound = errors.New("session: actor already bound")
)

// Session coordinates transport I/O, message reassembly, and dispatch for one
// client connection. Create it with New and run it with Handle; the server
// typically runs Handle in a goroutine per accepted connection.
type Session struct {
	id        string
	conn      net.Conn
	createdAt time.Time
	opts      options

	log   logger.Logger
	queue *taskQueue
	reasm *reassembler

	// mu guards actor and the write path. The inbound state (reassembler) is
	// only ever touched from the task worker and needs no locking.
	mu    sync.Mutex
	actor Actor

	closed   atomic.Bool
	hadError atomic.Bool
	done     sync.Once
}

// New creates a session for an accepted transport connection.
//
// When the connection is a TCP connection, Nagle coalescing is disabled so
// replies flush promptly. The connection is owned exclusively by the session
// from this point and will be closed exactly once.
//
// Parameters:
//   - id: Opaque identifier, unique among live sessions, assigned by the caller
//   - conn: The accepted connection; ownership transfers to the session
//   - opt: Configuration; WithCodec and WithHandler are required
//
// Returns:
//   - The new session, or an error if required options are missing
func New(id string, conn net.Conn, opt ...Option) (*Session, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	s := &Session{
		id:        id,
		conn:      conn,
		createdAt: time.Now(),
		opts:      opts,
		queue:     newTaskQueue(),
		reasm:     &reassembler{codec: opts.codec, max: opts.maxMessageSize},
	}
	s.log = opts.logger.With(
		logger.Field{Key: "session_id", Value: id},
		logger.Field{Key: "remote_addr", Value: conn.RemoteAddr().String()},
	)

	s.log.Info("session created")
	return s, nil
}

// ID returns the session's identifier.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns the time the session was constructed.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// RemoteAddr returns the remote address of the underlying connection.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Actor returns the associated actor, or nil if none has been bound.
func (s *Session) Actor() Actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actor
}

// BindActor associates an authenticated actor with the session. The
// association can be made at most once and is never cleared; the session does
// not own the actor's lifetime.
//
// Returns:
//   - ErrActorBound if an actor is already associated
func (s *Session) BindActor(a Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.actor != nil {
		return ErrActorBound
	}

	s.actor = a
	s.log.Info("actor bound", logger.Field{Key: "actor_id", Value: a.ActorID()})
	return nil
}

// String produces the stable label used for this session in logs: the
// session id plus, once bound, the associated actor's id.
func (s *Session) String() string {
	if a := s.Actor(); a != nil {
		return fmt.Sprintf("session %s [actor %s]", s.id, a.ActorID())
	}

	return fmt.Sprintf("session %s", s.id)
}

// Handle runs the session until the connection closes: it starts the task
// worker that executes reassembly passes and dispatches, and the read loop
// that feeds it. It blocks until both have stopped and then notifies the
// close listener exactly once.
func (s *Session) Handle() {
	var group errgroup.Group

	group.Go(func() error {
		s.queue.run()
		return nil
	})
	group.Go(s.readLoop)

	_ = group.Wait()
	s.finish()
}

// Close tears the session down without an error, as for an administrative
// disconnect. Safe to call multiple times and from any goroutine.
//
// Returns:
//   - ErrSessionClosed if the session was already closed
func (s *Session) Close() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	s.destroy(nil)
	return nil
}

// Send encodes message with the session's codec and writes it to the
// connection as a single length-prefixed frame. Frames are written in call
// order. Encoding failures surface to the caller; the session stays open.
//
// Parameters:
//   - message: The value to send; must be representable by the codec
//
// Returns:
//   - An error if the session is closed, encoding fails, or the write fails
func (s *Session) Send(message any) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	frame, err := encodeFrame(s.opts.codec, message)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// readLoop pulls raw chunks off the transport and schedules one reassembly
// pass per chunk. The pass is deferred onto the task queue rather than run
// inline so that a fault inside reassembly is caught at the task boundary
// instead of escaping into the read path.
func (s *Session) readLoop() error {
	buf := make([]byte, s.opts.readBufferSize)
	for {
		if s.closed.Load() {
			return nil
		}

		if s.opts.idleTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.idleTimeout))
		}

		n, err := s.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.queue.push(func() {
				s.reassemble(chunk)
			})
		}

		if err == nil {
			continue
		}

		var nerr net.Error
		switch {
		case errors.As(err, &nerr) && nerr.Timeout():
			// Idle is observed, not acted on: teardown is the transport's call.
			s.log.Debug("session idle", logger.Field{Key: "idle_timeout", Value: s.opts.idleTimeout.String()})
		case errors.Is(err, io.EOF):
			s.log.Debug("connection ended by peer")
			s.destroy(nil)
			return nil
		case s.closed.Load():
			return nil
		default:
			s.destroy(fmt.Errorf("transport read: %w", err))
			return nil
		}
	}
}

// reassemble runs one reassembly pass inside the transport/decode isolation
// scope. Any fault escaping the pass, including a panic, is unrecoverable for
// the connection and forces teardown.
func (s *Session) reassemble(chunk []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.destroy(fmt.Errorf("reassembly fault: %v", r))
		}
	}()

	decoded, err := s.reasm.feed(chunk)
	for _, v := range decoded {
		v := v
		s.queue.push(func() {
			s.dispatch(v)
		})
	}

	if err != nil {
		s.destroy(err)
	}
}

// destroy force-closes the transport and stops all further processing. Tasks
// not yet started are discarded; no events are processed after destruction.
// Safe to call multiple times.
func (s *Session) destroy(err error) {
	if s.closed.Swap(true) {
		return
	}

	if err != nil {
		s.hadError.Store(true)
		s.log.Error("session destroyed", logger.Field{Key: "error", Value: err.Error()})
	}

	s.queue.close()
	_ = s.conn.Close()
}

// finish emits the close notification. Runs exactly once, after the transport
// has fully closed and the worker has stopped.
func (s *Session) finish() {
	s.done.Do(func() {
		hadError := s.hadError.Load()
		s.log.Info("session closed",
			logger.Field{Key: "had_error", Value: hadError},
			logger.Field{Key: "uptime", Value: time.Since(s.createdAt).String()},
		)

		if s.opts.onClose != nil {
			s.opts.onClose(s, hadError)
		}
	})
}
