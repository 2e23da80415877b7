// Package server accepts client connections and runs each one as a session.
// It owns the TCP listener, assigns session ids, keeps the registry of live
// sessions current, and can additionally serve the same sessions over
// websocket transports.
package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/cyberinferno/go-gameserver/logger"
	"github.com/cyberinferno/go-gameserver/session"
)

// CloseListener is notified after a session has closed and been removed from
// the registry.
type CloseListener func(s *session.Session, hadError bool)

// Server is a TCP game server front end. Each accepted connection becomes one
// session constructed with the configured session options; sessions are
// stored in the registry until they close. The accept loop runs in a
// goroutine and the server supports graceful stop.
type Server struct {
	name        string
	addr        string
	log         logger.Logger
	sessionOpts []session.Option
	onClose     CloseListener

	listener net.Listener
	registry *Registry
	running  atomic.Bool
	wg       sync.WaitGroup
}

// New creates a server. The given session options are applied to every
// session the server constructs; do not pass session.WithCloseListener or
// session.WithLogger, the server wires both itself (use OnSessionClose for
// close notifications).
//
// Parameters:
//   - name: Server name used in logs
//   - addr: TCP listen address (e.g. ":9000"); may use port 0 in tests
//   - log: Logger for the server and all its sessions
//   - sessionOpts: Options applied to each session (codec, handler, limits)
//
// Returns:
//   - The server, ready to Start
func New(name, addr string, log logger.Logger, sessionOpts ...session.Option) *Server {
	return &Server{
		name:        name,
		addr:        addr,
		log:         log.With(logger.Field{Key: "server", Value: name}),
		sessionOpts: sessionOpts,
		registry:    NewRegistry(),
	}
}

// OnSessionClose sets the listener notified when any of the server's sessions
// closes. Must be called before Start.
func (s *Server) OnSessionClose(fn CloseListener) {
	s.onClose = fn
}

// Registry returns the server's live-session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Addr returns the listener's address. Valid only after Start.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start binds the listen address and begins accepting connections in a
// goroutine.
//
// Returns:
//   - An error if the server is already running or if listening fails
func (s *Server) Start() error {
	if s.running.Load() {
		s.log.Error("server already running")
		return fmt.Errorf("server %s already running", s.name)
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.log.Error("server failed to start", logger.Field{Key: "error", Value: err.Error()})
		return fmt.Errorf("server %s failed to start: %w", s.name, err)
	}

	s.listener = ln
	s.running.Store(true)

	s.log.Info("server started", logger.Field{Key: "addr", Value: ln.Addr().String()})
	go s.acceptLoop()

	return nil
}

// Stop stops accepting connections, closes all live sessions, and waits for
// them to finish. Safe to call when the server is not running.
func (s *Server) Stop() {
	if !s.running.Swap(false) {
		s.log.Info("server not running")
		return
	}

	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.registry.Each(func(sess *session.Session) bool {
		_ = sess.Close()
		return true
	})

	s.wg.Wait()
	s.log.Info("server stopped")
}

// acceptLoop accepts connections until the server stops. Each connection gets
// a fresh uuid session id and runs in its own goroutine.
func (s *Server) acceptLoop() {
	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}

			s.log.Error("accept error", logger.Field{Key: "error", Value: err.Error()})
			continue
		}

		s.startSession(conn)
	}
}

// startSession wraps conn in a session and runs it. Shared by the TCP accept
// loop and the websocket handler.
func (s *Server) startSession(conn net.Conn) {
	opts := make([]session.Option, 0, len(s.sessionOpts)+2)
	opts = append(opts, session.WithLogger(s.log))
	opts = append(opts, s.sessionOpts...)
	opts = append(opts, session.WithCloseListener(s.sessionClosed))

	sess, err := session.New(uuid.NewString(), conn, opts...)
	if err != nil {
		s.log.Error("session setup failed", logger.Field{Key: "error", Value: err.Error()})
		_ = conn.Close()
		return
	}

	s.registry.Add(sess)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.Handle()
	}()
}

func (s *Server) sessionClosed(sess *session.Session, hadError bool) {
	s.registry.Remove(sess)

	if s.onClose != nil {
		s.onClose(sess, hadError)
	}
}
