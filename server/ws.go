package server

import (
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cyberinferno/go-gameserver/logger"
)

// CheckOriginFunc validates the origin of a websocket upgrade request.
type CheckOriginFunc func(r *http.Request) bool

// WSHandler returns an http.Handler that upgrades requests to websocket
// connections and runs each one as a regular session on this server. Binary
// websocket messages from the client are fed to the session as chunks of the
// same headerless inbound stream a TCP client would send; each outbound frame
// is delivered as one binary message.
//
// Parameters:
//   - checkOrigin: Origin validation; nil allows all origins
//
// Returns:
//   - A handler to mount on an http mux or server
func (s *Server) WSHandler(checkOrigin CheckOriginFunc) http.Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("websocket upgrade failed",
				logger.Field{Key: "remote_addr", Value: r.RemoteAddr},
				logger.Field{Key: "error", Value: err.Error()},
			)
			return
		}

		s.startSession(&wsConn{ws: ws})
	})
}

// wsConn adapts a websocket connection to the net.Conn byte stream the
// session core consumes. Reads drain binary messages in arrival order;
// non-binary messages are skipped.
type wsConn struct {
	ws     *websocket.Conn
	reader io.Reader
}

// Read implements net.Conn.
func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			mt, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}

		return n, err
	}
}

// Write implements net.Conn. Each write becomes one binary message; the
// session already serializes writes, so no extra locking is needed here.
func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}

	return len(p), nil
}

// Close implements net.Conn.
func (c *wsConn) Close() error {
	return c.ws.Close()
}

// LocalAddr implements net.Conn.
func (c *wsConn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

// RemoteAddr implements net.Conn.
func (c *wsConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

// SetDeadline implements net.Conn.
func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}

	return c.ws.SetWriteDeadline(t)
}

// SetReadDeadline implements net.Conn.
func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

// SetWriteDeadline implements net.Conn.
func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}
