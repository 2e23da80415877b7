// Package client implements the client side of the game wire protocol: it
// writes headerless concatenated values to the server and reads back
// length-prefixed frames, decoding each payload and delivering it to a
// registered handler. The asymmetry mirrors the server exactly: the length
// prefix exists only on server-to-client traffic.
package client

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/go-gameserver/session"
)

// maxFrameSize caps a single server frame; a larger announced length means a
// corrupt or incompatible stream.
const maxFrameSize = 16 * 1024 * 1024

// MessageHandler is called for each decoded server message, in arrival
// order. Handlers run on the client's read goroutine and should not block.
type MessageHandler func(v any)

// ErrorHandler is called when the read loop stops on an error.
type ErrorHandler func(err error)

// Client is a connection to a game server. Register handlers, then call
// Start to begin reading. Send is safe for concurrent use.
type Client struct {
	conn  net.Conn
	codec session.Codec

	onMessage MessageHandler
	onError   ErrorHandler

	writeMu sync.Mutex
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// Dial connects to a game server.
//
// Parameters:
//   - addr: The "host:port" of the server
//   - codec: The codec shared with the server
//   - timeout: Dial timeout; 0 means no timeout
//
// Returns:
//   - The connected client; call OnMessage then Start to begin reading
func Dial(addr string, codec session.Codec, timeout time.Duration) (*Client, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return NewClient(conn, codec), nil
}

// NewClient wraps an already-established connection, e.g. one produced by a
// custom transport. Ownership of conn transfers to the client.
func NewClient(conn net.Conn, codec session.Codec) *Client {
	return &Client{
		conn:  conn,
		codec: codec,
	}
}

// OnMessage registers the handler for decoded server messages. Repeated
// calls replace the previous handler. Must be called before Start.
func (c *Client) OnMessage(fn MessageHandler) {
	c.onMessage = fn
}

// OnError registers the handler invoked when the read loop stops on an
// error. Must be called before Start.
func (c *Client) OnError(fn ErrorHandler) {
	c.onError = fn
}

// Start launches the frame read loop in a goroutine.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.readLoop()
}

// Send encodes v and writes its raw bytes to the server. No length prefix is
// added; the server discovers boundaries by decoding.
//
// Parameters:
//   - v: The value to send; must be representable by the codec
//
// Returns:
//   - An error if the client is closed, encoding fails, or the write fails
func (c *Client) Send(v any) error {
	if c.closed.Load() {
		return fmt.Errorf("client is closed")
	}

	payload, err := c.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.conn.Write(payload); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	return nil
}

// Close shuts the connection down and waits for the read loop to stop. Safe
// to call multiple times.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	err := c.conn.Close()
	c.wg.Wait()
	return err
}

// readLoop reads one length-prefixed frame at a time and hands the decoded
// payload to the message handler.
func (c *Client) readLoop() {
	defer c.wg.Done()

	header := make([]byte, session.FrameHeaderSize)
	for {
		if _, err := io.ReadFull(c.conn, header); err != nil {
			c.stop(err)
			return
		}

		length := binary.BigEndian.Uint32(header)
		if length > maxFrameSize {
			c.stop(fmt.Errorf("frame length %d exceeds limit", length))
			return
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			c.stop(err)
			return
		}

		v, _, err := c.codec.DecodeValue(payload)
		if err != nil {
			c.stop(fmt.Errorf("decode frame payload: %w", err))
			return
		}

		if c.onMessage != nil {
			c.onMessage(v)
		}
	}
}

// stop reports a read-loop error unless the client was closed deliberately.
func (c *Client) stop(err error) {
	if c.closed.Load() {
		return
	}

	if c.onError != nil {
		c.onError(err)
	}
}
