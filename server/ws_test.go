package server

import (
	"encoding/binary"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-gameserver/codec"
	"github.com/cyberinferno/go-gameserver/logger"
	"github.com/cyberinferno/go-gameserver/session"
)

func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()

	hs := httptest.NewServer(srv.WSHandler(nil))
	t.Cleanup(hs.Close)

	url := "ws" + strings.TrimPrefix(hs.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	return ws
}

func readWSFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), session.FrameHeaderSize)

	length := binary.BigEndian.Uint32(data[:session.FrameHeaderSize])
	require.Equal(t, len(data)-session.FrameHeaderSize, int(length))

	v, _, err := codec.Binary{}.DecodeValue(data[session.FrameHeaderSize:])
	require.NoError(t, err)

	m, ok := v.(map[string]any)
	require.True(t, ok)
	return m
}

func TestWSHandler_EchoRoundTrip(t *testing.T) {
	srv := New("test-ws", "127.0.0.1:0", logger.Nop(),
		session.WithCodec(codec.Binary{}),
		session.WithHandler(echoRouter()),
	)
	ws := dialWS(t, srv)

	payload, err := codec.Binary{}.Encode(map[string]any{
		session.FieldType: "echo",
		session.FieldID:   "ws-1",
		"payload":         "over websocket",
	})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, payload))

	reply := readWSFrame(t, ws)
	assert.Equal(t, "ws-1", reply[session.FieldMsgID])
	assert.Equal(t, true, reply[session.FieldSuccess])
	assert.Equal(t, "over websocket", reply["payload"])
}

func TestWSHandler_MessageSplitAcrossWSMessages(t *testing.T) {
	// A value split across two binary websocket messages is the same byte
	// stream to the session; the reassembler joins it.
	srv := New("test-ws", "127.0.0.1:0", logger.Nop(),
		session.WithCodec(codec.Binary{}),
		session.WithHandler(echoRouter()),
	)
	ws := dialWS(t, srv)

	payload, err := codec.Binary{}.Encode(map[string]any{
		session.FieldType: "echo",
		session.FieldID:   "ws-2",
		"payload":         "split",
	})
	require.NoError(t, err)

	cut := len(payload) / 2
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, payload[:cut]))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, payload[cut:]))

	reply := readWSFrame(t, ws)
	assert.Equal(t, "ws-2", reply[session.FieldMsgID])
	assert.Equal(t, "split", reply["payload"])
}

func TestWSHandler_SessionsJoinRegistry(t *testing.T) {
	srv := New("test-ws", "127.0.0.1:0", logger.Nop(),
		session.WithCodec(codec.Binary{}),
		session.WithHandler(echoRouter()),
	)
	ws := dialWS(t, srv)

	assert.Eventually(t, func() bool {
		return srv.Registry().Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool {
		return srv.Registry().Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
