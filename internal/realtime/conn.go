package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the minimal surface the session needs from a bidirectional stream.
// Production uses gorilla websocket; tests substitute an in-memory fake.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	// Close tears the stream down. normal distinguishes deliberate shutdown
	// (normal closure code on the wire) from error-path teardown.
	Close(normal bool) error
}

// Dialer establishes one physical connection attempt.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

const wsWriteTimeout = 10 * time.Second

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteJSON(v any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close(normal bool) error {
	if normal {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	}
	return c.conn.Close()
}

// WSDialer dials gorilla websocket connections.
type WSDialer struct {
	HandshakeTimeout time.Duration
}

func (d WSDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}
