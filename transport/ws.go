package transport

import (
	"context"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const wsWriteTimeout = 10 * time.Second

// WSConn adapts a *websocket.Conn to the Conn interface. Writes are
// serialized with a mutex since nhooyr.io/websocket forbids concurrent
// writers on the same connection, while the pipeline and any
// connection-owned background goroutine may both emit.
type WSConn struct {
	conn       *websocket.Conn
	remoteAddr string

	mu sync.Mutex
}

// NewWSConn wraps conn. remoteAddr is captured separately since
// nhooyr.io/websocket's Conn exposes no remote-address accessor of its
// own; callers pass the address observed at accept time (*http.Request's
// RemoteAddr).
func NewWSConn(conn *websocket.Conn, remoteAddr string) *WSConn {
	return &WSConn{conn: conn, remoteAddr: remoteAddr}
}

// Send implements Conn.
func (c *WSConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, frame)
}

// RemoteAddr implements Conn.
func (c *WSConn) RemoteAddr() string { return c.remoteAddr }

// ReadMessage blocks for the next message from the client and returns
// its payload, whatever its message type.
func (c *WSConn) ReadMessage(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

// Close closes the underlying connection with a normal-closure status.
func (c *WSConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "connection closed")
}
