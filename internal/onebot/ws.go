// Package onebot implements the client side of the OneBot v11
// WebSocket protocol: one persistent duplex connection carrying JSON
// frames in both directions. Outbound frames are actions; inbound
// frames are either action responses (correlated by an echo token) or
// events.
package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"
)

// Conn wraps coder/websocket with a thread-safe JSON write method.
type Conn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Dial connects to a OneBot gateway WebSocket endpoint.
func Dial(ctx context.Context, wsURL string) (*Conn, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("onebot: ws dial: %w", err)
	}
	conn.SetReadLimit(1 << 20) // forward payloads can be large
	return &Conn{conn: conn}, nil
}

// Send marshals frame to JSON and writes it as one text message.
// Thread-safe.
func (c *Conn) Send(ctx context.Context, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("onebot: marshal frame: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("onebot: ws write: %w", err)
	}
	return nil
}

// Read returns the next raw inbound frame. Blocks until a frame
// arrives, the context is cancelled, or the connection is closed.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

// Close sends a normal-closure frame and shuts down the connection.
func (c *Conn) Close() {
	c.conn.Close(websocket.StatusNormalClosure, "")
}

// closeReason extracts a printable close reason from a read error.
func closeReason(err error) string {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return fmt.Sprintf("code=%d reason=%q", ce.Code, ce.Reason)
	}
	return err.Error()
}
