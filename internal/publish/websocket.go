package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message is the envelope written to the WebSocket.
type Message struct {
	Type    string `json:"type"` // "log" or "status"
	Payload any    `json:"payload"`
}

// WebSocket keeps one connection to the backend and redials after a
// failed write.
type WebSocket struct {
	url    string
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocket returns a publisher for a ws:// or wss:// URL. It connects
// on first use.
func NewWebSocket(url string) *WebSocket {
	return &WebSocket{url: url, dialer: websocket.DefaultDialer}
}

func (w *WebSocket) PublishLog(ctx context.Context, entry LogEntry) error {
	return w.write(ctx, Message{Type: "log", Payload: entry})
}

func (w *WebSocket) PublishStatus(ctx context.Context, update StatusUpdate) error {
	return w.write(ctx, Message{Type: "status", Payload: update})
}

// Close sends a close frame and drops the connection.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := w.conn.Close()
	w.conn = nil
	return err
}

func (w *WebSocket) write(ctx context.Context, msg Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
		if err != nil {
			return fmt.Errorf("dial %s: %w", w.url, err)
		}
		w.conn = conn
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	_ = w.conn.SetWriteDeadline(deadline)

	if err := w.conn.WriteJSON(msg); err != nil {
		_ = w.conn.Close()
		w.conn = nil
		return fmt.Errorf("write %s message: %w", msg.Type, err)
	}
	return nil
}
