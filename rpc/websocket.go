package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketSender sends each batch as one text message over a persistent
// connection and reads the answer from the next message. Batches are
// serialized on the connection.
type WebSocketSender struct {
	URL    string
	Header http.Header

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketSender creates a sender that dials lazily.
func NewWebSocketSender(url string) *WebSocketSender {
	return &WebSocketSender{URL: url, Header: make(http.Header)}
}

// Send implements Sender.
func (s *WebSocketSender) Send(ctx context.Context, batch []Request) ([]Response, error) {
	body, err := EncodeBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		s.drop()
		return nil, s.contextError(ctx, err)
	}

	_ = conn.SetReadDeadline(deadline)
	_, data, err := conn.ReadMessage()
	if err != nil {
		s.drop()
		return nil, s.contextError(ctx, err)
	}
	return DecodeBatch(data)
}

// Close closes the connection, if any.
func (s *WebSocketSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *WebSocketSender) dial(ctx context.Context) (*websocket.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	d := websocket.Dialer{}
	if deadline, ok := ctx.Deadline(); ok {
		d.HandshakeTimeout = time.Until(deadline)
	}
	conn, _, err := d.DialContext(ctx, s.URL, s.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.URL, err)
	}
	s.conn = conn
	return conn, nil
}

func (s *WebSocketSender) drop() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *WebSocketSender) contextError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return ctx.Err()
		}
	}
	return err
}
