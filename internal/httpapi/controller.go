package httpapi

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reflective-resonance/turnengine/internal/observability"
)

// wsSubscriber adapts one websocket connection to events.Subscriber.
// Writes are serialized behind a mutex since the orchestrator's single
// consumer goroutine and the HTTP handler goroutines (which send hello.ack
// and close a replaced subscriber through SetSubscriber) could otherwise
// race on the socket. The connection's own read loop only drains frames
// and never writes.
type wsSubscriber struct {
	conn    *websocket.Conn
	metrics *observability.Metrics

	mu     sync.Mutex
	closed bool
}

func newWSSubscriber(conn *websocket.Conn, metrics *observability.Metrics) *wsSubscriber {
	return &wsSubscriber{conn: conn, metrics: metrics}
}

func (s *wsSubscriber) SendJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteJSON(v); err != nil {
		s.metrics.ObserveControllerConn("write_error")
		return err
	}
	return nil
}

func (s *wsSubscriber) Close(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

// markClosed records that the underlying connection dropped on its own
// (read loop error), without re-sending a close frame.
func (s *wsSubscriber) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
