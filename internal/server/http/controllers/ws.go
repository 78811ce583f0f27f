package controllers

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/storyhaven/ripple/internal/broker"
)

// wsSink implements the DeliverySink interface over a WebSocket connection.
//
// Events are written as JSON text frames. A read pump runs alongside to
// observe the peer closing the socket; the sink context ends when either
// side goes away.
type wsSink struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

func newWSSink(parent context.Context, conn *websocket.Conn) *wsSink {
	ctx, cancel := context.WithCancel(parent)
	s := &wsSink{conn: conn, ctx: ctx, cancel: cancel}
	go s.readPump()
	return s
}

// readPump discards inbound frames and cancels the sink when the peer
// closes or the connection errors.
func (s *wsSink) readPump() {
	defer s.cancel()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Send writes one event as a JSON text frame.
func (s *wsSink) Send(ev broker.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}

// Context ends when the connection is gone in either direction.
func (s *wsSink) Context() context.Context { return s.ctx }

// Flush is a no-op; WebSocket frames are not buffered by the handler.
func (s *wsSink) Flush() error { return nil }

func (s *wsSink) Close() {
	s.cancel()
	_ = s.conn.Close()
}
