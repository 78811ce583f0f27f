package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/storyhaven/ripple/internal/broker"
)

// sseSink implements the DeliverySink interface for Server-Sent Events.
//
// Each event is written as an SSE frame with the event type in the "event:"
// field and the JSON-encoded envelope in the "data:" field.
type sseSink struct {
	w http.ResponseWriter
	r *http.Request
}

// Send writes one event as an SSE frame.
func (s sseSink) Send(ev broker.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("event: " + ev.Type + "\ndata: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	_, err = s.w.Write([]byte("\n\n"))
	return err
}

// Context returns the request context for cancellation.
func (s sseSink) Context() context.Context {
	return s.r.Context()
}

// Flush pushes buffered frames to the client immediately.
func (s sseSink) Flush() error {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
