package realtimesvc

import (
	"context"
	"errors"

	"github.com/storyhaven/ripple/internal/broker"
)

// Identity is the authenticated caller behind a request or connection.
type Identity struct {
	UserID      string
	DisplayName string
}

// SubscribeOptions controls one delivery channel.
type SubscribeOptions struct {
	// Filter is an optional CEL expression evaluated per event. When empty,
	// all events on the subscribed channels are delivered.
	Filter string
}

// DeliverySink is implemented by transports (SSE, WebSocket) to receive the
// event stream for one connection.
type DeliverySink interface {
	Send(broker.Event) error
	Context() context.Context
	Flush() error
}

// Typer is one active typing entry as exposed over the API.
type Typer struct {
	SubscriberID string `json:"subscriberId"`
	DisplayName  string `json:"displayName"`
	StartedAtMs  int64  `json:"startedAtMs"`
}

var (
	// ErrBadChannel means a channel name is not user/{id} or story/{id}.
	ErrBadChannel = errors.New("realtime: malformed channel name")
	// ErrUnauthorizedChannel means the caller tried to use another user's
	// identity channel.
	ErrUnauthorizedChannel = errors.New("realtime: channel not permitted for caller")
	// ErrUnknownStory means a story channel or operation referenced a story
	// that does not exist.
	ErrUnknownStory = errors.New("realtime: unknown story")
	// ErrRateLimited means the caller exceeded the typing-update budget.
	ErrRateLimited = errors.New("realtime: typing rate limit exceeded")
	// ErrPayloadTooLarge means an event payload exceeds the configured cap.
	ErrPayloadTooLarge = errors.New("realtime: payload too large")
	// ErrBadFilter means the subscribe filter expression did not compile.
	ErrBadFilter = errors.New("realtime: invalid filter expression")
)
