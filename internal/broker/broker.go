package broker

import (
	"encoding/json"
	"sync"
	"time"

	logpkg "github.com/storyhaven/ripple/pkg/log"
)

// Event is a transient notification delivered through channel fanout. It is
// never persisted; it exists only for the duration of delivery.
type Event struct {
	Channel     string          `json:"channel"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	TimestampMs int64           `json:"tsMs"`
}

// Common event types.
const (
	EventConnected       = "connected"
	EventHeartbeat       = "heartbeat"
	EventTypingUpdate    = "typing.update"
	EventTypingSnapshot  = "typing.snapshot"
	EventStoryUpdated    = "story.updated"
	EventDraftSaveFailed = "draft.save_failed"
	EventUnread          = "unread"
	EventNotification    = "notification"
)

// nowMs is injectable for tests.
var nowMs = func() int64 { return time.Now().UnixMilli() }

// Broker is a single-process pub/sub fanout. Channels are created lazily on
// first subscribe and garbage-collected when their subscriber set empties.
// Delivery is fire-and-forget: a publish reaches exactly the subscribers
// registered at that instant, FIFO per (channel, subscriber), and a slow
// subscriber only ever drops its own events.
type Broker struct {
	mu       sync.Mutex
	channels map[string]map[*Subscriber]struct{}
	// bysub is the reverse index used to unwind a connection on close.
	bysub  map[*Subscriber]map[string]struct{}
	logger logpkg.Logger
}

// New returns an empty Broker.
func New(logger logpkg.Logger) *Broker {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("broker"))
	}
	return &Broker{
		channels: map[string]map[*Subscriber]struct{}{},
		bysub:    map[*Subscriber]map[string]struct{}{},
		logger:   logger,
	}
}

// Subscribe adds sub to the named channel, creating the channel if needed.
func (b *Broker) Subscribe(channel string, sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.channels[channel]
	if !ok {
		set = map[*Subscriber]struct{}{}
		b.channels[channel] = set
	}
	set[sub] = struct{}{}
	chans, ok := b.bysub[sub]
	if !ok {
		chans = map[string]struct{}{}
		b.bysub[sub] = chans
	}
	chans[channel] = struct{}{}
}

// Unsubscribe removes sub from the named channel. Empty channels are removed
// from the registry.
func (b *Broker) Unsubscribe(channel string, sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribeLocked(channel, sub)
}

func (b *Broker) unsubscribeLocked(channel string, sub *Subscriber) {
	if set, ok := b.channels[channel]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.channels, channel)
		}
	}
	if chans, ok := b.bysub[sub]; ok {
		delete(chans, channel)
		if len(chans) == 0 {
			delete(b.bysub, sub)
		}
	}
}

// UnsubscribeAll removes sub from every channel it joined.
func (b *Broker) UnsubscribeAll(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for channel := range b.bysub[sub] {
		b.unsubscribeLocked(channel, sub)
	}
}

// Publish fans an event out to every current subscriber of the channel and
// returns the number of subscribers it reached. Publishing to a channel with
// no subscribers is a silent no-op. Overflow drops are logged and never
// retried; the data is best-effort by contract.
func (b *Broker) Publish(channel, eventType string, payload json.RawMessage) int {
	ev := Event{Channel: channel, Type: eventType, Payload: payload, TimestampMs: nowMs()}

	// Pushing under the registry lock keeps per-(channel, subscriber)
	// ordering; pushes are non-blocking so the hold time stays short.
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.channels[channel]
	if !ok {
		return 0
	}
	delivered := 0
	for sub := range set {
		if sub.push(ev) {
			b.logger.Debug("dropped oldest event for slow subscriber",
				logpkg.Str("channel", channel),
				logpkg.Str("subscriber", sub.ID()),
				logpkg.Uint64("dropped_total", sub.Dropped()),
			)
		}
		delivered++
	}
	return delivered
}

// SubscriberCount returns the current size of a channel's subscriber set.
func (b *Broker) SubscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels[channel])
}

// ChannelCount returns the number of live channels.
func (b *Broker) ChannelCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

// ChannelsOf returns the channel names sub is currently joined to.
func (b *Broker) ChannelsOf(sub *Subscriber) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.bysub[sub]))
	for ch := range b.bysub[sub] {
		out = append(out, ch)
	}
	return out
}
