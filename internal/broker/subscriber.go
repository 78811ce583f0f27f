package broker

import (
	"context"
	"errors"
	"sync"
)

// ErrSubscriberClosed is returned by Next once a subscriber is closed and
// its queue is drained.
var ErrSubscriberClosed = errors.New("broker: subscriber closed")

// Subscriber is one live connection's receive side. It owns a bounded FIFO
// queue of events; on overflow the oldest unread event is dropped so a slow
// consumer only ever loses its own events.
type Subscriber struct {
	id          string
	userID      string
	displayName string

	mu      sync.Mutex
	queue   []Event
	cap     int
	dropped uint64
	closed  bool

	notify chan struct{}
	done   chan struct{}
}

// NewSubscriber creates a subscriber with a queue bounded at queueLen.
func NewSubscriber(id, userID, displayName string, queueLen int) *Subscriber {
	if queueLen <= 0 {
		queueLen = 1
	}
	return &Subscriber{
		id:          id,
		userID:      userID,
		displayName: displayName,
		cap:         queueLen,
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// ID returns the subscriber's connection ID.
func (s *Subscriber) ID() string { return s.id }

// UserID returns the identity behind the connection.
func (s *Subscriber) UserID() string { return s.userID }

// DisplayName returns the user-visible name behind the connection.
func (s *Subscriber) DisplayName() string { return s.displayName }

// Dropped returns the number of events lost to queue overflow.
func (s *Subscriber) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// push enqueues an event, dropping the oldest unread event on overflow.
// It reports whether an event was dropped.
func (s *Subscriber) push(ev Event) (dropped bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if len(s.queue) >= s.cap {
		copy(s.queue, s.queue[1:])
		s.queue = s.queue[:len(s.queue)-1]
		s.dropped++
		dropped = true
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return dropped
}

// Next blocks until an event is available, the context is cancelled, or the
// subscriber is closed with an empty queue. Queued events are still delivered
// after Close so a graceful shutdown does not eat buffered events.
func (s *Subscriber) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Event{}, ErrSubscriberClosed
		}

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-s.notify:
		case <-s.done:
		}
	}
}

// Close marks the subscriber closed and wakes any blocked Next.
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
}
