package realtimesvc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/storyhaven/ripple/internal/autosave"
	"github.com/storyhaven/ripple/internal/broker"
	"github.com/storyhaven/ripple/internal/config"
	"github.com/storyhaven/ripple/internal/presence"
	"github.com/storyhaven/ripple/internal/story"
	idpkg "github.com/storyhaven/ripple/pkg/id"
	logpkg "github.com/storyhaven/ripple/pkg/log"
)

// UserChannel returns the identity channel name for a user.
func UserChannel(userID string) string { return "user/" + userID }

// StoryChannel returns the collaboration channel name for a story.
func StoryChannel(storyID string) string { return "story/" + storyID }

// Options configures a Service.
type Options struct {
	Config  config.Config
	Broker  *broker.Broker
	Stories *story.Store
	Logger  logpkg.Logger
	// NowMs overrides the presence clock; tests use this to control expiry.
	NowMs func() int64
}

// Service is the facade over presence, fanout, autosave, and unread state.
// It owns the presence tracker and the autosave coordinator; callers wire in
// the broker and story store.
type Service struct {
	cfg     config.Config
	broker  *broker.Broker
	stories *story.Store
	tracker *presence.Tracker
	saver   *autosave.Coordinator
	logger  logpkg.Logger
	idgen   *idpkg.Generator

	limMu    sync.Mutex
	limiters map[string]*userLimiter

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// userLimiter pairs a token bucket with its last use so idle entries can be
// released.
type userLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// limiterIdleAfter is how long a user's limiter may sit unused before the
// janitor releases it. An idle bucket has refilled to full burst, so a
// returning user starts from the same state either way.
const limiterIdleAfter = time.Minute

// New constructs the Service and starts its presence sweep. Close releases
// background work.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("realtime"))
	}
	s := &Service{
		cfg:      opts.Config,
		broker:   opts.Broker,
		stories:  opts.Stories,
		logger:   logger,
		idgen:    idpkg.NewGenerator(),
		limiters: map[string]*userLimiter{},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.limiterJanitor()
	s.tracker = presence.New(presence.Options{
		TTL:           opts.Config.Presence.TTL(),
		SweepInterval: opts.Config.Presence.SweepInterval(),
		NowMs:         opts.NowMs,
		OnChange:      s.publishTypingUpdate,
		Logger:        logger.With(logpkg.Component("presence")),
	})
	s.tracker.Start()
	s.saver = autosave.NewCoordinator(opts.Config.Autosave, opts.Stories, autosave.Hooks{
		OnSaved:  s.onDraftSaved,
		OnFailed: s.onDraftSaveFailed,
	}, logger.With(logpkg.Component("autosave")))
	return s
}

// Close flushes pending drafts and stops background work.
func (s *Service) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.saver.Flush(ctx); err != nil {
		s.logger.Warn("draft flush on shutdown", logpkg.Err(err))
	}
	s.saver.Close()
	s.tracker.Close()
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// validateChannel checks a channel name against the caller's identity.
// Callers may join their own identity channel and any existing story channel.
func (s *Service) validateChannel(id Identity, channel string) error {
	kind, rest, ok := strings.Cut(channel, "/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return ErrBadChannel
	}
	switch kind {
	case "user":
		if rest != id.UserID {
			return ErrUnauthorizedChannel
		}
		return nil
	case "story":
		if !s.stories.Exists(rest) {
			return ErrUnknownStory
		}
		return nil
	default:
		return ErrBadChannel
	}
}

// Subscribe opens a delivery channel: it registers the subscriber on the
// requested broker channels, sends the connected ack and initial snapshots,
// then forwards events until the connection context ends. All registrations
// and presence entries are torn down before Subscribe returns; nothing
// outlives the connection.
func (s *Service) Subscribe(ctx context.Context, id Identity, channels []string, opts SubscribeOptions, sink DeliverySink) error {
	if len(channels) == 0 {
		channels = []string{UserChannel(id.UserID)}
	}
	for _, ch := range channels {
		if err := s.validateChannel(id, ch); err != nil {
			return err
		}
	}
	filter, err := newCELFilter(opts.Filter)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if sctx := sink.Context(); sctx != nil {
		go func() {
			select {
			case <-sctx.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	connID := s.idgen.Next()
	sub := broker.NewSubscriber(connID, id.UserID, id.DisplayName, s.cfg.Delivery.QueueLength)
	for _, ch := range channels {
		s.broker.Subscribe(ch, sub)
	}
	defer func() {
		s.broker.UnsubscribeAll(sub)
		sub.Close()
		s.tracker.ClearSubscriber(id.UserID)
	}()

	s.logger.Info("delivery channel open",
		logpkg.Str("conn", connID),
		logpkg.Str("user", id.UserID),
		logpkg.Int("channels", len(channels)),
	)
	defer s.logger.Info("delivery channel closed", logpkg.Str("conn", connID))

	if err := s.sendOpeningEvents(id, connID, channels, sink); err != nil {
		return err
	}

	events := make(chan broker.Event)
	errs := make(chan error, 1)
	go func() {
		for {
			ev, err := sub.Next(ctx)
			if err != nil {
				errs <- err
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	hb := time.NewTicker(s.cfg.Delivery.Heartbeat())
	defer hb.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			if errors.Is(err, broker.ErrSubscriberClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case <-hb.C:
			if err := s.sendDirect(sink, broker.Event{
				Type:        broker.EventHeartbeat,
				TimestampMs: time.Now().UnixMilli(),
			}); err != nil {
				return nil
			}
		case ev := <-events:
			if !filter.Eval(ev) {
				continue
			}
			if err := s.sendDirect(sink, ev); err != nil {
				return nil
			}
		}
	}
}

// sendOpeningEvents emits the connected ack, a typing snapshot per story
// channel, and the unread counter for the identity channel.
func (s *Service) sendOpeningEvents(id Identity, connID string, channels []string, sink DeliverySink) error {
	ack, _ := json.Marshal(map[string]any{
		"connectionId": connID,
		"channels":     channels,
	})
	if err := s.sendDirect(sink, broker.Event{
		Type:        broker.EventConnected,
		Payload:     ack,
		TimestampMs: time.Now().UnixMilli(),
	}); err != nil {
		return err
	}
	for _, ch := range channels {
		kind, rest, _ := strings.Cut(ch, "/")
		switch kind {
		case "story":
			payload, _ := json.Marshal(map[string]any{
				"storyId": rest,
				"typers":  toTypers(s.tracker.ActiveTypers(rest, id.UserID)),
			})
			if err := s.sendDirect(sink, broker.Event{
				Channel:     ch,
				Type:        broker.EventTypingSnapshot,
				Payload:     payload,
				TimestampMs: time.Now().UnixMilli(),
			}); err != nil {
				return err
			}
		case "user":
			payload, _ := json.Marshal(map[string]any{"count": s.stories.Unread(rest)})
			if err := s.sendDirect(sink, broker.Event{
				Channel:     ch,
				Type:        broker.EventUnread,
				Payload:     payload,
				TimestampMs: time.Now().UnixMilli(),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) sendDirect(sink DeliverySink, ev broker.Event) error {
	if err := sink.Send(ev); err != nil {
		return err
	}
	return sink.Flush()
}

// limiter returns the per-user typing rate limiter, creating it on first use.
func (s *Service) limiter(userID string) *rate.Limiter {
	s.limMu.Lock()
	defer s.limMu.Unlock()
	ul, ok := s.limiters[userID]
	if !ok {
		ul = &userLimiter{lim: rate.NewLimiter(rate.Limit(s.cfg.Typing.RatePerSec), s.cfg.Typing.Burst)}
		s.limiters[userID] = ul
	}
	ul.lastSeen = time.Now()
	return ul.lim
}

// limiterJanitor periodically releases limiters that have gone idle so the
// map does not grow with user cardinality.
func (s *Service) limiterJanitor() {
	defer close(s.done)
	ticker := time.NewTicker(limiterIdleAfter)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.releaseIdleLimiters(time.Now().Add(-limiterIdleAfter))
		}
	}
}

// releaseIdleLimiters drops limiters unused since the cutoff, returning how
// many were released.
func (s *Service) releaseIdleLimiters(cutoff time.Time) int {
	s.limMu.Lock()
	defer s.limMu.Unlock()
	released := 0
	for userID, ul := range s.limiters {
		if ul.lastSeen.Before(cutoff) {
			delete(s.limiters, userID)
			released++
		}
	}
	return released
}

// StartTyping records that the caller is typing in a story. Repeated calls
// renew the entry. Excess calls beyond the per-user budget return
// ErrRateLimited and leave presence untouched.
func (s *Service) StartTyping(id Identity, storyID string) error {
	if !s.stories.Exists(storyID) {
		return ErrUnknownStory
	}
	if !s.limiter(id.UserID).Allow() {
		return ErrRateLimited
	}
	s.tracker.StartTyping(storyID, id.UserID, id.DisplayName)
	return nil
}

// StopTyping removes the caller's typing entry immediately.
func (s *Service) StopTyping(id Identity, storyID string) error {
	if !s.stories.Exists(storyID) {
		return ErrUnknownStory
	}
	s.tracker.StopTyping(storyID, id.UserID)
	return nil
}

// ActiveTypers returns who is typing in a story, excluding the caller,
// ordered by typing start time.
func (s *Service) ActiveTypers(id Identity, storyID string) ([]Typer, error) {
	if !s.stories.Exists(storyID) {
		return nil, ErrUnknownStory
	}
	return toTypers(s.tracker.ActiveTypers(storyID, id.UserID)), nil
}

func toTypers(entries []presence.Entry) []Typer {
	out := make([]Typer, 0, len(entries))
	for _, e := range entries {
		out = append(out, Typer{
			SubscriberID: e.SubscriberID,
			DisplayName:  e.DisplayName,
			StartedAtMs:  e.StartedAtMs,
		})
	}
	return out
}

// publishTypingUpdate is the presence change hook: it broadcasts the new
// typer set on the story channel.
func (s *Service) publishTypingUpdate(storyID string, typers []presence.Entry) {
	payload, _ := json.Marshal(map[string]any{
		"storyId": storyID,
		"typers":  toTypers(typers),
	})
	s.broker.Publish(StoryChannel(storyID), broker.EventTypingUpdate, payload)
}

// CreateStory registers a story owned by the caller. Empty IDs are generated.
func (s *Service) CreateStory(id Identity, storyID, title string) (story.Meta, error) {
	if storyID == "" {
		storyID = s.idgen.Next()
	}
	return s.stories.Ensure(storyID, id.UserID, title)
}

// Story returns the metadata for a story.
func (s *Service) Story(storyID string) (story.Meta, error) {
	m, err := s.stories.Get(storyID)
	if errors.Is(err, story.ErrNotFound) {
		return story.Meta{}, ErrUnknownStory
	}
	return m, err
}

// EditDraft buffers new draft content for debounced persistence. The write
// happens later; this returns as soon as the edit is buffered.
func (s *Service) EditDraft(id Identity, storyID string, content []byte) error {
	if !s.stories.Exists(storyID) {
		return ErrUnknownStory
	}
	if len(content) > s.cfg.Delivery.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	s.saver.Edit(storyID, content)
	return nil
}

// DraftStatus reports the autosave session state for a story.
func (s *Service) DraftStatus(storyID string) (autosave.State, error) {
	if !s.stories.Exists(storyID) {
		return autosave.StateIdle, ErrUnknownStory
	}
	return s.saver.State(storyID), nil
}

// Draft returns the last durably saved content for a story.
func (s *Service) Draft(storyID string) ([]byte, error) {
	b, err := s.stories.Draft(storyID)
	if errors.Is(err, story.ErrNotFound) {
		if !s.stories.Exists(storyID) {
			return nil, ErrUnknownStory
		}
		return nil, nil
	}
	return b, err
}

func (s *Service) onDraftSaved(storyID string, content []byte) {
	payload, _ := json.Marshal(map[string]any{
		"storyId": storyID,
		"bytes":   len(content),
		"savedAt": time.Now().UnixMilli(),
	})
	s.broker.Publish(StoryChannel(storyID), broker.EventStoryUpdated, payload)
}

// onDraftSaveFailed tells the author, on their identity channel, that the
// draft could not be persisted and is being held in memory.
func (s *Service) onDraftSaveFailed(storyID string, saveErr error) {
	m, err := s.stories.Get(storyID)
	if err != nil {
		s.logger.Error("save failed for unknown story", logpkg.Str("story", storyID), logpkg.Err(saveErr))
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"storyId": storyID,
		"error":   saveErr.Error(),
	})
	s.broker.Publish(UserChannel(m.OwnerID), broker.EventDraftSaveFailed, payload)
}

// Notify publishes on behalf of a subsystem that knows channels, not
// connections. Notifications on identity channels bump the target's unread
// counter; the counter update rides along as its own event.
func (s *Service) Notify(channel, eventType string, payload json.RawMessage) error {
	kind, rest, ok := strings.Cut(channel, "/")
	if !ok || rest == "" || (kind != "user" && kind != "story") {
		return ErrBadChannel
	}
	if kind == "story" && !s.stories.Exists(rest) {
		return ErrUnknownStory
	}
	if len(payload) > s.cfg.Delivery.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	if eventType == "" {
		eventType = broker.EventNotification
	}
	s.broker.Publish(channel, eventType, payload)
	if kind != "user" {
		return nil
	}
	count, err := s.stories.IncrUnread(rest, 1)
	if err != nil {
		return err
	}
	cp, _ := json.Marshal(map[string]any{"count": count})
	s.broker.Publish(channel, broker.EventUnread, cp)
	return nil
}

// Unread returns the caller's unread counter.
func (s *Service) Unread(id Identity) uint64 { return s.stories.Unread(id.UserID) }

// MarkRead clears the caller's unread counter and announces the reset.
func (s *Service) MarkRead(id Identity) error {
	if err := s.stories.MarkRead(id.UserID); err != nil {
		return err
	}
	cp, _ := json.Marshal(map[string]any{"count": 0})
	s.broker.Publish(UserChannel(id.UserID), broker.EventUnread, cp)
	return nil
}

// Publish fans a caller-supplied event out on a channel the caller may use.
func (s *Service) Publish(id Identity, channel, eventType string, payload json.RawMessage) (int, error) {
	if err := s.validateChannel(id, channel); err != nil {
		return 0, err
	}
	if len(payload) > s.cfg.Delivery.MaxPayloadBytes {
		return 0, ErrPayloadTooLarge
	}
	if eventType == "" {
		eventType = broker.EventNotification
	}
	return s.broker.Publish(channel, eventType, payload), nil
}
