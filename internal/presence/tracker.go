package presence

import (
	"sort"
	"sync"
	"time"

	logpkg "github.com/storyhaven/ripple/pkg/log"
)

// Entry is one live "is typing" record. At most one live entry exists per
// (story, subscriber) pair.
type Entry struct {
	StoryID      string `json:"storyId"`
	SubscriberID string `json:"subscriberId"`
	DisplayName  string `json:"displayName"`
	StartedAtMs  int64  `json:"startedAtMs"`
	ExpiresAtMs  int64  `json:"-"`
}

// Options configures a Tracker.
type Options struct {
	// TTL is how long an entry stays live without renewal.
	TTL time.Duration
	// SweepInterval is how often expired entries are physically removed.
	SweepInterval time.Duration
	// NowMs overrides the clock; tests use this to control expiry.
	NowMs func() int64
	// OnChange is invoked whenever the visible typer set of a story changed,
	// with the post-change set. It runs while the tracker lock is held so
	// consecutive snapshots are published in state order; implementations
	// must not call back into the Tracker.
	OnChange func(storyID string, typers []Entry)
	Logger   logpkg.Logger
}

// Tracker owns the ephemeral per-story map of who is currently typing.
// Entries expire logically once their TTL elapses; reads filter expired
// entries even before the sweep physically removes them.
type Tracker struct {
	mu      sync.Mutex
	byStory map[string]map[string]Entry

	ttl        time.Duration
	sweepEvery time.Duration
	nowMs      func() int64
	onChange   func(storyID string, typers []Entry)
	logger     logpkg.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New returns a Tracker. Call Start to begin the background sweep and Close
// to stop it.
func New(opts Options) *Tracker {
	if opts.TTL <= 0 {
		opts.TTL = 3 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Second
	}
	if opts.NowMs == nil {
		opts.NowMs = func() int64 { return time.Now().UnixMilli() }
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger().With(logpkg.Component("presence"))
	}
	return &Tracker{
		byStory:    map[string]map[string]Entry{},
		ttl:        opts.TTL,
		sweepEvery: opts.SweepInterval,
		nowMs:      opts.NowMs,
		onChange:   opts.OnChange,
		logger:     opts.Logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the periodic sweep. The sweep is tied to the tracker's own
// lifecycle so it cannot outlive module teardown.
func (t *Tracker) Start() {
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				t.sweep()
			}
		}
	}()
}

// Close stops the sweep and waits for it to exit.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}

// StartTyping records (or renews) a typing entry. Idempotent: repeated calls
// refresh the expiry without error. A change is only reported when the
// subscriber was not already visibly typing.
func (t *Tracker) StartTyping(storyID, subscriberID, displayName string) {
	now := t.nowMs()
	t.mu.Lock()
	entries, ok := t.byStory[storyID]
	if !ok {
		entries = map[string]Entry{}
		t.byStory[storyID] = entries
	}
	prev, exists := entries[subscriberID]
	live := exists && prev.ExpiresAtMs > now
	started := now
	if live {
		started = prev.StartedAtMs
	}
	entries[subscriberID] = Entry{
		StoryID:      storyID,
		SubscriberID: subscriberID,
		DisplayName:  displayName,
		StartedAtMs:  started,
		ExpiresAtMs:  now + t.ttl.Milliseconds(),
	}
	if !live {
		t.fireChangeLocked(storyID, t.activeLocked(storyID, "", now))
	}
	t.mu.Unlock()
}

// StopTyping removes an entry immediately. No-op when absent.
func (t *Tracker) StopTyping(storyID, subscriberID string) {
	now := t.nowMs()
	t.mu.Lock()
	entries, ok := t.byStory[storyID]
	if !ok {
		t.mu.Unlock()
		return
	}
	prev, exists := entries[subscriberID]
	if !exists {
		t.mu.Unlock()
		return
	}
	delete(entries, subscriberID)
	if len(entries) == 0 {
		delete(t.byStory, storyID)
	}
	if prev.ExpiresAtMs > now {
		t.fireChangeLocked(storyID, t.activeLocked(storyID, "", now))
	}
	t.mu.Unlock()
}

// ActiveTypers returns the live typers for a story ordered by typing start
// time, excluding excludeSubscriberID. Expired entries are filtered even if
// the sweep has not run yet.
func (t *Tracker) ActiveTypers(storyID, excludeSubscriberID string) []Entry {
	now := t.nowMs()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLocked(storyID, excludeSubscriberID, now)
}

func (t *Tracker) activeLocked(storyID, exclude string, now int64) []Entry {
	entries := t.byStory[storyID]
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.SubscriberID == exclude {
			continue
		}
		if e.ExpiresAtMs <= now {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAtMs != out[j].StartedAtMs {
			return out[i].StartedAtMs < out[j].StartedAtMs
		}
		return out[i].SubscriberID < out[j].SubscriberID
	})
	return out
}

// ClearSubscriber removes every entry the subscriber holds across all
// stories, returning the affected story IDs. Used on connection close so no
// presence entry outlives its connection.
func (t *Tracker) ClearSubscriber(subscriberID string) []string {
	now := t.nowMs()
	t.mu.Lock()
	defer t.mu.Unlock()
	var affected []string
	for storyID, entries := range t.byStory {
		prev, exists := entries[subscriberID]
		if !exists {
			continue
		}
		delete(entries, subscriberID)
		if len(entries) == 0 {
			delete(t.byStory, storyID)
		}
		affected = append(affected, storyID)
		if prev.ExpiresAtMs > now {
			t.fireChangeLocked(storyID, t.activeLocked(storyID, "", now))
		}
	}
	return affected
}

// sweep physically removes expired entries. Removal of an expired entry
// still reports a change: the set visible to clients shrank at expiry, and
// the sweep is where that becomes a published update.
func (t *Tracker) sweep() {
	now := t.nowMs()
	t.mu.Lock()
	defer t.mu.Unlock()
	swept := 0
	for storyID, entries := range t.byStory {
		removed := false
		for subID, e := range entries {
			if e.ExpiresAtMs <= now {
				delete(entries, subID)
				removed = true
			}
		}
		if len(entries) == 0 {
			delete(t.byStory, storyID)
		}
		if removed {
			swept++
			t.fireChangeLocked(storyID, t.activeLocked(storyID, "", now))
		}
	}
	if swept > 0 {
		t.logger.Debug("swept expired typing entries", logpkg.Int("stories", swept))
	}
}

// fireChangeLocked reports a visible-set change. It must run with t.mu held:
// callbacks then observe snapshots in the order the state changed, so a stale
// set can never be published after a newer one.
func (t *Tracker) fireChangeLocked(storyID string, typers []Entry) {
	if t.onChange == nil {
		return
	}
	t.onChange(storyID, typers)
}
