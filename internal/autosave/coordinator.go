package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/storyhaven/ripple/internal/config"
	logpkg "github.com/storyhaven/ripple/pkg/log"
)

// State is the lifecycle of one story's save session.
type State int

const (
	// StateIdle means there are no unsaved edits.
	StateIdle State = iota
	// StatePending means edits are buffered and the debounce window is open.
	StatePending
	// StateSaving means a persist attempt is in flight.
	StateSaving
	// StateFailed means all persist attempts were exhausted. The buffered
	// content is preserved; the next edit re-enters StatePending.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateSaving:
		return "saving"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Persister commits draft content durably. *story.Store satisfies this.
type Persister interface {
	PersistDraft(ctx context.Context, storyID string, content []byte) error
}

// Hooks receive save outcomes. Both are optional and are called outside the
// coordinator lock.
type Hooks struct {
	// OnSaved fires after a successful persist with the content that was
	// committed.
	OnSaved func(storyID string, content []byte)
	// OnFailed fires when a session exhausts its retries.
	OnFailed func(storyID string, err error)
}

type session struct {
	storyID string
	state   State
	// buf always holds the newest content; intermediate edits are coalesced
	// away and never individually persisted.
	buf   []byte
	dirty bool
	timer *time.Timer
}

// Coordinator debounces draft edits per story and persists only the latest
// buffered content once the quiet window elapses. Failed persists retry with
// capped exponential backoff before the session parks in StateFailed.
type Coordinator struct {
	cfg     config.AutosaveConfig
	persist Persister
	hooks   Hooks
	logger  logpkg.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator returns a Coordinator using cfg's debounce and retry policy.
func NewCoordinator(cfg config.AutosaveConfig, persist Persister, hooks Hooks, logger logpkg.Logger) *Coordinator {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("autosave"))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:      cfg,
		persist:  persist,
		hooks:    hooks,
		logger:   logger,
		sessions: map[string]*session{},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Edit buffers new content for a story and (re)arms the debounce window.
// Edits during an in-flight save are kept and saved in a follow-up cycle;
// an edit on a failed session clears the failure and starts over.
func (c *Coordinator) Edit(storyID string, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	s, ok := c.sessions[storyID]
	if !ok {
		s = &session{storyID: storyID}
		c.sessions[storyID] = s
	}
	s.buf = append(s.buf[:0], content...)

	switch s.state {
	case StateSaving:
		// The in-flight attempt commits an older snapshot; remember that
		// newer content exists so the save loop re-arms afterwards.
		s.dirty = true
	case StatePending:
		s.timer.Reset(c.cfg.Debounce())
	default: // StateIdle, StateFailed
		s.state = StatePending
		s.dirty = false
		if s.timer == nil {
			s.timer = time.AfterFunc(c.cfg.Debounce(), func() { c.fire(storyID) })
		} else {
			s.timer.Reset(c.cfg.Debounce())
		}
	}
}

// fire runs when a story's quiet window elapses.
func (c *Coordinator) fire(storyID string) {
	c.mu.Lock()
	s, ok := c.sessions[storyID]
	if !ok || s.state != StatePending || c.closed {
		c.mu.Unlock()
		return
	}
	s.state = StateSaving
	s.dirty = false
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.saveLoop(storyID)
	}()
}

// saveLoop persists the newest buffered content, retrying with capped
// exponential backoff. Each attempt re-reads the buffer so retries always
// carry the latest edits.
func (c *Coordinator) saveLoop(storyID string) {
	var lastErr error
	maxAttempts := c.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryBase() << (attempt - 1)
			if ceil := c.cfg.RetryCap(); delay > ceil {
				delay = ceil
			}
			select {
			case <-c.ctx.Done():
				c.park(storyID, c.ctx.Err())
				return
			case <-time.After(delay):
			}
		}

		c.mu.Lock()
		s, ok := c.sessions[storyID]
		if !ok {
			c.mu.Unlock()
			return
		}
		content := append([]byte(nil), s.buf...)
		s.dirty = false
		c.mu.Unlock()

		lastErr = c.persist.PersistDraft(c.ctx, storyID, content)
		if lastErr == nil {
			c.settle(storyID, content)
			return
		}
		c.logger.Warn("draft persist failed",
			logpkg.Str("story", storyID),
			logpkg.Int("attempt", attempt+1),
			logpkg.Err(lastErr),
		)
	}
	c.park(storyID, lastErr)
}

// settle transitions a session out of StateSaving after a successful persist,
// re-arming the debounce if newer edits arrived mid-save. A session with
// nothing newer buffered is removed; the next edit starts a fresh one.
func (c *Coordinator) settle(storyID string, saved []byte) {
	c.mu.Lock()
	s, ok := c.sessions[storyID]
	if ok {
		if s.dirty && !c.closed {
			s.state = StatePending
			s.dirty = false
			s.timer.Reset(c.cfg.Debounce())
		} else {
			delete(c.sessions, storyID)
		}
	}
	c.mu.Unlock()

	if c.hooks.OnSaved != nil {
		c.hooks.OnSaved(storyID, saved)
	}
}

// park moves a session to StateFailed with its buffer intact.
func (c *Coordinator) park(storyID string, err error) {
	c.mu.Lock()
	if s, ok := c.sessions[storyID]; ok {
		s.state = StateFailed
	}
	c.mu.Unlock()

	c.logger.Error("draft save abandoned after retries",
		logpkg.Str("story", storyID),
		logpkg.Err(err),
	)
	if c.hooks.OnFailed != nil {
		c.hooks.OnFailed(storyID, err)
	}
}

// State returns the session state for a story. Stories with no session are
// StateIdle.
func (c *Coordinator) State(storyID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[storyID]; ok {
		return s.state
	}
	return StateIdle
}

// Buffered returns a copy of the unsaved content for a story, or nil when
// nothing is buffered.
func (c *Coordinator) Buffered(storyID string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[storyID]
	if !ok || s.state == StateIdle {
		return nil
	}
	return append([]byte(nil), s.buf...)
}

// Flush synchronously persists every pending or failed session once, without
// debounce or retries. Used on shutdown so buffered edits are not lost.
func (c *Coordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	var due []*session
	for _, s := range c.sessions {
		if s.state == StatePending || s.state == StateFailed {
			if s.timer != nil {
				s.timer.Stop()
			}
			s.state = StateSaving
			due = append(due, s)
		}
	}
	c.mu.Unlock()

	var firstErr error
	for _, s := range due {
		c.mu.Lock()
		content := append([]byte(nil), s.buf...)
		c.mu.Unlock()
		if err := c.persist.PersistDraft(ctx, s.storyID, content); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			c.mu.Lock()
			s.state = StateFailed
			c.mu.Unlock()
			continue
		}
		c.mu.Lock()
		if s.dirty && !c.closed {
			s.state = StatePending
			s.dirty = false
			s.timer.Reset(c.cfg.Debounce())
		} else {
			delete(c.sessions, s.storyID)
		}
		c.mu.Unlock()
	}
	return firstErr
}

// Close stops all timers, cancels in-flight saves, and waits for them.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, s := range c.sessions {
		if s.timer != nil {
			s.timer.Stop()
		}
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}
