package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/storyhaven/ripple/internal/config"
)

type fakePersister struct {
	mu    sync.Mutex
	saves [][]byte
	// failures is consumed one per call; once empty, calls succeed.
	failures int
}

func (f *fakePersister) PersistDraft(_ context.Context, _ string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("disk unavailable")
	}
	f.saves = append(f.saves, append([]byte(nil), content...))
	return nil
}

func (f *fakePersister) saved() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.saves))
	copy(out, f.saves)
	return out
}

func testCfg() config.AutosaveConfig {
	return config.AutosaveConfig{
		DebounceMs:  40,
		MaxAttempts: 3,
		RetryBaseMs: 5,
		RetryCapMs:  20,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRapidEditsCoalesceToOneSave(t *testing.T) {
	p := &fakePersister{}
	c := NewCoordinator(testCfg(), p, Hooks{}, nil)
	defer c.Close()

	c.Edit("st-1", []byte("Once"))
	time.Sleep(10 * time.Millisecond)
	c.Edit("st-1", []byte("Once upon"))
	time.Sleep(10 * time.Millisecond)
	c.Edit("st-1", []byte("Once upon a time"))

	waitFor(t, func() bool { return len(p.saved()) == 1 })
	if got := string(p.saved()[0]); got != "Once upon a time" {
		t.Fatalf("saved content: %q", got)
	}
	// Intermediate versions must never have been written.
	time.Sleep(100 * time.Millisecond)
	if n := len(p.saved()); n != 1 {
		t.Fatalf("saves: %d", n)
	}
	if c.State("st-1") != StateIdle {
		t.Fatalf("state: %v", c.State("st-1"))
	}
}

func TestSpacedEditsSaveSeparately(t *testing.T) {
	p := &fakePersister{}
	c := NewCoordinator(testCfg(), p, Hooks{}, nil)
	defer c.Close()

	c.Edit("st-1", []byte("chapter one"))
	waitFor(t, func() bool { return len(p.saved()) == 1 })
	c.Edit("st-1", []byte("chapter two"))
	waitFor(t, func() bool { return len(p.saved()) == 2 })

	got := p.saved()
	if string(got[0]) != "chapter one" || string(got[1]) != "chapter two" {
		t.Fatalf("saves: %q %q", got[0], got[1])
	}
}

func TestEditDuringSaveTriggersFollowUp(t *testing.T) {
	p := &fakePersister{failures: 1} // first attempt fails, stretching the save window
	c := NewCoordinator(testCfg(), p, Hooks{}, nil)
	defer c.Close()

	c.Edit("st-1", []byte("v1"))
	waitFor(t, func() bool { return c.State("st-1") == StateSaving })
	c.Edit("st-1", []byte("v2"))

	// The retry re-reads the buffer, so v2 lands without a second cycle.
	waitFor(t, func() bool { return len(p.saved()) >= 1 })
	saves := p.saved()
	if string(saves[len(saves)-1]) != "v2" {
		t.Fatalf("latest save: %q", saves[len(saves)-1])
	}
}

func TestRetryThenSuccess(t *testing.T) {
	p := &fakePersister{failures: 2}
	var savedOnce sync.WaitGroup
	savedOnce.Add(1)
	c := NewCoordinator(testCfg(), p, Hooks{
		OnSaved: func(string, []byte) { savedOnce.Done() },
	}, nil)
	defer c.Close()

	c.Edit("st-1", []byte("persist me"))
	savedOnce.Wait()
	if got := p.saved(); len(got) != 1 || string(got[0]) != "persist me" {
		t.Fatalf("saves: %v", got)
	}
	if c.State("st-1") != StateIdle {
		t.Fatalf("state: %v", c.State("st-1"))
	}
}

func TestExhaustedRetriesParkFailedAndPreserveBuffer(t *testing.T) {
	p := &fakePersister{failures: 100}
	failed := make(chan error, 1)
	c := NewCoordinator(testCfg(), p, Hooks{
		OnFailed: func(_ string, err error) { failed <- err },
	}, nil)
	defer c.Close()

	c.Edit("st-1", []byte("do not lose this"))
	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("session never failed")
	}
	if c.State("st-1") != StateFailed {
		t.Fatalf("state: %v", c.State("st-1"))
	}
	if got := string(c.Buffered("st-1")); got != "do not lose this" {
		t.Fatalf("buffer after failure: %q", got)
	}

	// A later edit clears the failure and saves normally.
	p.mu.Lock()
	p.failures = 0
	p.mu.Unlock()
	c.Edit("st-1", []byte("recovered"))
	waitFor(t, func() bool { return len(p.saved()) == 1 })
	if got := string(p.saved()[0]); got != "recovered" {
		t.Fatalf("recovered save: %q", got)
	}
}

func TestSettledSessionsAreRemoved(t *testing.T) {
	p := &fakePersister{}
	c := NewCoordinator(testCfg(), p, Hooks{}, nil)
	defer c.Close()

	c.Edit("st-1", []byte("done"))
	waitFor(t, func() bool { return len(p.saved()) == 1 })
	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.sessions) == 0
	})

	if c.State("st-1") != StateIdle {
		t.Fatalf("state after settle: %v", c.State("st-1"))
	}
	if c.Buffered("st-1") != nil {
		t.Fatal("settled session still buffers content")
	}

	// The next edit starts a fresh session and saves normally.
	c.Edit("st-1", []byte("again"))
	waitFor(t, func() bool { return len(p.saved()) == 2 })
}

func TestFlushPersistsPendingImmediately(t *testing.T) {
	p := &fakePersister{}
	cfg := testCfg()
	cfg.DebounceMs = 60000 // debounce would never fire within the test
	c := NewCoordinator(cfg, p, Hooks{}, nil)
	defer c.Close()

	c.Edit("st-1", []byte("draft a"))
	c.Edit("st-2", []byte("draft b"))
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n := len(p.saved()); n != 2 {
		t.Fatalf("flushed saves: %d", n)
	}
	if c.State("st-1") != StateIdle || c.State("st-2") != StateIdle {
		t.Fatal("sessions not idle after flush")
	}
}

func TestIndependentStoriesDoNotInterfere(t *testing.T) {
	p := &fakePersister{}
	c := NewCoordinator(testCfg(), p, Hooks{}, nil)
	defer c.Close()

	c.Edit("st-1", []byte("alpha"))
	c.Edit("st-2", []byte("beta"))
	waitFor(t, func() bool { return len(p.saved()) == 2 })

	seen := map[string]bool{}
	for _, b := range p.saved() {
		seen[string(b)] = true
	}
	if !seen["alpha"] || !seen["beta"] {
		t.Fatalf("saves: %v", seen)
	}
}
