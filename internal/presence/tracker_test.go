package presence

import (
	"sync"
	"testing"
	"time"
)

// testClock is a manually advanced millisecond clock.
type testClock struct {
	mu  sync.Mutex
	now int64
}

func (c *testClock) NowMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(ms int64) {
	c.mu.Lock()
	c.now += ms
	c.mu.Unlock()
}

func newTestTracker(t *testing.T, clock *testClock, onChange func(string, []Entry)) *Tracker {
	t.Helper()
	tr := New(Options{
		TTL:           3 * time.Second,
		SweepInterval: time.Hour, // sweeps are driven manually in tests
		NowMs:         clock.NowMs,
		OnChange:      onChange,
	})
	tr.Start()
	t.Cleanup(tr.Close)
	return tr
}

func names(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.DisplayName)
	}
	return out
}

func TestEntryVisibleWithinTTL(t *testing.T) {
	clock := &testClock{}
	tr := newTestTracker(t, clock, nil)

	tr.StartTyping("st-1", "c-a", "Ana")
	clock.Advance(1000)

	got := tr.ActiveTypers("st-1", "")
	if len(got) != 1 || got[0].DisplayName != "Ana" {
		t.Fatalf("typers at t=1000: %v", names(got))
	}
}

func TestEntryExpiresAfterTTLWithoutSweep(t *testing.T) {
	clock := &testClock{}
	tr := newTestTracker(t, clock, nil)

	tr.StartTyping("st-1", "c-a", "Ana")
	clock.Advance(3500)

	// The sweep has not run, but reads still filter expiry.
	if got := tr.ActiveTypers("st-1", ""); len(got) != 0 {
		t.Fatalf("expired entry visible: %v", names(got))
	}
}

func TestRenewalKeepsSingleEntryAndStartTime(t *testing.T) {
	clock := &testClock{}
	tr := newTestTracker(t, clock, nil)

	tr.StartTyping("st-1", "c-a", "Ana")
	clock.Advance(2000)
	tr.StartTyping("st-1", "c-a", "Ana")
	clock.Advance(2000)

	// t=4000: first TTL would have lapsed at 3000, renewal extends to 5000.
	got := tr.ActiveTypers("st-1", "")
	if len(got) != 1 {
		t.Fatalf("want exactly one live entry, got %d", len(got))
	}
	if got[0].StartedAtMs != 0 {
		t.Fatalf("renewal must keep original start time, got %d", got[0].StartedAtMs)
	}
}

func TestRestartAfterExpiryResetsStartTime(t *testing.T) {
	clock := &testClock{}
	tr := newTestTracker(t, clock, nil)

	tr.StartTyping("st-1", "c-a", "Ana")
	clock.Advance(4000)
	tr.StartTyping("st-1", "c-a", "Ana")

	got := tr.ActiveTypers("st-1", "")
	if len(got) != 1 || got[0].StartedAtMs != 4000 {
		t.Fatalf("expired then restarted entry should start fresh: %+v", got)
	}
}

func TestOrderedByStartTimeAndExcludesCaller(t *testing.T) {
	clock := &testClock{}
	tr := newTestTracker(t, clock, nil)

	tr.StartTyping("st-1", "c-b", "Ben")
	clock.Advance(100)
	tr.StartTyping("st-1", "c-a", "Ana")
	clock.Advance(100)
	tr.StartTyping("st-1", "c-c", "Cal")

	got := names(tr.ActiveTypers("st-1", "c-a"))
	if len(got) != 2 || got[0] != "Ben" || got[1] != "Cal" {
		t.Fatalf("order/exclusion wrong: %v", got)
	}
}

func TestStopTypingRemovesImmediately(t *testing.T) {
	clock := &testClock{}
	tr := newTestTracker(t, clock, nil)

	tr.StartTyping("st-1", "c-a", "Ana")
	tr.StopTyping("st-1", "c-a")
	if got := tr.ActiveTypers("st-1", ""); len(got) != 0 {
		t.Fatalf("stop did not remove entry: %v", names(got))
	}
	// Stopping an absent entry is a no-op.
	tr.StopTyping("st-1", "c-a")
	tr.StopTyping("st-missing", "c-a")
}

func TestClearSubscriberRemovesAcrossStories(t *testing.T) {
	clock := &testClock{}
	tr := newTestTracker(t, clock, nil)

	tr.StartTyping("st-1", "c-a", "Ana")
	tr.StartTyping("st-2", "c-a", "Ana")
	tr.StartTyping("st-1", "c-b", "Ben")

	affected := tr.ClearSubscriber("c-a")
	if len(affected) != 2 {
		t.Fatalf("affected stories: %v", affected)
	}
	if got := tr.ActiveTypers("st-1", ""); len(got) != 1 || got[0].DisplayName != "Ben" {
		t.Fatalf("st-1 after clear: %v", names(got))
	}
	if got := tr.ActiveTypers("st-2", ""); len(got) != 0 {
		t.Fatalf("st-2 after clear: %v", names(got))
	}
}

func TestOnChangeFiresOnlyOnVisibleSetChange(t *testing.T) {
	clock := &testClock{}
	var mu sync.Mutex
	var calls []string
	tr := newTestTracker(t, clock, func(storyID string, typers []Entry) {
		mu.Lock()
		calls = append(calls, storyID)
		mu.Unlock()
	})

	tr.StartTyping("st-1", "c-a", "Ana") // change: appear
	tr.StartTyping("st-1", "c-a", "Ana") // renewal: no change
	clock.Advance(1000)
	tr.StartTyping("st-1", "c-a", "Ana") // still live: no change
	tr.StopTyping("st-1", "c-a")         // change: disappear
	tr.StopTyping("st-1", "c-a")         // absent: no change

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 {
		t.Fatalf("onChange calls: %v", calls)
	}
}

func TestLastPublishedSnapshotMatchesFinalState(t *testing.T) {
	clock := &testClock{}
	var mu sync.Mutex
	var last []Entry
	tr := newTestTracker(t, clock, func(_ string, typers []Entry) {
		mu.Lock()
		last = append([]Entry(nil), typers...)
		mu.Unlock()
	})

	// Many subscribers toggling at once; each toggle publishes a snapshot.
	// Whatever interleaving happens, the snapshot published last must be the
	// final state, never a stale set that raced past a newer one.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sub := string(rune('a' + n))
			for j := 0; j < 50; j++ {
				tr.StartTyping("st-1", sub, sub)
				tr.StopTyping("st-1", sub)
			}
			if n%2 == 0 {
				tr.StartTyping("st-1", sub, sub)
			}
		}(i)
	}
	wg.Wait()

	want := map[string]bool{}
	for _, e := range tr.ActiveTypers("st-1", "") {
		want[e.SubscriberID] = true
	}
	mu.Lock()
	defer mu.Unlock()
	got := map[string]bool{}
	for _, e := range last {
		got[e.SubscriberID] = true
	}
	if len(got) != len(want) {
		t.Fatalf("final published set %v, state %v", got, want)
	}
	for sub := range want {
		if !got[sub] {
			t.Fatalf("final published set %v missing %s", got, sub)
		}
	}
}

func TestSweepReclaimsExpiredAndPublishesUpdate(t *testing.T) {
	clock := &testClock{}
	var mu sync.Mutex
	changes := 0
	tr := newTestTracker(t, clock, func(string, []Entry) {
		mu.Lock()
		changes++
		mu.Unlock()
	})

	tr.StartTyping("st-1", "c-a", "Ana")
	clock.Advance(3500)
	tr.sweep()

	mu.Lock()
	got := changes
	mu.Unlock()
	if got != 2 { // appear + sweep removal
		t.Fatalf("changes: %d", got)
	}
	if tr.ActiveTypers("st-1", "") == nil {
		// filtered read already empty; the point is the map is reclaimed too
	}
	tr.mu.Lock()
	stories := len(tr.byStory)
	tr.mu.Unlock()
	if stories != 0 {
		t.Fatalf("sweep left %d story maps behind", stories)
	}
}
