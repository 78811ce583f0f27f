package id

import (
	"testing"
	"time"
)

func withFixedClock(t *testing.T, ms int64) *int64 {
	t.Helper()
	now := ms
	NowMs = func() int64 { return now }
	t.Cleanup(func() { NowMs = func() int64 { return time.Now().UnixMilli() } })
	return &now
}

func TestConnectionIDsSortInIssueOrder(t *testing.T) {
	withFixedClock(t, 1000)
	g := NewGenerator()

	a := g.Next()
	b := g.Next()
	if len(a) != 32 {
		t.Fatalf("id length: %d", len(a))
	}
	if a >= b {
		t.Fatalf("ids must sort in issue order: %s >= %s", a, b)
	}
}

func TestClockRegressionKeepsOrdering(t *testing.T) {
	now := withFixedClock(t, 1000)
	g := NewGenerator()

	a := g.Next()
	*now = 900
	b := g.Next()
	if a >= b {
		t.Fatalf("id issued after clock step back must still sort later: %s >= %s", a, b)
	}
}

func TestUniqueWithinOneMillisecond(t *testing.T) {
	withFixedClock(t, 2000)
	g := NewGenerator()

	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := g.Next()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
