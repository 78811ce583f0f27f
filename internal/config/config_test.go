package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Presence.TTL() != 3*time.Second {
		t.Fatalf("presence ttl: %v", cfg.Presence.TTL())
	}
	if cfg.Delivery.Heartbeat() != 30*time.Second {
		t.Fatalf("heartbeat: %v", cfg.Delivery.Heartbeat())
	}
	if cfg.Autosave.Debounce() != 2*time.Second {
		t.Fatalf("debounce: %v", cfg.Autosave.Debounce())
	}
	if cfg.Delivery.QueueLength <= 0 {
		t.Fatalf("queue length must be positive")
	}
}

func TestLoadOverridesSubset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ripple.json")
	body := `{"autosave":{"debounceMs":500},"typing":{"ratePerSec":2,"burst":4}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Autosave.DebounceMs != 500 {
		t.Fatalf("debounce override: %d", cfg.Autosave.DebounceMs)
	}
	// Untouched sections keep defaults.
	if cfg.Presence.TTLMs != 3000 {
		t.Fatalf("presence default lost: %d", cfg.Presence.TTLMs)
	}
	if cfg.Typing.Burst != 4 {
		t.Fatalf("typing burst: %d", cfg.Typing.Burst)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("RIPPLE_PRESENCE_TTL_MS", "1500")
	t.Setenv("RIPPLE_TYPING_RATE_PER_SEC", "2.5")
	cfg := Default()
	FromEnv(&cfg)
	if cfg.Presence.TTLMs != 1500 {
		t.Fatalf("env ttl: %d", cfg.Presence.TTLMs)
	}
	if cfg.Typing.RatePerSec != 2.5 {
		t.Fatalf("env rate: %v", cfg.Typing.RatePerSec)
	}
}
