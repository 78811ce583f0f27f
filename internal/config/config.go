package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Presence PresenceConfig `json:"presence"`
	Delivery DeliveryConfig `json:"delivery"`
	Autosave AutosaveConfig `json:"autosave"`
	Typing   TypingConfig   `json:"typing"`
}

// PresenceConfig controls typing-indicator expiry.
type PresenceConfig struct {
	// TTLMs is how long a typing entry stays live without renewal.
	TTLMs int `json:"ttlMs"`
	// SweepIntervalMs is how often expired entries are physically removed.
	SweepIntervalMs int `json:"sweepIntervalMs"`
}

// DeliveryConfig controls per-connection event delivery.
type DeliveryConfig struct {
	// HeartbeatMs is the keep-alive interval for open delivery channels.
	HeartbeatMs int `json:"heartbeatMs"`
	// QueueLength bounds the per-subscriber event queue. On overflow the
	// oldest unread event for that subscriber is dropped.
	QueueLength int `json:"queueLength"`
	// MaxPayloadBytes bounds a single published event payload.
	MaxPayloadBytes int `json:"maxPayloadBytes"`
}

// AutosaveConfig controls the debounced draft saver.
type AutosaveConfig struct {
	// DebounceMs is the quiet window after the last edit before a save.
	DebounceMs int `json:"debounceMs"`
	// MaxAttempts caps persist retries before a session enters Failed.
	MaxAttempts int `json:"maxAttempts"`
	// RetryBaseMs and RetryCapMs bound the exponential retry backoff.
	RetryBaseMs int `json:"retryBaseMs"`
	RetryCapMs  int `json:"retryCapMs"`
}

// TypingConfig bounds typing-update traffic per user.
type TypingConfig struct {
	// RatePerSec is the sustained typing-update rate allowed per user.
	RatePerSec float64 `json:"ratePerSec"`
	// Burst is the token-bucket burst size.
	Burst int `json:"burst"`
}

// TTL returns the presence TTL as a duration.
func (p PresenceConfig) TTL() time.Duration { return time.Duration(p.TTLMs) * time.Millisecond }

// SweepInterval returns the sweep cadence as a duration.
func (p PresenceConfig) SweepInterval() time.Duration {
	return time.Duration(p.SweepIntervalMs) * time.Millisecond
}

// Heartbeat returns the heartbeat interval as a duration.
func (d DeliveryConfig) Heartbeat() time.Duration {
	return time.Duration(d.HeartbeatMs) * time.Millisecond
}

// Debounce returns the autosave quiet window as a duration.
func (a AutosaveConfig) Debounce() time.Duration {
	return time.Duration(a.DebounceMs) * time.Millisecond
}

// RetryBase returns the first retry delay as a duration.
func (a AutosaveConfig) RetryBase() time.Duration {
	return time.Duration(a.RetryBaseMs) * time.Millisecond
}

// RetryCap returns the retry delay ceiling as a duration.
func (a AutosaveConfig) RetryCap() time.Duration {
	return time.Duration(a.RetryCapMs) * time.Millisecond
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Presence: PresenceConfig{
			TTLMs:           3000,
			SweepIntervalMs: 1000,
		},
		Delivery: DeliveryConfig{
			HeartbeatMs:     30000,
			QueueLength:     256,
			MaxPayloadBytes: 64 << 10,
		},
		Autosave: AutosaveConfig{
			DebounceMs:  2000,
			MaxAttempts: 3,
			RetryBaseMs: 250,
			RetryCapMs:  5000,
		},
		Typing: TypingConfig{
			RatePerSec: 5,
			Burst:      10,
		},
	}
}

// Load reads configuration from a JSON file. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
