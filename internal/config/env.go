package config

import (
	"os"
	"strconv"
)

// FromEnv overlays RIPPLE_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	overlayInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	overlayInt("RIPPLE_PRESENCE_TTL_MS", &cfg.Presence.TTLMs)
	overlayInt("RIPPLE_PRESENCE_SWEEP_MS", &cfg.Presence.SweepIntervalMs)
	overlayInt("RIPPLE_HEARTBEAT_MS", &cfg.Delivery.HeartbeatMs)
	overlayInt("RIPPLE_QUEUE_LEN", &cfg.Delivery.QueueLength)
	overlayInt("RIPPLE_MAX_PAYLOAD_BYTES", &cfg.Delivery.MaxPayloadBytes)
	overlayInt("RIPPLE_AUTOSAVE_DEBOUNCE_MS", &cfg.Autosave.DebounceMs)
	overlayInt("RIPPLE_AUTOSAVE_MAX_ATTEMPTS", &cfg.Autosave.MaxAttempts)
	overlayInt("RIPPLE_AUTOSAVE_RETRY_BASE_MS", &cfg.Autosave.RetryBaseMs)
	overlayInt("RIPPLE_AUTOSAVE_RETRY_CAP_MS", &cfg.Autosave.RetryCapMs)
	overlayInt("RIPPLE_TYPING_BURST", &cfg.Typing.Burst)
	if v := os.Getenv("RIPPLE_TYPING_RATE_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Typing.RatePerSec = f
		}
	}
}
