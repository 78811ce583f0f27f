// Package config holds Ripple's runtime configuration: presence expiry,
// delivery heartbeats and queue bounds, autosave debounce/retry policy, and
// typing rate limits. Configuration is loaded from an optional JSON file and
// overlaid with RIPPLE_* environment variables.
package config
