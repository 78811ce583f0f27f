// Package runtime assembles a single-node instance: Pebble-backed storage,
// the story store, the pub/sub broker, and the realtime service facade.
// Transports (HTTP) and the CLI build on a Runtime rather than wiring the
// pieces themselves.
package runtime
