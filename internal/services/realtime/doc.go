// Package realtimesvc is the application facade of the realtime core. It
// binds the pub/sub broker, the typing presence tracker, the debounced
// autosave coordinator, and the story store behind one transport-neutral
// API consumed by the HTTP controllers and the CLI.
//
// A delivery channel is one long-lived Subscribe call: the sink receives a
// connected ack, an initial snapshot per subscribed channel, periodic
// heartbeats, and every matching event, until the connection context ends.
// Teardown is symmetric with setup; a closed connection leaves no broker
// registrations and no presence entries behind.
package realtimesvc
