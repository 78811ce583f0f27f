// Package story is the storage collaborator for the realtime core. It owns
// story metadata (existence and ownership checks performed before a resource
// channel subscription is accepted), draft content persisted by the autosave
// coordinator, and the per-user unread counters reported in connection
// snapshots.
package story
