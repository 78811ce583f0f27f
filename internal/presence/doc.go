// Package presence tracks who is actively typing in which story. Entries
// are ephemeral: each StartTyping call arms a fresh TTL, and an entry that
// is not renewed disappears on its own. A background sweep reclaims expired
// entries; reads never trust the sweep and filter expiry themselves, so a
// stale entry can never be observed between sweeps.
package presence
