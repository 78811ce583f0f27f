// Package autosave turns a stream of draft edits into occasional durable
// writes. Edits are buffered per story; a save happens only after the
// debounce window passes with no further edits, and only the newest content
// is ever written. Persist failures retry with capped exponential backoff,
// after which the session parks in a failed state that keeps the buffer
// intact until the author edits again.
package autosave
