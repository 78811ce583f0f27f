// Package client is the Go client for the realtime subscribe endpoint. It
// keeps one subscription alive over an unreliable network: on connection
// loss it redials with capped exponential backoff and resubscribes to the
// same channel set. Missed events are not replayed; the server's opening
// snapshot re-establishes current state. After MaxAttempts consecutive
// failures the client stays disconnected until an explicit Reset.
package client
