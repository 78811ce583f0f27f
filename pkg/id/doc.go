// Package id generates sortable identifiers for delivery-channel connections
// and server-assigned story IDs. Identifiers issued later always compare
// greater as strings, so logs for a user's connections read in the order the
// connections were opened.
//
// The Generator is safe for concurrent use and monotonic per process: a
// regressing system clock pins to the last seen millisecond, and a sequence
// wrap within one millisecond rolls the timestamp forward instead of
// repeating an identifier.
package id
