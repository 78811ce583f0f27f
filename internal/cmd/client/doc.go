// Package client contains Cobra CLI commands for talking to a running
// Ripple server over its HTTP API.
package client
