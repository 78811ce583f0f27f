// Package httpserver exposes the realtime core over HTTP: JSON endpoints
// for typing presence, drafts, and notifications, plus two streaming
// transports for delivery channels (Server-Sent Events and WebSocket).
package httpserver
