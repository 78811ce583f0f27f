package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	realtimesvc "github.com/storyhaven/ripple/internal/services/realtime"
)

// RealtimeController handles delivery-channel transports and generic
// publishing.
type RealtimeController struct {
	svc      *realtimesvc.Service
	upgrader websocket.Upgrader
}

// NewRealtimeController creates a new realtime controller.
func NewRealtimeController(svc *realtimesvc.Service) *RealtimeController {
	return &RealtimeController{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect cross-origin from the app host.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes registers realtime routes with the given mux.
func (c *RealtimeController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/realtime/subscribe", c.handleSubscribeSSE)
	mux.HandleFunc("/v1/realtime/ws", c.handleSubscribeWS)
	mux.HandleFunc("/v1/realtime/publish", c.handlePublish)
}

// channelsParam parses the comma-separated channels query parameter.
func channelsParam(r *http.Request) []string {
	raw := r.URL.Query().Get("channels")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// handleSubscribeSSE opens a delivery channel over Server-Sent Events.
//
// Query parameters: channels (comma-separated), filter (optional CEL
// expression), and user_id/user_name for identity since EventSource cannot
// set headers. The response streams until the client disconnects.
func (c *RealtimeController) handleSubscribeSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	err := c.svc.Subscribe(r.Context(), id, channelsParam(r),
		realtimesvc.SubscribeOptions{Filter: r.URL.Query().Get("filter")},
		sseSink{w: w, r: r})
	if err != nil {
		// Nothing streamed yet; the error maps onto a plain status.
		writeServiceError(w, err)
	}
}

// handleSubscribeWS opens a delivery channel over WebSocket. Same parameters
// as the SSE variant; events arrive as JSON text frames.
func (c *RealtimeController) handleSubscribeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	channels := channelsParam(r)
	filter := r.URL.Query().Get("filter")

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sink := newWSSink(r.Context(), conn)
	defer sink.Close()
	err = c.svc.Subscribe(sink.Context(), id, channels,
		realtimesvc.SubscribeOptions{Filter: filter}, sink)
	if err != nil {
		// The upgrade already succeeded, so the rejection goes in the close
		// frame; clients can then tell a refused channel from a network drop.
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
}

type publishReq struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// handlePublish fans a caller-supplied event out on a channel.
func (c *RealtimeController) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	var req publishReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	delivered, err := c.svc.Publish(id, req.Channel, req.Type, req.Payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"delivered": delivered})
}
