package controllers

import (
	"encoding/json"
	"net/http"

	realtimesvc "github.com/storyhaven/ripple/internal/services/realtime"
)

// TypingController handles the typing presence endpoints.
type TypingController struct {
	svc *realtimesvc.Service
}

// NewTypingController creates a new typing controller.
func NewTypingController(svc *realtimesvc.Service) *TypingController {
	return &TypingController{svc: svc}
}

// RegisterRoutes registers typing routes with the given mux.
func (c *TypingController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/typing", c.handleTyping)
}

type typingReq struct {
	StoryID string `json:"storyId"`
	// IsTyping defaults to true; an explicit false is equivalent to DELETE.
	IsTyping *bool `json:"isTyping"`
}

// handleTyping dispatches on method: POST starts (or renews) a typing entry
// (or stops it with isTyping=false), DELETE stops it, GET lists who else is
// typing.
func (c *TypingController) handleTyping(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	switch r.Method {
	case http.MethodPost, http.MethodDelete:
		var req typingReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			req = typingReq{}
		}
		if req.StoryID == "" {
			req.StoryID = r.URL.Query().Get("storyId")
		}
		if req.StoryID == "" {
			writeError(w, http.StatusBadRequest, "storyId required")
			return
		}
		start := r.Method == http.MethodPost && (req.IsTyping == nil || *req.IsTyping)
		var err error
		if start {
			err = c.svc.StartTyping(id, req.StoryID)
		} else {
			err = c.svc.StopTyping(id, req.StoryID)
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeNoContent(w)
	case http.MethodGet:
		storyID := r.URL.Query().Get("storyId")
		if storyID == "" {
			writeError(w, http.StatusBadRequest, "storyId required")
			return
		}
		typers, err := c.svc.ActiveTypers(id, storyID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, map[string]any{"storyId": storyID, "typers": typers})
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
