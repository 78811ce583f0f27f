package controllers

import (
	"encoding/json"
	"net/http"

	realtimesvc "github.com/storyhaven/ripple/internal/services/realtime"
)

// StoriesController handles story, draft, notification, and unread
// endpoints.
type StoriesController struct {
	svc *realtimesvc.Service
}

// NewStoriesController creates a new stories controller.
func NewStoriesController(svc *realtimesvc.Service) *StoriesController {
	return &StoriesController{svc: svc}
}

// RegisterRoutes registers story routes with the given mux.
func (c *StoriesController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/stories/create", c.handleCreate)
	mux.HandleFunc("/v1/stories/draft", c.handleDraft)
	mux.HandleFunc("/v1/stories/draft/status", c.handleDraftStatus)
	mux.HandleFunc("/v1/notify", c.handleNotify)
	mux.HandleFunc("/v1/unread", c.handleUnread)
	mux.HandleFunc("/v1/unread/read", c.handleMarkRead)
}

type createStoryReq struct {
	StoryID string `json:"storyId"`
	Title   string `json:"title"`
}

// handleCreate registers a story owned by the caller. Omitting storyId
// generates one.
func (c *StoriesController) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	var req createStoryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	m, err := c.svc.CreateStory(id, req.StoryID, req.Title)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(m)
}

type draftReq struct {
	StoryID string `json:"storyId"`
	Content string `json:"content"`
}

// handleDraft buffers a draft edit (POST) or returns the last saved content
// (GET). The POST returns as soon as the edit is buffered; persistence is
// debounced.
func (c *StoriesController) handleDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req draftReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StoryID == "" {
			writeError(w, http.StatusBadRequest, "storyId required")
			return
		}
		if err := c.svc.EditDraft(id, req.StoryID, []byte(req.Content)); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	case http.MethodGet:
		storyID := r.URL.Query().Get("storyId")
		if storyID == "" {
			writeError(w, http.StatusBadRequest, "storyId required")
			return
		}
		b, err := c.svc.Draft(storyID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, map[string]any{"storyId": storyID, "content": string(b)})
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleDraftStatus reports the autosave session state for a story.
func (c *StoriesController) handleDraftStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if _, ok := identityFrom(r); !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	storyID := r.URL.Query().Get("storyId")
	if storyID == "" {
		writeError(w, http.StatusBadRequest, "storyId required")
		return
	}
	state, err := c.svc.DraftStatus(storyID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"storyId": storyID, "state": state.String()})
}

type notifyReq struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// handleNotify publishes on behalf of another subsystem. Notifications on
// user/ channels bump the target's unread counter.
func (c *StoriesController) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if _, ok := identityFrom(r); !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	var req notifyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Channel == "" {
		writeError(w, http.StatusBadRequest, "channel required")
		return
	}
	if err := c.svc.Notify(req.Channel, req.Type, req.Payload); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleUnread returns the caller's unread counter.
func (c *StoriesController) handleUnread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	writeJSON(w, map[string]any{"count": c.svc.Unread(id)})
}

// handleMarkRead clears the caller's unread counter.
func (c *StoriesController) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, ok := identityFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	if err := c.svc.MarkRead(id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeNoContent(w)
}
