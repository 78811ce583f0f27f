package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	realtimesvc "github.com/storyhaven/ripple/internal/services/realtime"
)

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeNoContent writes a 204 No Content response.
func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps service errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, realtimesvc.ErrBadChannel),
		errors.Is(err, realtimesvc.ErrBadFilter),
		errors.Is(err, realtimesvc.ErrPayloadTooLarge):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, realtimesvc.ErrUnauthorizedChannel):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, realtimesvc.ErrUnknownStory):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, realtimesvc.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// identityFrom resolves the caller identity from request headers, falling
// back to query parameters for transports that cannot set headers
// (EventSource). Missing identity is a 401 at the call sites.
func identityFrom(r *http.Request) (realtimesvc.Identity, bool) {
	id := realtimesvc.Identity{
		UserID:      r.Header.Get("X-User-ID"),
		DisplayName: r.Header.Get("X-User-Name"),
	}
	if id.UserID == "" {
		id.UserID = r.URL.Query().Get("user_id")
		id.DisplayName = r.URL.Query().Get("user_name")
	}
	if id.UserID == "" {
		return realtimesvc.Identity{}, false
	}
	if id.DisplayName == "" {
		id.DisplayName = id.UserID
	}
	return id, true
}
