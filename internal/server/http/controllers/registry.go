package controllers

import (
	"net/http"

	"github.com/storyhaven/ripple/internal/runtime"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes.
type ControllerRegistry struct {
	general  *GeneralController
	realtime *RealtimeController
	typing   *TypingController
	stories  *StoriesController
}

// NewControllerRegistry creates a new controller registry over the runtime.
func NewControllerRegistry(rt *runtime.Runtime) *ControllerRegistry {
	svc := rt.Realtime()
	return &ControllerRegistry{
		general:  NewGeneralController(rt),
		realtime: NewRealtimeController(svc),
		typing:   NewTypingController(svc),
		stories:  NewStoriesController(svc),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.realtime.RegisterRoutes(mux)
	r.typing.RegisterRoutes(mux)
	r.stories.RegisterRoutes(mux)
}
