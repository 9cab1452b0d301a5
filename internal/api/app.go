package api

import (
	"log/slog"
	"net/http"
	"time"

	"wanderguide/pkg/model"
)

// Resumer opens resume grace windows on active sessions.
type Resumer interface {
	Resume()
}

// Publisher accepts engine events.
type Publisher interface {
	Publish(ev model.Event)
}

// AppHandler receives app lifecycle notifications from the host platform.
type AppHandler struct {
	resumer Resumer
	events  Publisher
}

// NewAppHandler creates a new AppHandler. events may be nil.
func NewAppHandler(r Resumer, events Publisher) *AppHandler {
	return &AppHandler{resumer: r, events: events}
}

// HandleResume is called when the app returns to the foreground.
// POST /api/app/resume
func (h *AppHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.resumer.Resume()
	w.WriteHeader(http.StatusNoContent)
}

// HandleBackground records that the app went to the background. Sessions keep running.
// POST /api/app/background
func (h *AppHandler) HandleBackground(w http.ResponseWriter, r *http.Request) {
	slog.Info("App moved to background")
	if h.events != nil {
		h.events.Publish(model.Event{
			Type:      model.EventAppBackgrounded,
			Title:     "App backgrounded",
			Timestamp: time.Now(),
		})
	}
	w.WriteHeader(http.StatusNoContent)
}
