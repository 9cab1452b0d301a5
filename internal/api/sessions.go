package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"wanderguide/pkg/core"
	"wanderguide/pkg/model"
	"wanderguide/pkg/session"
)

const defaultDispatchLimit = 50

// Engine is the part of the dispatcher the session endpoints drive.
type Engine interface {
	Start(id string) (*session.State, error)
	Stop(id string) error
	View(id string) (core.SessionView, error)
	Dispatches(ctx context.Context, id string, limit int) ([]*model.Dispatch, error)
	PitchNow(ctx context.Context, id string) (core.CycleResult, error)
	Sessions() *session.Manager
}

// SessionHandler serves the conversation session endpoints.
type SessionHandler struct {
	engine Engine
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(e Engine) *SessionHandler {
	return &SessionHandler{engine: e}
}

// StartRequest is the optional body of POST /api/sessions.
type StartRequest struct {
	ID string `json:"id,omitempty"`
}

// HandleStart starts (or restarts) a session. A uuid is generated when no id is given.
// POST /api/sessions
func (h *SessionHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	if _, err := h.engine.Start(req.ID); err != nil {
		if errors.Is(err, core.ErrDispatcherClosed) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	view, err := h.engine.View(req.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// HandleList returns the ids of all active sessions.
// GET /api/sessions
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ids := h.engine.Sessions().IDs()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

// HandleGet returns the ledger snapshot and open grace windows of a session.
// GET /api/sessions/{id}
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.View(r.PathValue("id"))
	if err != nil {
		h.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleStop ends a session and discards its state.
// DELETE /api/sessions/{id}
func (h *SessionHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Stop(r.PathValue("id")); err != nil {
		h.sessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDispatches lists the recorded dispatch attempts of a session, newest first.
// GET /api/sessions/{id}/dispatches?limit=N
func (h *SessionHandler) HandleDispatches(w http.ResponseWriter, r *http.Request) {
	limit := defaultDispatchLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.engine.Dispatches(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		slog.Error("Failed to list dispatches", "session", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list dispatches")
		return
	}
	if list == nil {
		list = []*model.Dispatch{}
	}
	writeJSON(w, http.StatusOK, list)
}

// HandlePitch runs a periodic pitch immediately, subject to the usual gates.
// POST /api/sessions/{id}/pitch
func (h *SessionHandler) HandlePitch(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.PitchNow(r.Context(), r.PathValue("id"))
	if err != nil {
		h.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SessionHandler) sessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrDispatcherClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
