package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"wanderguide/pkg/location"
	"wanderguide/pkg/model"
)

// PositionSource is the location source as seen by the HTTP surface.
type PositionSource interface {
	Push(ctx context.Context, pos model.Position) error
	LastPosition() (model.Position, bool)
	Permission(ctx context.Context) location.Permission
}

// LocationHandler accepts pushed samples and reports location state.
type LocationHandler struct {
	source PositionSource
}

// NewLocationHandler creates a new LocationHandler.
func NewLocationHandler(s PositionSource) *LocationHandler {
	return &LocationHandler{source: s}
}

// PushRequest is one platform-pushed sample.
type PushRequest struct {
	Lat            *float64  `json:"lat"`
	Lon            *float64  `json:"lon"`
	AccuracyMeters float64   `json:"accuracy_m,omitempty"`
	CapturedAt     time.Time `json:"captured_at,omitempty"`
}

func (p PushRequest) position() (model.Position, error) {
	if p.Lat == nil || p.Lon == nil {
		return model.Position{}, errors.New("lat and lon are required")
	}
	if *p.Lat < -90 || *p.Lat > 90 || *p.Lon < -180 || *p.Lon > 180 {
		return model.Position{}, errors.New("coordinates out of range")
	}
	if p.AccuracyMeters < 0 {
		return model.Position{}, errors.New("accuracy_m must not be negative")
	}
	return model.Position{
		Lat:            *p.Lat,
		Lon:            *p.Lon,
		AccuracyMeters: p.AccuracyMeters,
		CapturedAt:     p.CapturedAt,
	}, nil
}

// HandlePush feeds a pushed sample into the position stream.
// POST /api/position
func (h *LocationHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	var req PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pos, err := req.position()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.source.Push(r.Context(), pos); err != nil {
		if errors.Is(err, location.ErrNotRunning) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleLast returns the most recent successful fix.
// GET /api/position
func (h *LocationHandler) HandleLast(w http.ResponseWriter, r *http.Request) {
	pos, ok := h.source.LastPosition()
	if !ok {
		writeError(w, http.StatusNotFound, "no position yet")
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// HandlePermission reports the location permission state.
// GET /api/location/permission
func (h *LocationHandler) HandlePermission(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]location.Permission{
		"permission": h.source.Permission(r.Context()),
	})
}
