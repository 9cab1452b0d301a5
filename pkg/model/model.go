package model

import (
	"time"
)

// Position is a single location sample. It is immutable once captured.
type Position struct {
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	AccuracyMeters float64   `json:"accuracy_m"`
	CapturedAt     time.Time `json:"captured_at"`
}

// IsZero reports whether the position has never been set.
func (p Position) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0 && p.CapturedAt.IsZero()
}

// POI represents a point of interest supplied by the landmark catalog or a places provider.
type POI struct {
	ID       string  `json:"id"`       // Primary Key
	Name     string  `json:"name"`     // Display name
	Category string  `json:"category"` // e.g. "museum"
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Summary  string  `json:"summary"`          // Locally known one-line fact
	Rating   float64 `json:"rating,omitempty"` // 0 when unknown
	Source   string  `json:"source,omitempty"` // "catalog", "places"

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// DisplayName returns the best available name for the POI.
func (p *POI) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// ProximityReading is a POI paired with its distance from a position.
// It is recomputed for every sample and never persisted.
type ProximityReading struct {
	POI            POI       `json:"poi"`
	DistanceMeters float64   `json:"distance_m"`
	ComputedAt     time.Time `json:"computed_at"`
}

// Enrichment holds the extra detail fetched for a POI before it is announced.
type Enrichment struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Summary  string  `json:"summary"`
	Rating   float64 `json:"rating,omitempty"`
	Source   string  `json:"source"`
}

// DispatchKind distinguishes location-triggered updates from periodic pitches.
type DispatchKind string

const (
	DispatchContextual DispatchKind = "contextual"
	DispatchPitch      DispatchKind = "pitch"
)

// DispatchStatus is the outcome of a single send attempt.
type DispatchStatus string

const (
	DispatchSent    DispatchStatus = "sent"
	DispatchDropped DispatchStatus = "dropped"
)

// Dispatch records one attempt to deliver a contextual update.
type Dispatch struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"session_id"`
	POIID          string         `json:"poi_id"`
	POIName        string         `json:"poi_name"`
	Kind           DispatchKind   `json:"kind"`
	DistanceMeters float64        `json:"distance_m"`
	Text           string         `json:"text"`
	Status         DispatchStatus `json:"status"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// EventType names an engine event published to the UI bus and the events log.
type EventType string

const (
	EventSessionStarted    EventType = "session_started"
	EventSessionStopped    EventType = "session_stopped"
	EventTierEntered       EventType = "tier_entered"
	EventTierEscalated     EventType = "tier_escalated"
	EventTierCleared       EventType = "tier_cleared"
	EventDispatchSent      EventType = "dispatch_sent"
	EventDispatchDropped   EventType = "dispatch_dropped"
	EventLocationFailed    EventType = "location_failed"
	EventPermissionChanged EventType = "permission_changed"
	EventAppResumed        EventType = "app_resumed"
	EventAppBackgrounded   EventType = "app_backgrounded"
)

// Event is a notable engine occurrence.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
