package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"wanderguide/pkg/version"
)

// Handlers groups the endpoint handlers served by NewServer. Nil handlers are not mounted.
type Handlers struct {
	Sessions  *SessionHandler
	App       *AppHandler
	Location  *LocationHandler
	Config    *ConfigHandler
	Stats     *StatsHandler
	Events    *EventsHandler
	Landmarks *LandmarkHandler
}

// NewServer creates and configures the HTTP server.
// shutdown is called asynchronously after POST /api/shutdown has been answered.
func NewServer(addr string, h Handlers, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Sessions
	if h.Sessions != nil {
		mux.HandleFunc("POST /api/sessions", h.Sessions.HandleStart)
		mux.HandleFunc("GET /api/sessions", h.Sessions.HandleList)
		mux.HandleFunc("GET /api/sessions/{id}", h.Sessions.HandleGet)
		mux.HandleFunc("DELETE /api/sessions/{id}", h.Sessions.HandleStop)
		mux.HandleFunc("GET /api/sessions/{id}/dispatches", h.Sessions.HandleDispatches)
		mux.HandleFunc("POST /api/sessions/{id}/pitch", h.Sessions.HandlePitch)
	}

	// 3. App lifecycle
	if h.App != nil {
		mux.HandleFunc("POST /api/app/resume", h.App.HandleResume)
		mux.HandleFunc("POST /api/app/background", h.App.HandleBackground)
	}

	// 4. Location
	if h.Location != nil {
		mux.HandleFunc("POST /api/position", h.Location.HandlePush)
		mux.HandleFunc("GET /api/position", h.Location.HandleLast)
		mux.HandleFunc("GET /api/location/permission", h.Location.HandlePermission)
	}

	// 5. Config
	if h.Config != nil {
		mux.HandleFunc("/api/config", h.Config.HandleConfig)
	}

	// 6. Diagnostics
	if h.Stats != nil {
		mux.Handle("GET /api/stats", h.Stats)
	}
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.HandleFunc("GET /api/log/event", handleLatestEvent)

	if h.Events != nil {
		mux.Handle("GET /api/events", h.Events)
	}
	if h.Landmarks != nil {
		mux.Handle("GET /api/landmarks", h.Landmarks)
	}

	// 7. Shutdown Endpoint
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		if shutdown == nil {
			return
		}
		// Let the response flush first.
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
