package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"wanderguide/pkg/config"
	"wanderguide/pkg/store"
)

var languageRe = regexp.MustCompile(`^[a-z]{2,3}$`)

// ConfigHandler handles configuration API requests.
type ConfigHandler struct {
	store   store.StateStore
	cfgProv config.Provider
	appCfg  *config.Config
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(st store.StateStore, cfg config.Provider) *ConfigHandler {
	return &ConfigHandler{
		store:   st,
		cfgProv: cfg,
		appCfg:  cfg.AppConfig(),
	}
}

// ConfigResponse represents the config API response.
type ConfigResponse struct {
	ContextualRadius float64  `json:"contextual_radius"`
	EscalateTiers    bool     `json:"escalate_tiers"`
	PitchEnabled     bool     `json:"pitch_enabled"`
	PitchIntervalMin string   `json:"pitch_interval_min"`
	PitchIntervalMax string   `json:"pitch_interval_max"`
	PitchCooldown    string   `json:"pitch_cooldown"`
	PitchRadius      float64  `json:"pitch_radius"`
	LocationProvider string   `json:"location_provider"`
	Language         string   `json:"language"`
	Tiers            []string `json:"tiers"`
	PlacesProvider   string   `json:"places_provider"`
	Enrichment       []string `json:"enrichment"`
	ChannelProvider  string   `json:"channel_provider"`
}

// ConfigRequest represents the config API request for updates.
// Pointer fields distinguish false/zero from missing; an explicit null removes the override.
type ConfigRequest struct {
	ContextualRadius *float64 `json:"contextual_radius,omitempty"`
	EscalateTiers    *bool    `json:"escalate_tiers,omitempty"`
	PitchEnabled     *bool    `json:"pitch_enabled,omitempty"`
	PitchIntervalMin string   `json:"pitch_interval_min,omitempty"`
	PitchIntervalMax string   `json:"pitch_interval_max,omitempty"`
	PitchCooldown    string   `json:"pitch_cooldown,omitempty"`
	PitchRadius      *float64 `json:"pitch_radius,omitempty"`
	LocationProvider string   `json:"location_provider,omitempty"`
	Language         string   `json:"language,omitempty"`
}

// HandleConfig is a unified handler for all config-related methods, facilitating CORS/OPTIONS.
func (h *ConfigHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.HandleGetConfig(w, r)
	case http.MethodPut, http.MethodPost:
		h.HandleSetConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleGetConfig returns the effective configuration.
func (h *ConfigHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	resp := h.getConfigResponse(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode config response", "error", err)
	}
}

func (h *ConfigHandler) getConfigResponse(ctx context.Context) ConfigResponse {
	lo, hi := h.cfgProv.PitchInterval(ctx)

	tiers := make([]string, 0, len(h.appCfg.Proximity.Tiers))
	for _, t := range h.appCfg.Proximity.Tiers {
		tiers = append(tiers, fmt.Sprintf("%s<=%.0fm", t.Name, t.MaxDistance.Meters()))
	}

	return ConfigResponse{
		ContextualRadius: h.cfgProv.ContextualRadius(ctx),
		EscalateTiers:    h.cfgProv.EscalateTiers(ctx),
		PitchEnabled:     h.cfgProv.PitchEnabled(ctx),
		PitchIntervalMin: lo.String(),
		PitchIntervalMax: hi.String(),
		PitchCooldown:    h.cfgProv.PitchCooldown(ctx).String(),
		PitchRadius:      h.cfgProv.PitchRadius(ctx),
		LocationProvider: h.cfgProv.LocationProvider(ctx),
		Language:         h.cfgProv.Language(ctx),
		Tiers:            tiers,
		PlacesProvider:   h.appCfg.Places.Provider,
		Enrichment:       h.appCfg.Enrichment.Providers,
		ChannelProvider:  h.appCfg.Channel.Provider,
	}
}

// HandleSetConfig validates and persists runtime overrides, then returns the effective configuration.
func (h *ConfigHandler) HandleSetConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer func() { _ = r.Body.Close() }()

	var req ConfigRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// Validate everything before writing anything.
	if err := h.validate(ctx, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.applyProximityUpdates(ctx, &req, body)
	h.applyPitchUpdates(ctx, &req, body)
	h.applyGeneralUpdates(ctx, &req)

	h.HandleGetConfig(w, r)
}

func (h *ConfigHandler) validate(ctx context.Context, req *ConfigRequest) error {
	if req.ContextualRadius != nil && *req.ContextualRadius <= 0 {
		return fmt.Errorf("contextual_radius must be positive")
	}
	if req.PitchRadius != nil && *req.PitchRadius <= 0 {
		return fmt.Errorf("pitch_radius must be positive")
	}

	curLo, curHi := h.cfgProv.PitchInterval(ctx)
	lo, err := parseOptionalDuration("pitch_interval_min", req.PitchIntervalMin, curLo)
	if err != nil {
		return err
	}
	hi, err := parseOptionalDuration("pitch_interval_max", req.PitchIntervalMax, curHi)
	if err != nil {
		return err
	}
	if hi < lo {
		return fmt.Errorf("pitch_interval_max must not be below pitch_interval_min")
	}
	if _, err := parseOptionalDuration("pitch_cooldown", req.PitchCooldown, 0); err != nil {
		return err
	}

	if req.LocationProvider != "" && req.LocationProvider != "mock" && req.LocationProvider != "push" {
		return fmt.Errorf("location_provider must be mock or push")
	}
	if req.Language != "" && !languageRe.MatchString(req.Language) {
		return fmt.Errorf("language must be an ISO 639 code")
	}
	return nil
}

func parseOptionalDuration(field, val string, fallback time.Duration) (time.Duration, error) {
	if val == "" {
		return fallback, nil
	}
	d, err := config.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return d, nil
}

func (h *ConfigHandler) applyProximityUpdates(ctx context.Context, req *ConfigRequest, body []byte) {
	if req.ContextualRadius != nil {
		h.updateDistanceState(ctx, config.KeyContextualRadius, *req.ContextualRadius)
	} else if containsJSONKey(body, "contextual_radius") {
		h.resetState(ctx, config.KeyContextualRadius)
	}
	if req.EscalateTiers != nil {
		h.updateState(ctx, config.KeyEscalateTiers, config.FormatBool(*req.EscalateTiers))
	}
}

func (h *ConfigHandler) applyPitchUpdates(ctx context.Context, req *ConfigRequest, body []byte) {
	if req.PitchEnabled != nil {
		h.updateState(ctx, config.KeyPitchEnabled, config.FormatBool(*req.PitchEnabled))
	}
	if req.PitchIntervalMin != "" {
		h.updateState(ctx, config.KeyPitchIntervalMin, req.PitchIntervalMin)
	}
	if req.PitchIntervalMax != "" {
		h.updateState(ctx, config.KeyPitchIntervalMax, req.PitchIntervalMax)
	}
	if req.PitchCooldown != "" {
		h.updateState(ctx, config.KeyPitchCooldown, req.PitchCooldown)
	}
	if req.PitchRadius != nil {
		h.updateDistanceState(ctx, config.KeyPitchRadius, *req.PitchRadius)
	} else if containsJSONKey(body, "pitch_radius") {
		h.resetState(ctx, config.KeyPitchRadius)
	}
}

func (h *ConfigHandler) applyGeneralUpdates(ctx context.Context, req *ConfigRequest) {
	if req.LocationProvider != "" {
		h.updateState(ctx, config.KeyLocationProvider, req.LocationProvider)
	}
	if req.Language != "" {
		h.updateState(ctx, config.KeyLanguage, req.Language)
	}
}

func (h *ConfigHandler) updateState(ctx context.Context, key, val string) {
	if err := h.store.SetState(ctx, key, val); err != nil {
		slog.Error("Failed to save state", "key", key, "error", err)
	} else {
		slog.Debug("Config updated", key, val)
	}
}

func (h *ConfigHandler) updateDistanceState(ctx context.Context, key string, meters float64) {
	h.updateState(ctx, key, fmt.Sprintf("%gm", meters))
}

func (h *ConfigHandler) resetState(ctx context.Context, key string) {
	if err := h.store.DeleteState(ctx, key); err != nil {
		slog.Error("Failed to reset state", "key", key, "error", err)
	} else {
		slog.Debug("Config override removed", "key", key)
	}
}

func containsJSONKey(body []byte, key string) bool {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return false
	}
	_, ok := m[key]
	return ok
}
