package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	DB         DBConfig         `yaml:"db"`
	Server     ServerConfig     `yaml:"server"`
	Request    RequestConfig    `yaml:"request"`
	Location   LocationConfig   `yaml:"location"`
	Proximity  ProximityConfig  `yaml:"proximity"`
	Grace      GraceConfig      `yaml:"grace"`
	Pitch      PitchConfig      `yaml:"pitch"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Cache      CacheConfig      `yaml:"cache"`
	Places     PlacesConfig     `yaml:"places"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	LLM        LLMConfig        `yaml:"llm"`
	Channel    ChannelConfig    `yaml:"channel"`
	Triggers   TriggersConfig   `yaml:"triggers"`
	Mock       MockConfig       `yaml:"mock"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	Gemini   LogSettings `yaml:"gemini"`
	Events   LogSettings `yaml:"events"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// LocationConfig holds settings for the location source.
type LocationConfig struct {
	Provider           string   `yaml:"provider"` // "mock", "push"
	PollInterval       Duration `yaml:"poll_interval"`
	FixTimeout         Duration `yaml:"fix_timeout"`
	HighAccuracy       bool     `yaml:"high_accuracy"`
	PermissionCacheTTL Duration `yaml:"permission_cache_ttl"`
	PermissionRetries  int      `yaml:"permission_retries"`
	PushMaxAge         Duration `yaml:"push_max_age"`
}

// TierConfig is one named distance band.
type TierConfig struct {
	Name        string   `yaml:"name"`
	MaxDistance Distance `yaml:"max_distance"`
}

// ProximityConfig holds the nearby-POI thresholds.
type ProximityConfig struct {
	ContextualRadius Distance     `yaml:"contextual_radius"`
	Tiers            []TierConfig `yaml:"tiers"`
	EscalateTiers    bool         `yaml:"escalate_tiers"`
	MovementEpsilon  Distance     `yaml:"movement_epsilon"`
	ReapproachRatio  float64      `yaml:"reapproach_ratio"`
	ResultLimit      int          `yaml:"result_limit"`
	Categories       []string     `yaml:"categories"`
}

// GraceConfig holds the suppression window durations.
type GraceConfig struct {
	Initialization      Duration `yaml:"initialization"`
	Movement            Duration `yaml:"movement"`
	Resume              Duration `yaml:"resume"`
	SignificantMovement Distance `yaml:"significant_movement"`
}

// PitchConfig holds settings for the periodic "did you know" pitch.
type PitchConfig struct {
	Enabled     bool     `yaml:"enabled"`
	IntervalMin Duration `yaml:"interval_min"`
	IntervalMax Duration `yaml:"interval_max"`
	Cooldown    Duration `yaml:"cooldown"`
	Radius      Distance `yaml:"radius"`
	Candidates  int      `yaml:"candidates"`
}

// DispatchConfig holds the timeouts for one dispatch cycle.
type DispatchConfig struct {
	LookupTimeout     Duration `yaml:"lookup_timeout"`
	EnrichmentTimeout Duration `yaml:"enrichment_timeout"`
	SendTimeout       Duration `yaml:"send_timeout"`
}

// CacheConfig holds settings for the in-memory TTL/LRU caches.
type CacheConfig struct {
	Capacity    int      `yaml:"capacity"`
	PositiveTTL Duration `yaml:"positive_ttl"`
	NegativeTTL Duration `yaml:"negative_ttl"`
	HTTPTTL     Duration `yaml:"http_ttl"` // Age after which persisted HTTP responses are pruned
}

// PlacesConfig holds settings for the nearby-places provider.
type PlacesConfig struct {
	Provider     string `yaml:"provider"` // "wikipedia", "http", "catalog"
	Endpoint     string `yaml:"endpoint"`
	Key          string `yaml:"key"`
	CatalogPath  string `yaml:"catalog_path"`
	H3Resolution int    `yaml:"h3_resolution"`
	WatchCatalog bool   `yaml:"watch_catalog"`
	Language     string `yaml:"language"`
}

// EnrichmentConfig holds settings for POI enrichment.
type EnrichmentConfig struct {
	Providers []string `yaml:"providers"` // Tried in order: "catalog", "wikipedia", "llm"
	Language  string   `yaml:"language"`
}

// LLMConfig holds settings for the Large Language Model provider.
type LLMConfig struct {
	Provider string            `yaml:"provider"` // "gemini"
	Model    string            `yaml:"model"`
	Key      string            `yaml:"key"`
	Profiles map[string]string `yaml:"profiles"` // Map of intent -> model
}

// ChannelConfig holds settings for the conversation channel.
type ChannelConfig struct {
	Provider string `yaml:"provider"` // "websocket", "log"
	URL      string `yaml:"url"`
}

// TriggersConfig holds maintenance job thresholds.
type TriggersConfig struct {
	PrefetchDistance Distance `yaml:"prefetch_distance"`
	CleanupInterval  Duration `yaml:"cleanup_interval"`
	Tick             Duration `yaml:"tick"`
}

// WaypointConfig is one point of a mock route.
type WaypointConfig struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// MockConfig holds settings for the simulated walker.
type MockConfig struct {
	StartLat       float64          `yaml:"start_lat"`
	StartLon       float64          `yaml:"start_lon"`
	SpeedMps       float64          `yaml:"speed_mps"`
	Heading        float64          `yaml:"heading"`
	AccuracyMeters float64          `yaml:"accuracy_meters"`
	JitterMeters   float64          `yaml:"jitter_meters"`
	Denied         bool             `yaml:"denied"`
	Route          []WaypointConfig `yaml:"route"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
			Gemini: LogSettings{
				Path:  "./logs/gemini.log",
				Level: "INFO",
			},
			Events: LogSettings{
				Path:  "./logs/events.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path: "./data/wanderguide.db",
		},
		Server: ServerConfig{
			Address: "localhost:1930",
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(15 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(1 * time.Second),
				MaxDelay:  Duration(30 * time.Second),
			},
		},
		Location: LocationConfig{
			Provider:           "mock",
			PollInterval:       Duration(20 * time.Second),
			FixTimeout:         Duration(12 * time.Second),
			HighAccuracy:       true,
			PermissionCacheTTL: Duration(10 * time.Second),
			PermissionRetries:  3,
			PushMaxAge:         Duration(2 * time.Minute),
		},
		Proximity: ProximityConfig{
			ContextualRadius: Distance(150),
			Tiers: []TierConfig{
				{Name: "very_close", MaxDistance: Distance(30)},
				{Name: "close", MaxDistance: Distance(75)},
				{Name: "nearby", MaxDistance: Distance(150)},
			},
			EscalateTiers:   false,
			MovementEpsilon: Distance(50),
			ReapproachRatio: 0.8,
			ResultLimit:     20,
		},
		Grace: GraceConfig{
			Initialization:      Duration(15 * time.Second),
			Movement:            Duration(8 * time.Second),
			Resume:              Duration(5 * time.Second),
			SignificantMovement: Distance(150),
		},
		Pitch: PitchConfig{
			Enabled:     true,
			IntervalMin: Duration(45 * time.Second),
			IntervalMax: Duration(60 * time.Second),
			Cooldown:    Duration(10 * time.Minute),
			Radius:      Distance(500),
			Candidates:  3,
		},
		Dispatch: DispatchConfig{
			LookupTimeout:     Duration(8 * time.Second),
			EnrichmentTimeout: Duration(10 * time.Second),
			SendTimeout:       Duration(5 * time.Second),
		},
		Cache: CacheConfig{
			Capacity:    256,
			PositiveTTL: Duration(30 * time.Minute),
			NegativeTTL: Duration(2 * time.Minute),
			HTTPTTL:     Duration(7 * Day),
		},
		Places: PlacesConfig{
			Provider:     "wikipedia",
			CatalogPath:  "./data/landmarks.geojson",
			H3Resolution: 8,
			WatchCatalog: true,
			Language:     "en",
		},
		Enrichment: EnrichmentConfig{
			Providers: []string{"catalog", "wikipedia", "llm"},
			Language:  "en",
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash-lite",
			Profiles: map[string]string{
				"enrichment": "gemini-2.5-flash-lite",
			},
		},
		Channel: ChannelConfig{
			Provider: "log",
		},
		Triggers: TriggersConfig{
			PrefetchDistance: Distance(500),
			CleanupInterval:  Duration(1 * time.Minute),
			Tick:             Duration(1 * time.Second),
		},
		Mock: MockConfig{
			StartLat:       50.0865,
			StartLon:       14.4114,
			SpeedMps:       1.4,
			AccuracyMeters: 8,
			JitterMeters:   2,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// An existing file is merged over the defaults and never written back.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnv(cfg)
	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills secrets from the environment when the file leaves them empty.
func applyEnv(cfg *Config) {
	if cfg.LLM.Key == "" {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			cfg.LLM.Key = key
		}
	}
	if cfg.Places.Key == "" {
		if key := os.Getenv("PLACES_API_KEY"); key != "" {
			cfg.Places.Key = key
		}
	}
}

// expandPaths resolves $VAR references in file paths. The file on disk keeps the raw form.
func expandPaths(cfg *Config) {
	for _, p := range []*string{
		&cfg.DB.Path,
		&cfg.Places.CatalogPath,
		&cfg.Log.Server.Path,
		&cfg.Log.Requests.Path,
		&cfg.Log.Gemini.Path,
		&cfg.Log.Events.Path,
	} {
		*p = os.ExpandEnv(*p)
	}
}

var langRe = regexp.MustCompile(`^[a-z]{2,3}$`)

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Proximity.ContextualRadius <= 0 {
		return fmt.Errorf("proximity.contextual_radius must be positive")
	}
	if r := c.Proximity.ReapproachRatio; r <= 0 || r >= 1 {
		return fmt.Errorf("proximity.reapproach_ratio must be in (0, 1), got %v", r)
	}
	seen := make(map[string]bool, len(c.Proximity.Tiers))
	for _, t := range c.Proximity.Tiers {
		if t.Name == "" || t.MaxDistance <= 0 {
			return fmt.Errorf("invalid tier %q: name and positive max_distance required", t.Name)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate tier %q", t.Name)
		}
		seen[t.Name] = true
	}
	if c.Pitch.IntervalMax < c.Pitch.IntervalMin {
		return fmt.Errorf("pitch.interval_max must not be below pitch.interval_min")
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive")
	}
	if c.Places.H3Resolution < 0 || c.Places.H3Resolution > 15 {
		return fmt.Errorf("places.h3_resolution must be in [0, 15], got %d", c.Places.H3Resolution)
	}
	if c.Places.Language != "" && !langRe.MatchString(c.Places.Language) {
		return fmt.Errorf("invalid places.language %q", c.Places.Language)
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# WanderGuide Configuration
# -------------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), mi (miles)

`)
	data = append(header, data...)

	reProvider := regexp.MustCompile(`(?m)^location:\n(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("location:\n${1}# Options: mock, push\n${1}provider:"))

	reChannel := regexp.MustCompile(`(?m)^channel:\n(\s+)provider:`)
	data = reChannel.ReplaceAll(data, []byte("channel:\n${1}# Options: websocket, log\n${1}provider:"))

	reRatio := regexp.MustCompile(`(?m)^(\s+)reapproach_ratio:`)
	data = reRatio.ReplaceAll(data, []byte("${1}# A mentioned POI is announced again once closer than ratio * last announced distance\n${1}reapproach_ratio:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
