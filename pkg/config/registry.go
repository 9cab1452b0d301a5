package config

// Persistent state keys (Registry)
const (
	KeyContextualRadius = "contextual_radius"
	KeyEscalateTiers    = "escalate_tiers"
	KeyPitchEnabled     = "pitch_enabled"
	KeyPitchIntervalMin = "pitch_interval_min"
	KeyPitchIntervalMax = "pitch_interval_max"
	KeyPitchCooldown    = "pitch_cooldown"
	KeyPitchRadius      = "pitch_radius"
	KeyLocationProvider = "location_provider"
	KeyLanguage         = "language"
)
