package location

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"wanderguide/pkg/cache"
)

const permissionKey = "permission"

// PermissionConfig tunes the permission checker.
type PermissionConfig struct {
	CacheTTL     time.Duration // how long a known state is trusted
	MaxRetries   int           // ambiguous probe failures before giving up with "unknown"
	RetryDelay   time.Duration
	ProbeTimeout time.Duration
	Now          func() time.Time
}

// PermissionChecker tracks the location permission state with a short cache.
// When the provider cannot be asked directly it probes with a low-accuracy fix
// and infers the state from the error code.
type PermissionChecker struct {
	provider Provider
	cfg      PermissionConfig
	cache    *cache.Cache[string, Permission]
	logger   *slog.Logger

	mu      sync.Mutex
	current Permission
}

// NewPermissionChecker creates a checker.
func NewPermissionChecker(p Provider, cfg PermissionConfig) *PermissionChecker {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	return &PermissionChecker{
		provider: p,
		cfg:      cfg,
		cache: cache.New[string, Permission](cache.Options{
			Capacity:    1,
			PositiveTTL: cfg.CacheTTL,
			NegativeTTL: cfg.CacheTTL / 2,
			Now:         cfg.Now,
		}),
		logger:  slog.With("component", "permission"),
		current: PermissionPrompt,
	}
}

// Check returns the current permission state, consulting the platform at most once per cache TTL.
func (c *PermissionChecker) Check(ctx context.Context) Permission {
	if p, ok := c.cache.Get(permissionKey); ok {
		return p
	}

	if q, ok := c.provider.(PermissionQuerier); ok {
		p, err := q.QueryPermission(ctx)
		if err == nil && p != "" {
			c.Record(p)
			return p
		}
		c.logger.Debug("Permission query failed, probing", "error", err)
	}

	return c.probe(ctx)
}

func (c *PermissionChecker) probe(ctx context.Context) Permission {
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		_, err := c.provider.CurrentPosition(ctx, c.cfg.ProbeTimeout, AccuracyLow)
		err = Classify(err)

		switch {
		case err == nil:
			c.Record(PermissionGranted)
			return PermissionGranted
		case errors.Is(err, ErrPermissionDenied):
			c.Record(PermissionDenied)
			return PermissionDenied
		case errors.Is(err, ErrTimeout):
			// The platform accepted the request, so access itself is allowed.
			c.Record(PermissionGranted)
			return PermissionGranted
		}

		c.logger.Debug("Ambiguous permission probe", "attempt", attempt, "error", err)
		if ctx.Err() != nil {
			break
		}
		if attempt < c.cfg.MaxRetries && c.cfg.RetryDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.RetryDelay):
			}
		}
	}

	c.set(PermissionUnknown, false)
	return PermissionUnknown
}

// Record stores a state learned elsewhere (e.g. from a regular fix) and refreshes the cache.
func (c *PermissionChecker) Record(p Permission) {
	c.set(p, p != PermissionUnknown)
}

func (c *PermissionChecker) set(p Permission, positive bool) {
	c.cache.Set(permissionKey, p, positive)

	c.mu.Lock()
	old := c.current
	c.current = p
	c.mu.Unlock()

	if old != p {
		c.logger.Info("Location permission changed", "from", old, "to", p)
	}
}

// Current returns the last known state without touching the platform.
func (c *PermissionChecker) Current() Permission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Invalidate forgets the cached state so the next Check asks the platform again.
func (c *PermissionChecker) Invalidate() {
	c.cache.Clear()
}
