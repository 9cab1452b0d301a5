// Package probe runs startup checks against the engine's dependencies.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultTimeout = 5 * time.Second

// CheckFunc is a function that performs a health check.
// It returns nil if the check passes, or an error if it fails.
type CheckFunc func(ctx context.Context) error

// Probe represents a single startup check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool          // If true, a failure here should prevent application startup.
	Timeout  time.Duration // 0 means 5s
}

// Result holds the outcome of a single probe.
type Result struct {
	Probe    Probe         `json:"-"`
	Name     string        `json:"name"`
	Critical bool          `json:"critical"`
	Error    error         `json:"-"`
	Message  string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Passed reports whether the check succeeded.
func (r Result) Passed() bool { return r.Error == nil }

// Run executes the probes concurrently and returns their results in input order.
// Every check gets its own timeout so one hanging dependency cannot stall startup.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))

	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			timeout := p.Timeout
			if timeout <= 0 {
				timeout = defaultTimeout
			}
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			err := p.Check(checkCtx)
			results[i] = Result{
				Probe:    p,
				Name:     p.Name,
				Critical: p.Critical,
				Error:    err,
				Duration: time.Since(start),
			}
			if err != nil {
				results[i].Message = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// AnalyzeResults logs the results and returns a combined error if critical probes failed.
func AnalyzeResults(results []Result) error {
	var criticalErrors []error

	slog.Info("Startup Checks Summary")

	for _, r := range results {
		status := "PASS"
		if r.Error != nil {
			status = "FAIL"
		}

		msg := fmt.Sprintf("[%s] %-20s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		switch {
		case r.Error == nil:
			slog.Info(msg)
		case r.Probe.Critical:
			slog.Error(msg, "error", r.Error)
			criticalErrors = append(criticalErrors, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
		default:
			slog.Warn(msg, "error", r.Error)
		}
	}

	return errors.Join(criticalErrors...)
}

// Pinger is implemented by the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database checks that the database answers. It is critical.
func Database(p Pinger) Probe {
	return Probe{Name: "database", Critical: true, Check: p.Ping}
}

// Endpoint checks that an HTTP service is reachable. Any response, even an
// error status, counts as reachable; only transport failures fail the check.
func Endpoint(name string, client *http.Client, url string) Probe {
	if client == nil {
		client = http.DefaultClient
	}
	return Probe{
		Name: name,
		Check: func(ctx context.Context) error {
			if url == "" {
				return errors.New("no endpoint configured")
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, http.NoBody)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			_ = resp.Body.Close()
			if resp.StatusCode >= 500 {
				return fmt.Errorf("status %d", resp.StatusCode)
			}
			return nil
		},
	}
}

// HealthChecker is implemented by LLM providers that can verify their credentials and model.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// LLM checks that the language model provider is configured and usable.
// v may be nil when no provider was configured.
func LLM(v HealthChecker) Probe {
	return Probe{
		Name:    "llm",
		Timeout: 10 * time.Second,
		Check: func(ctx context.Context) error {
			if v == nil {
				return errors.New("no LLM configured")
			}
			return v.HealthCheck(ctx)
		},
	}
}
