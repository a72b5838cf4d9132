// Package health provides periodic health checks with auto-recovery.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/learnpath/gamify/internal/infra/metrics"
)

// DefaultInterval is how often the checks run.
const DefaultInterval = 60 * time.Second

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	Recovered bool      `json:"recovered,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Pinger is a store that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Rollovers reports and heals a lagging leaderboard week.
type Rollovers interface {
	RolloverDue(ctx context.Context) (bool, error)
	CatchUp(ctx context.Context) error
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	logger   *slog.Logger
}

// NewChecker creates a checker with the store and rollover checks.
func NewChecker(store Pinger, rollovers Rollovers, logger *slog.Logger) *Checker {
	return NewCustom(DefaultInterval, logger,
		Check{
			Name:    "store",
			CheckFn: store.Ping,
		},
		Check{
			Name: "rollover",
			CheckFn: func(ctx context.Context) error {
				due, err := rollovers.RolloverDue(ctx)
				if err != nil {
					return err
				}
				if due {
					return fmt.Errorf("weekly rollover is overdue")
				}
				return nil
			},
			RecoverFn: rollovers.CatchUp,
		},
	)
}

// NewCustom creates a checker for an explicit set of checks.
func NewCustom(interval time.Duration, logger *slog.Logger, checks ...Check) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		interval: interval,
		checks:   checks,
		logger:   logger.With("component", "health"),
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce executes every check now. A failing check with a RecoverFn is
// re-checked once after recovery.
func (c *Checker) RunOnce(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{Name: check.Name, CheckedAt: time.Now().UTC()}
		err := check.CheckFn(ctx)
		if err != nil && check.RecoverFn != nil {
			if rerr := check.RecoverFn(ctx); rerr != nil {
				c.logger.Warn("recovery failed", "check", check.Name, "error", rerr)
			} else {
				metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
				if err = check.CheckFn(ctx); err == nil {
					s.Recovered = true
				}
			}
		}
		if err != nil {
			s.Error = err.Error()
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
			c.logger.Warn("health check failed", "check", check.Name, "error", err)
		} else {
			s.Healthy = true
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}
