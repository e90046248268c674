// Package health aggregates node checks into liveness, readiness and full
// reports.
package health

import (
	"time"
)

// NewChecker creates an empty checker.
func NewChecker() *Checker {
	return &Checker{
		started:     time.Now(),
		checks:      make(map[string]CheckFunc),
		readyChecks: make(map[string]CheckFunc),
		liveChecks:  make(map[string]CheckFunc),
	}
}

// RegisterCheck adds a check to the full report.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// RegisterReadinessCheck adds a check to readiness and the full report.
func (c *Checker) RegisterReadinessCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readyChecks[name] = check
	c.checks[name] = check
}

// RegisterLivenessCheck adds a check to liveness and the full report.
func (c *Checker) RegisterLivenessCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liveChecks[name] = check
	c.checks[name] = check
}

// Check runs every registered check.
func (c *Checker) Check() Response {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run(c.checks)
}

// CheckReadiness runs the readiness checks.
func (c *Checker) CheckReadiness() Response {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run(c.readyChecks)
}

// CheckLiveness runs the liveness checks.
func (c *Checker) CheckLiveness() Response {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.run(c.liveChecks)
}

func (c *Checker) run(checks map[string]CheckFunc) Response {
	now := time.Now()
	resp := Response{
		Status:    StatusHealthy,
		Timestamp: now,
		Checks:    make(map[string]Check, len(checks)),
		Uptime:    now.Sub(c.started),
	}

	for name, fn := range checks {
		start := time.Now()
		check := fn()
		check.Name = name
		check.Duration = time.Since(start)
		check.LastChecked = start
		resp.Checks[name] = check

		// worst status wins
		switch {
		case check.Status == StatusUnhealthy:
			resp.Status = StatusUnhealthy
		case check.Status == StatusDegraded && resp.Status != StatusUnhealthy:
			resp.Status = StatusDegraded
		}
	}
	return resp
}
