package handlers

import (
	"context"
	"strings"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker aggregates named dependency checks into one status for
// the /healthz and /readyz endpoints.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
	AddCheck(name string, check HealthCheckFunc)
	RemoveCheck(name string)
}

// HealthCheckFunc probes one dependency; a non-nil error marks it down.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the aggregated health report returned to probes.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Healthy     bool      `json:"healthy"`
	Message     string    `json:"message,omitempty"`
	Duration    string    `json:"duration,omitempty"`
	LastChecked time.Time `json:"last_checked,omitempty"`
}

// CompositeHealthChecker runs the registered checks in parallel, each
// under its own timeout, and reports unhealthy if any check fails.
type CompositeHealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheckFunc
	timeout   time.Duration
	startedAt time.Time
	version   string
}

// NewCompositeHealthChecker creates a checker with a 5s per-check timeout.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		checks:    make(map[string]HealthCheckFunc),
		timeout:   5 * time.Second,
		startedAt: time.Now(),
		version:   version,
	}
}

// SetTimeout overrides the per-check timeout.
func (c *CompositeHealthChecker) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// AddCheck registers a named check, replacing any check with the same name.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// RemoveCheck unregisters a named check.
func (c *CompositeHealthChecker) RemoveCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Check runs every registered check and aggregates the results. A single
// failing check marks the whole service unhealthy and not ready.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.startedAt).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}
	if len(checks) == 0 {
		status.Message = "No health checks registered"
		return status
	}

	var (
		wg      sync.WaitGroup
		resMu   sync.Mutex
		failing []string
	)
	for name, fn := range checks {
		wg.Add(1)
		go func(name string, fn HealthCheckFunc) {
			defer wg.Done()
			result := c.runCheck(ctx, fn)

			resMu.Lock()
			status.Checks[name] = result
			if !result.Healthy {
				failing = append(failing, name)
			}
			resMu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	if len(failing) > 0 {
		status.Healthy = false
		status.Ready = false
		status.Message = "Some checks failed: " + strings.Join(failing, ", ")
	} else {
		status.Message = "All checks passed"
	}
	return status
}

func (c *CompositeHealthChecker) runCheck(ctx context.Context, fn HealthCheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := fn(checkCtx)

	result := CheckResult{
		Healthy:     err == nil,
		Message:     "OK",
		Duration:    time.Since(start).Round(time.Millisecond).String(),
		LastChecked: time.Now().UTC(),
	}
	if err != nil {
		result.Message = err.Error()
	}
	return result
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECK CONSTRUCTORS
// ══════════════════════════════════════════════════════════════════════════════

// Pinger is the probe surface of the postgres connection and the redis
// cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck builds a check from anything with a Ping method.
func NewPingCheck(p Pinger) HealthCheckFunc {
	return p.Ping
}

// ExternalAPIChecker is the probe surface of outbound service clients.
type ExternalAPIChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewExternalAPICheck builds a check from an outbound client.
func NewExternalAPICheck(api ExternalAPIChecker) HealthCheckFunc {
	return api.HealthCheck
}

// ══════════════════════════════════════════════════════════════════════════════
// NOOP CHECKER
// ══════════════════════════════════════════════════════════════════════════════

// NoopHealthChecker always reports healthy. Used in tests and as the
// default when no dependencies are wired.
type NoopHealthChecker struct {
	startedAt time.Time
}

// NewNoopHealthChecker creates a checker that ignores registrations.
func NewNoopHealthChecker() *NoopHealthChecker {
	return &NoopHealthChecker{startedAt: time.Now()}
}

// Check always returns a healthy status.
func (n *NoopHealthChecker) Check(ctx context.Context) HealthStatus {
	return HealthStatus{
		Healthy:   true,
		Ready:     true,
		Message:   "OK",
		Uptime:    time.Since(n.startedAt).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
}

func (n *NoopHealthChecker) AddCheck(name string, check HealthCheckFunc) {}

func (n *NoopHealthChecker) RemoveCheck(name string) {}
