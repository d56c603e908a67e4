// Package circuitbreaker shields the engine from failing external
// services. The narrative generator and notification service are
// best-effort side effects: once either starts timing out, the breaker
// opens and calls fail fast instead of piling up inside event handlers.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATES
// ══════════════════════════════════════════════════════════════════════════════

// State is the breaker position: closed passes calls through, open
// rejects them, half-open lets a probe batch through after the cooldown.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = map[State]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

// String returns the lowercase state name used in logs.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

var (
	// ErrCircuitOpen is returned without invoking the call while the
	// breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when the half-open probe budget is
	// already spent.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config tunes a breaker. Built from options in New.
type Config struct {
	// Name identifies the breaker in logs and state change callbacks.
	Name string

	// FailureThreshold is the consecutive failure count that opens the
	// breaker from closed.
	FailureThreshold int

	// SuccessThreshold is the consecutive success count that closes the
	// breaker from half-open.
	SuccessThreshold int

	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration

	// MaxProbes caps concurrent-ish calls admitted in half-open.
	MaxProbes int

	// OnStateChange is invoked on every transition, outside the call
	// path but under the breaker lock.
	OnStateChange func(name string, from, to State)

	// IsFailure classifies errors; nil counts every non-nil error.
	IsFailure func(error) bool
}

func defaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
		MaxProbes:        1,
	}
}

// Option mutates the breaker config.
type Option func(*Config)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many half-open successes close the breaker.
func WithSuccessThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

// WithCooldown sets the open-state hold time before probing.
func WithCooldown(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Cooldown = d
		}
	}
}

// WithMaxProbes sets the half-open probe budget.
func WithMaxProbes(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxProbes = n
		}
	}
}

// WithOnStateChange installs a transition callback.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}

// WithIsFailure installs a custom failure classifier.
func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) { c.IsFailure = fn }
}

// ══════════════════════════════════════════════════════════════════════════════
// BREAKER
// ══════════════════════════════════════════════════════════════════════════════

// Stats is a snapshot of breaker counters.
type Stats struct {
	State                State
	TotalSuccesses       int64
	TotalFailures        int64
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
}

// CircuitBreaker tracks consecutive outcomes of one external dependency.
// Safe for concurrent use.
type CircuitBreaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	openedAt    time.Time
	probes      int
	consecOK    int
	consecFail  int
	totalOK     int64
	totalFailed int64
}

// New builds a breaker in the closed state.
func New(name string, opts ...Option) *CircuitBreaker {
	cfg := defaultConfig(name)
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute runs fn if the breaker admits the call and feeds the outcome
// back into the state machine. The fn error is returned unchanged;
// rejected calls return ErrCircuitOpen or ErrTooManyRequests without
// invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

// admit decides whether the next call may proceed, moving open → half-open
// when the cooldown has elapsed.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.openedAt) < cb.cfg.Cooldown {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probes = 1
		return nil
	default: // half-open
		if cb.probes >= cb.cfg.MaxProbes {
			return ErrTooManyRequests
		}
		cb.probes++
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	failed := err != nil
	if failed && cb.cfg.IsFailure != nil {
		failed = cb.cfg.IsFailure(err)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if failed {
		cb.totalFailed++
		cb.consecFail++
		cb.consecOK = 0

		switch cb.state {
		case StateClosed:
			if cb.consecFail >= cb.cfg.FailureThreshold {
				cb.transition(StateOpen)
			}
		case StateHalfOpen:
			// Проба не удалась - снова ждём.
			cb.transition(StateOpen)
		}
		return
	}

	cb.totalOK++
	cb.consecOK++
	cb.consecFail = 0
	if cb.state == StateHalfOpen && cb.consecOK >= cb.cfg.SuccessThreshold {
		cb.transition(StateClosed)
	}
}

// transition switches states and fires the callback. Caller holds the lock.
func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.consecOK = 0
	cb.consecFail = 0
	cb.probes = 0
	if to == StateOpen {
		cb.openedAt = time.Now()
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State returns the current breaker position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// IsClosed reports whether calls currently pass through unrestricted.
func (cb *CircuitBreaker) IsClosed() bool {
	return cb.State() == StateClosed
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

// Stats returns a counter snapshot for operational endpoints.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		State:                cb.state,
		TotalSuccesses:       cb.totalOK,
		TotalFailures:        cb.totalFailed,
		ConsecutiveSuccesses: cb.consecOK,
		ConsecutiveFailures:  cb.consecFail,
	}
}

// Reset forces the breaker back to closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.probes = 0
	cb.consecOK = 0
	cb.consecFail = 0
	cb.totalOK = 0
	cb.totalFailed = 0
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// NarrativeBreaker is tuned for the narrative generator: regeneration is
// best-effort, so it trips after three failures and stays open a full
// minute.
func NarrativeBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(
		"narrative-api",
		WithFailureThreshold(3),
		WithSuccessThreshold(2),
		WithCooldown(time.Minute),
		WithMaxProbes(1),
		WithOnStateChange(onStateChange),
	)
}

// NotifyBreaker is tuned for the notification service, which is usually
// stable: more tolerant of failures, quicker to recover.
func NotifyBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(
		"notify-api",
		WithFailureThreshold(5),
		WithSuccessThreshold(1),
		WithCooldown(30*time.Second),
		WithMaxProbes(2),
		WithOnStateChange(onStateChange),
	)
}
