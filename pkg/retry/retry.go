// Package retry implements bounded retries with exponential backoff and
// jitter for the engine's outbound side effects: narrative regeneration
// requests, notification triggers, and event handler delivery.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// RetryableError marks an error as worth retrying.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps an error to request a retry.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether the error carries a retryable marker.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// PermanentError marks an error as not worth retrying, typically a 4xx
// response or a malformed request.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps an error to forbid retries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether the error carries a permanent marker.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// unwrapMarker strips a classification wrapper before returning the
// error to the caller, who matches on the underlying error.
func unwrapMarker(err error) error {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.Err
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// policy holds the retry parameters assembled from Options.
type policy struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitter       float64
	retryIf      func(error) bool
	onRetry      func(attempt int, err error, delay time.Duration)
}

func defaultPolicy() policy {
	return policy{
		maxAttempts:  3,
		initialDelay: 100 * time.Millisecond,
		maxDelay:     10 * time.Second,
		multiplier:   2.0,
		jitter:       0.1,
	}
}

// Option mutates the retry policy. Invalid values are ignored and the
// default stays in effect.
type Option func(*policy)

// WithMaxAttempts sets the total attempt count, first try included.
func WithMaxAttempts(n int) Option {
	return func(p *policy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(p *policy) {
		if d > 0 {
			p.initialDelay = d
		}
	}
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(p *policy) {
		if d > 0 {
			p.maxDelay = d
		}
	}
}

// WithMultiplier sets the backoff growth factor.
func WithMultiplier(m float64) Option {
	return func(p *policy) {
		if m >= 1 {
			p.multiplier = m
		}
	}
}

// WithJitter sets the relative jitter in [0, 1]: each delay is scaled
// by a random factor in [1-j, 1+j] so concurrent retries spread out.
func WithJitter(j float64) Option {
	return func(p *policy) {
		if j >= 0 && j <= 1 {
			p.jitter = j
		}
	}
}

// WithRetryIf replaces the default retry predicate. The default retries
// only errors wrapped with Retryable; Permanent always wins over the
// predicate.
func WithRetryIf(fn func(error) bool) Option {
	return func(p *policy) { p.retryIf = fn }
}

// WithOnRetry installs a callback invoked before each backoff sleep.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(p *policy) { p.onRetry = fn }
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Retrier executes operations under a fixed retry policy. Safe for
// concurrent use.
type Retrier struct {
	p policy
}

// New builds a Retrier from the default policy plus options.
func New(opts ...Option) *Retrier {
	p := defaultPolicy()
	for _, opt := range opts {
		opt(&p)
	}
	return &Retrier{p: p}
}

// Do runs the operation until it succeeds, exhausts the attempt budget,
// hits a non-retryable error, or the context ends. The returned error is
// the last operation error with any classification wrapper stripped.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return unwrapMarker(lastErr)
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) || !r.shouldRetry(err) || attempt >= r.p.maxAttempts {
			return unwrapMarker(err)
		}

		delay := r.delayFor(attempt)
		if r.p.onRetry != nil {
			r.p.onRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return unwrapMarker(lastErr)
		case <-time.After(delay):
		}
	}
}

func (r *Retrier) shouldRetry(err error) bool {
	if r.p.retryIf != nil {
		return r.p.retryIf(err)
	}
	return IsRetryable(err)
}

// delayFor computes the backoff for the given attempt (1-based) with
// jitter applied.
func (r *Retrier) delayFor(attempt int) time.Duration {
	d := float64(r.p.initialDelay)
	for i := 1; i < attempt; i++ {
		d *= r.p.multiplier
		if d >= float64(r.p.maxDelay) {
			d = float64(r.p.maxDelay)
			break
		}
	}

	if r.p.jitter > 0 {
		// Масштаб в [1-j, 1+j].
		d *= 1 + r.p.jitter*(2*rand.Float64()-1)
	}
	if d > float64(r.p.maxDelay) {
		d = float64(r.p.maxDelay)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// SideEffectRetrier suits fire-and-forget side effect calls such as
// narrative regeneration and notification triggers. Short delays: the
// caller is usually inside an event handler and gives up quickly.
func SideEffectRetrier() *Retrier {
	return New(
		WithMaxAttempts(2),
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(time.Second),
		WithMultiplier(2.0),
		WithJitter(0.1),
	)
}
