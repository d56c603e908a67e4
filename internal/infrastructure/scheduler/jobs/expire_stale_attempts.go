// Package jobs contains implementations of scheduled jobs for the Edugami
// learning progress engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE STALE ATTEMPTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ExpireStaleAttemptsJob closes open attempts with no activity past the
// staleness threshold. Expired attempts never influence skills or XP; their
// partial telemetry stays on the row for later inspection. The sweep runs
// across tenants and is safe to re-run: the status-guarded abandon update
// makes every transition happen at most once.
type ExpireStaleAttemptsJob struct {
	attemptRepo    attempt.Repository
	autosave       attempt.AutosaveStore
	eventPublisher shared.EventPublisher
	logger         *slog.Logger

	config ExpireStaleAttemptsConfig

	lastRunStats atomic.Value // *ExpireStaleAttemptsStats
}

// ExpireStaleAttemptsConfig contains configuration for the job.
type ExpireStaleAttemptsConfig struct {
	// StaleThreshold is how long an open attempt may stay inactive.
	StaleThreshold time.Duration

	// BatchSize limits how many attempts one run processes.
	BatchSize int

	// Timeout is the maximum duration for the job.
	Timeout time.Duration
}

// DefaultExpireStaleAttemptsConfig returns sensible defaults.
func DefaultExpireStaleAttemptsConfig() ExpireStaleAttemptsConfig {
	return ExpireStaleAttemptsConfig{
		StaleThreshold: 48 * time.Hour,
		BatchSize:      200,
		Timeout:        2 * time.Minute,
	}
}

// ExpireStaleAttemptsStats contains statistics from the last run.
type ExpireStaleAttemptsStats struct {
	Scanned       int
	Expired       int
	AlreadyClosed int
	Errors        int
	RanAt         time.Time
	Duration      time.Duration
}

// NewExpireStaleAttemptsJob creates a new job instance.
func NewExpireStaleAttemptsJob(
	attemptRepo attempt.Repository,
	autosave attempt.AutosaveStore,
	eventPublisher shared.EventPublisher,
	config ExpireStaleAttemptsConfig,
	logger *slog.Logger,
) *ExpireStaleAttemptsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.StaleThreshold <= 0 {
		config = DefaultExpireStaleAttemptsConfig()
	}
	return &ExpireStaleAttemptsJob{
		attemptRepo:    attemptRepo,
		autosave:       autosave,
		eventPublisher: eventPublisher,
		config:         config,
		logger:         logger.With("job", "expire_stale_attempts"),
	}
}

// Name returns the unique name of the job.
func (j *ExpireStaleAttemptsJob) Name() string {
	return "expire_stale_attempts"
}

// Description returns a human-readable description.
func (j *ExpireStaleAttemptsJob) Description() string {
	return "Abandons open attempts with no activity past the staleness threshold"
}

// Run executes the job.
func (j *ExpireStaleAttemptsJob) Run(ctx context.Context) error {
	start := time.Now()
	stats := &ExpireStaleAttemptsStats{RanAt: start.UTC()}

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	stale, err := j.attemptRepo.ListStale(ctx, j.config.StaleThreshold, j.config.BatchSize)
	if err != nil {
		return fmt.Errorf("expire_stale_attempts: failed to list stale attempts: %w", err)
	}
	stats.Scanned = len(stale)

	now := timeutil.NowUTC()
	for _, a := range stale {
		expired, err := j.attemptRepo.AbandonIfInProgress(ctx, a.TenantID, a.ID, attempt.AbandonExpired, now)
		if err != nil {
			stats.Errors++
			j.logger.Error("failed to expire attempt",
				"attempt_id", a.ID,
				"error", err,
			)
			continue
		}
		if !expired {
			// Lost the race with a concurrent submit or explicit abandon.
			stats.AlreadyClosed++
			continue
		}
		stats.Expired++

		if j.autosave != nil {
			if err := j.autosave.Discard(ctx, a.TenantID, a.ID); err != nil {
				j.logger.Warn("failed to discard autosave entry",
					"attempt_id", a.ID,
					"error", err,
				)
			}
		}

		if j.eventPublisher != nil {
			event := shared.NewAttemptAbandonedEvent(
				a.TenantID,
				a.ID.String(),
				a.StudentID.String(),
				a.SubjectID.String(),
				string(attempt.AbandonExpired),
			)
			if err := j.eventPublisher.Publish(event); err != nil {
				j.logger.Warn("failed to publish abandon event",
					"attempt_id", a.ID,
					"error", err,
				)
			}
		}
	}

	stats.Duration = time.Since(start)
	j.lastRunStats.Store(stats)

	j.logger.Info("stale attempt sweep completed",
		"scanned", stats.Scanned,
		"expired", stats.Expired,
		"already_closed", stats.AlreadyClosed,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	return nil
}

// LastRunStats returns statistics from the last run, if any.
func (j *ExpireStaleAttemptsJob) LastRunStats() *ExpireStaleAttemptsStats {
	stats, _ := j.lastRunStats.Load().(*ExpireStaleAttemptsStats)
	return stats
}
