package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/journey"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE PROMOTIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// EvaluatePromotionsJob finds in-progress grade journeys whose academic window
// has closed and announces them as soft-eligible. Promotion itself is always
// an explicit request from the platform; this job only raises the flag so
// teachers and sagas can act on it.
type EvaluatePromotionsJob struct {
	journeyRepo    journey.Repository
	eventPublisher shared.EventPublisher
	logger         *slog.Logger

	config EvaluatePromotionsConfig

	lastRunStats atomic.Value // *EvaluatePromotionsStats
}

// EvaluatePromotionsConfig contains configuration for the job.
type EvaluatePromotionsConfig struct {
	// BatchSize limits how many journeys one run flags.
	BatchSize int

	// Timeout is the maximum duration for the job.
	Timeout time.Duration
}

// DefaultEvaluatePromotionsConfig returns sensible defaults.
func DefaultEvaluatePromotionsConfig() EvaluatePromotionsConfig {
	return EvaluatePromotionsConfig{
		BatchSize: 500,
		Timeout:   time.Minute,
	}
}

// EvaluatePromotionsStats contains statistics from the last run.
type EvaluatePromotionsStats struct {
	Flagged  int
	Errors   int
	RanAt    time.Time
	Duration time.Duration
}

// NewEvaluatePromotionsJob creates a new job instance.
func NewEvaluatePromotionsJob(
	journeyRepo journey.Repository,
	eventPublisher shared.EventPublisher,
	config EvaluatePromotionsConfig,
	logger *slog.Logger,
) *EvaluatePromotionsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 {
		config = DefaultEvaluatePromotionsConfig()
	}
	return &EvaluatePromotionsJob{
		journeyRepo:    journeyRepo,
		eventPublisher: eventPublisher,
		config:         config,
		logger:         logger.With("job", "evaluate_promotions"),
	}
}

// Name returns the unique name of the job.
func (j *EvaluatePromotionsJob) Name() string {
	return "evaluate_promotions"
}

// Description returns a human-readable description.
func (j *EvaluatePromotionsJob) Description() string {
	return "Flags in-progress grade journeys whose academic window has closed"
}

// Run executes the job.
func (j *EvaluatePromotionsJob) Run(ctx context.Context) error {
	start := time.Now()
	stats := &EvaluatePromotionsStats{RanAt: start.UTC()}

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	eligible, err := j.journeyRepo.ListSoftEligible(ctx, timeutil.NowUTC(), j.config.BatchSize)
	if err != nil {
		return fmt.Errorf("evaluate_promotions: failed to list eligible journeys: %w", err)
	}

	for _, gj := range eligible {
		event := shared.NewJourneySoftEligibleEvent(
			gj.TenantID,
			gj.StudentID.String(),
			gj.ID.String(),
			int(gj.Grade),
			gj.Window.End,
		)
		if err := j.eventPublisher.Publish(event); err != nil {
			stats.Errors++
			j.logger.Error("failed to publish soft-eligible event",
				"journey_id", gj.ID,
				"error", err,
			)
			continue
		}
		stats.Flagged++
	}

	stats.Duration = time.Since(start)
	j.lastRunStats.Store(stats)

	j.logger.Info("promotion eligibility sweep completed",
		"flagged", stats.Flagged,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	return nil
}

// LastRunStats returns statistics from the last run, if any.
func (j *EvaluatePromotionsJob) LastRunStats() *EvaluatePromotionsStats {
	stats, _ := j.lastRunStats.Load().(*EvaluatePromotionsStats)
	return stats
}
