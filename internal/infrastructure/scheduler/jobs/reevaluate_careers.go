package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/edugami/edugami-engine/internal/application/command"
	"github.com/edugami/edugami-engine/internal/domain/career"
	"github.com/edugami/edugami-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RE-EVALUATE CAREERS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReevaluateCareersJob re-runs the career evaluator for students whose last
// evaluation predates the current catalog version. Catalog upgrades can only
// add unlocks, never revoke them, so re-running the evaluator is harmless
// for students the upgrade does not affect.
type ReevaluateCareersJob struct {
	careerRepo     career.Repository
	careersHandler *command.EvaluateCareersHandler
	catalogVersion int
	logger         *slog.Logger

	config ReevaluateCareersConfig

	lastRunStats atomic.Value // *ReevaluateCareersStats
}

// ReevaluateCareersConfig contains configuration for the job.
type ReevaluateCareersConfig struct {
	// BatchSize limits how many students one run re-evaluates.
	BatchSize int

	// Timeout is the maximum duration for the job.
	Timeout time.Duration
}

// DefaultReevaluateCareersConfig returns sensible defaults.
func DefaultReevaluateCareersConfig() ReevaluateCareersConfig {
	return ReevaluateCareersConfig{
		BatchSize: 100,
		Timeout:   5 * time.Minute,
	}
}

// ReevaluateCareersStats contains statistics from the last run.
type ReevaluateCareersStats struct {
	Evaluated  int
	NewUnlocks int
	Errors     int
	RanAt      time.Time
	Duration   time.Duration
}

// NewReevaluateCareersJob creates a new job instance.
func NewReevaluateCareersJob(
	careerRepo career.Repository,
	careersHandler *command.EvaluateCareersHandler,
	catalogVersion int,
	config ReevaluateCareersConfig,
	logger *slog.Logger,
) *ReevaluateCareersJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 {
		config = DefaultReevaluateCareersConfig()
	}
	return &ReevaluateCareersJob{
		careerRepo:     careerRepo,
		careersHandler: careersHandler,
		catalogVersion: catalogVersion,
		config:         config,
		logger:         logger.With("job", "reevaluate_careers"),
	}
}

// Name returns the unique name of the job.
func (j *ReevaluateCareersJob) Name() string {
	return "reevaluate_careers"
}

// Description returns a human-readable description.
func (j *ReevaluateCareersJob) Description() string {
	return "Re-runs the career evaluator for students behind the current catalog version"
}

// Run executes the job.
func (j *ReevaluateCareersJob) Run(ctx context.Context) error {
	start := time.Now()
	stats := &ReevaluateCareersStats{RanAt: start.UTC()}

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	behind, err := j.careerRepo.ListStudentsBelowCatalogVersion(ctx, j.catalogVersion, j.config.BatchSize)
	if err != nil {
		return fmt.Errorf("reevaluate_careers: failed to list students: %w", err)
	}

	for _, cursor := range behind {
		result, err := j.careersHandler.Handle(ctx, command.EvaluateCareersCommand{
			TenantID:  cursor.TenantID,
			StudentID: cursor.StudentID,
			Timestamp: timeutil.NowUTC(),
		})
		if err != nil {
			stats.Errors++
			j.logger.Error("failed to re-evaluate careers",
				"student_id", cursor.StudentID,
				"error", err,
			)
			continue
		}
		stats.Evaluated++
		stats.NewUnlocks += len(result.NewUnlocks)
	}

	stats.Duration = time.Since(start)
	j.lastRunStats.Store(stats)

	j.logger.Info("career re-evaluation sweep completed",
		"evaluated", stats.Evaluated,
		"new_unlocks", stats.NewUnlocks,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	return nil
}

// LastRunStats returns statistics from the last run, if any.
func (j *ReevaluateCareersJob) LastRunStats() *ReevaluateCareersStats {
	stats, _ := j.lastRunStats.Load().(*ReevaluateCareersStats)
	return stats
}
