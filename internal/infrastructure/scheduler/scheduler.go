// Package scheduler runs the engine's periodic sweeps: expiring stale
// attempts, flagging promotion-eligible journeys, and re-evaluating career
// unlocks after a catalog upgrade. Each job runs on its own timer goroutine;
// a slow sweep never delays the others.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of periodic background work.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes one sweep. The context is cancelled on scheduler stop.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Schedule decides when a job runs next.
type Schedule interface {
	// Next returns the first run time strictly after t.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// JobResult records one completed execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
}

var (
	// ErrNilJob is returned when registering a nil job.
	ErrNilJob = errors.New("scheduler: job cannot be nil")

	// ErrNilSchedule is returned when registering a job without a schedule.
	ErrNilSchedule = errors.New("scheduler: schedule cannot be nil")

	// ErrJobAlreadyExists is returned on duplicate job names.
	ErrJobAlreadyExists = errors.New("scheduler: job already registered")

	// ErrJobNotFound is returned when referencing an unknown job.
	ErrJobNotFound = errors.New("scheduler: job not found")

	// ErrAlreadyRunning is returned by Start on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler: already running")

	// ErrJobRunning is returned by RunNow when the job is mid-execution.
	ErrJobRunning = errors.New("scheduler: job is currently running")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerConfig configures the scheduler.
type SchedulerConfig struct {
	// Logger for job lifecycle and failures.
	Logger *slog.Logger

	// Timezone for schedule calculations (default UTC). Cron schedules
	// follow the tenant-facing wall clock, interval schedules do not care.
	Timezone *time.Location

	// MaxHistorySize caps the retained execution results.
	MaxHistorySize int
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Logger:         slog.Default(),
		Timezone:       time.UTC,
		MaxHistorySize: 200,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// scheduledJob tracks one registered job and its execution state.
type scheduledJob struct {
	job      Job
	schedule Schedule

	running  atomic.Bool
	runs     atomic.Int64
	failures atomic.Int64
	lastRun  atomic.Pointer[JobResult]
}

// Scheduler owns the registered jobs and their timer goroutines.
// Registration happens before Start; Stop cancels all jobs and waits for
// in-flight sweeps.
type Scheduler struct {
	logger   *slog.Logger
	timezone *time.Location

	mu      sync.Mutex
	jobs    map[string]*scheduledJob
	order   []string
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	histMu      sync.Mutex
	history     []JobResult
	maxHistory  int
	historyNext int
}

// NewScheduler creates a scheduler with the given configuration.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.MaxHistorySize <= 0 {
		cfg.MaxHistorySize = 200
	}
	return &Scheduler{
		logger:     cfg.Logger,
		timezone:   cfg.Timezone,
		jobs:       make(map[string]*scheduledJob),
		maxHistory: cfg.MaxHistorySize,
	}
}

// Register adds a job with its schedule. Names must be unique.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	sj := &scheduledJob{job: job, schedule: schedule}
	s.jobs[name] = sj
	s.order = append(s.order, name)

	if s.started {
		// Поздняя регистрация: таймер стартует сразу.
		s.launch(sj)
	}

	s.logger.Info("job registered",
		"job", name,
		"schedule", schedule.String(),
	)
	return nil
}

// Start launches a timer goroutine per registered job. The passed context
// bounds the scheduler's lifetime in addition to Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	for _, name := range s.order {
		s.launch(s.jobs[name])
	}
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

// launch starts the timer loop for one job. Caller holds s.mu.
func (s *Scheduler) launch(sj *scheduledJob) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.timerLoop(sj)
	}()
}

// timerLoop sleeps until the next scheduled run, executes, repeats.
func (s *Scheduler) timerLoop(sj *scheduledJob) {
	for {
		next := sj.schedule.Next(time.Now().In(s.timezone))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.execute(s.ctx, sj)
		}
	}
}

// execute runs one sweep with panic recovery and records the result.
func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob) {
	if !sj.running.CompareAndSwap(false, true) {
		// Предыдущий запуск ещё не завершился - пропускаем тик.
		s.logger.Warn("skipping overlapping run", "job", sj.job.Name())
		return
	}
	defer sj.running.Store(false)

	started := time.Now()
	err := s.runProtected(ctx, sj.job)
	completed := time.Now()

	result := JobResult{
		JobName:     sj.job.Name(),
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
		Success:     err == nil,
		Error:       err,
	}
	sj.runs.Add(1)
	sj.lastRun.Store(&result)
	s.recordHistory(result)

	if err != nil {
		sj.failures.Add(1)
		s.logger.Error("job failed",
			"job", sj.job.Name(),
			"duration", result.Duration.String(),
			"error", err,
		)
		return
	}
	s.logger.Info("job completed",
		"job", sj.job.Name(),
		"duration", result.Duration.String(),
	)
}

// runProtected isolates job panics so one broken sweep cannot take down
// the worker process.
func (s *Scheduler) runProtected(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// RunNow triggers a single out-of-schedule execution, used by operational
// tooling (e.g. forcing a career sweep right after a catalog upgrade).
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.Lock()
	sj, ok := s.jobs[jobName]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	if sj.running.Load() {
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, jobName)
	}

	s.execute(ctx, sj)
	return sj.lastRun.Load(), nil
}

// Stop cancels all timer loops and waits for in-flight sweeps.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether Start has been called and Stop has not.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// ══════════════════════════════════════════════════════════════════════════════
// INTROSPECTION
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo is a point-in-time view of one registered job.
type JobInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	Running     bool       `json:"running"`
	Runs        int64      `json:"runs"`
	Failures    int64      `json:"failures"`
	LastRun     *JobResult `json:"last_run,omitempty"`
}

// ListJobs returns all registered jobs in registration order.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.order))
	for _, name := range s.order {
		sj := s.jobs[name]
		out = append(out, JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Schedule:    sj.schedule.String(),
			Running:     sj.running.Load(),
			Runs:        sj.runs.Load(),
			Failures:    sj.failures.Load(),
			LastRun:     sj.lastRun.Load(),
		})
	}
	return out
}

// recordHistory appends to the bounded result ring.
func (s *Scheduler) recordHistory(result JobResult) {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	if len(s.history) < s.maxHistory {
		s.history = append(s.history, result)
		return
	}
	s.history[s.historyNext] = result
	s.historyNext = (s.historyNext + 1) % s.maxHistory
}

// GetHistory returns up to limit most recent results, newest first.
func (s *Scheduler) GetHistory(limit int) []JobResult {
	s.histMu.Lock()
	defer s.histMu.Unlock()

	n := len(s.history)
	if n == 0 {
		return nil
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]JobResult, 0, limit)
	for i := 0; i < limit; i++ {
		var idx int
		if n < s.maxHistory {
			idx = n - 1 - i
		} else {
			idx = (s.historyNext - 1 - i + n) % n
		}
		out = append(out, s.history[idx])
	}
	return out
}
