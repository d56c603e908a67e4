package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j *fakeJob) Name() string                  { return j.name }
func (j *fakeJob) Description() string           { return "test job" }
func (j *fakeJob) Run(ctx context.Context) error { return j.run(ctx) }

func TestScheduler_RegisterRules(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &fakeJob{name: "sweep", run: func(context.Context) error { return nil }}

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Hour)), ErrJobAlreadyExists)
}

func TestScheduler_RunNowExecutesAndRecords(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	var runs int
	job := &fakeJob{name: "careers", run: func(context.Context) error {
		runs++
		return nil
	}}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "careers")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, "careers", result.JobName)
	assert.Equal(t, 1, runs)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	history := s.GetHistory(10)
	require.Len(t, history, 1)
	assert.Equal(t, "careers", history[0].JobName)
}

func TestScheduler_JobPanicIsRecovered(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	job := &fakeJob{name: "broken", run: func(context.Context) error {
		panic("unexpected nil")
	}}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error.Error(), "panicked")

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, int64(1), infos[0].Failures)
}

func TestScheduler_StartAndStop(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	ran := make(chan struct{}, 10)
	job := &fakeJob{name: "fast", run: func(context.Context) error {
		ran <- struct{}{}
		return nil
	}}
	require.NoError(t, s.Register(job, NewIntervalSchedule(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)
	assert.True(t, s.IsRunning())

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	// Stop is idempotent.
	assert.NoError(t, s.Stop())
}

func TestScheduler_FailedRunCountsAsFailure(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())

	job := &fakeJob{name: "flaky", run: func(context.Context) error {
		return errors.New("db unavailable")
	}}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "flaky")
	require.NoError(t, err)
	assert.False(t, result.Success)

	infos := s.ListJobs()
	assert.Equal(t, int64(1), infos[0].Runs)
	assert.Equal(t, int64(1), infos[0].Failures)
}

func TestIntervalSchedule(t *testing.T) {
	s := NewIntervalSchedule(30 * time.Minute)
	base := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, base.Add(30*time.Minute), s.Next(base))
	assert.Equal(t, "@every 30m0s", s.String())
}
