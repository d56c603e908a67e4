package scheduler

import "time"

// IntervalSchedule fires a fixed duration after each run. Sweeps that
// only need "roughly every N minutes" use this; cron is for sweeps that
// must land at a wall-clock time.
type IntervalSchedule struct {
	every time.Duration
}

// NewIntervalSchedule creates a fixed-interval schedule.
func NewIntervalSchedule(every time.Duration) *IntervalSchedule {
	return &IntervalSchedule{every: every}
}

// Next returns t plus the interval.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.every)
}

// String renders the schedule for logs, e.g. "@every 30m0s".
func (s *IntervalSchedule) String() string {
	return "@every " + s.every.String()
}
