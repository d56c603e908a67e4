package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCron_RejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"* * * *",        // too few fields
		"* * * * * *",    // too many fields
		"60 * * * *",     // minute out of range
		"* 24 * * *",     // hour out of range
		"* * 0 * *",      // day of month out of range
		"* * * 13 *",     // month out of range
		"* * * * 7",      // day of week out of range
		"*/0 * * * *",    // zero step
		"5-1 * * * *",    // inverted range
		"abc * * * *",    // not a number
	}
	for _, expr := range cases {
		_, err := ParseCron(expr)
		assert.Error(t, err, "expression %q", expr)
	}
}

func TestCronSchedule_DailyAt(t *testing.T) {
	s := DailyAt(4, 30)

	from := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	next := s.Next(from)
	assert.Equal(t, time.Date(2026, time.March, 11, 4, 30, 0, 0, time.UTC), next)

	// Before today's slot fires today.
	from = time.Date(2026, time.March, 10, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 10, 4, 30, 0, 0, time.UTC), s.Next(from))
}

func TestCronSchedule_NextIsStrictlyAfter(t *testing.T) {
	s := MustParseCron("30 4 * * *")
	exactly := time.Date(2026, time.March, 10, 4, 30, 0, 0, time.UTC)
	assert.Equal(t, exactly.AddDate(0, 0, 1), s.Next(exactly))
}

func TestCronSchedule_Steps(t *testing.T) {
	s := MustParseCron("*/15 * * * *")
	from := time.Date(2026, time.March, 10, 8, 3, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 10, 8, 15, 0, 0, time.UTC), s.Next(from))

	from = time.Date(2026, time.March, 10, 8, 50, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC), s.Next(from))
}

func TestCronSchedule_ListsAndRanges(t *testing.T) {
	// Будни в 06:00.
	s := MustParseCron("0 6 * * 1-5")

	friday := time.Date(2026, time.March, 13, 10, 0, 0, 0, time.UTC)
	require.Equal(t, time.Weekday(5), friday.Weekday())
	assert.Equal(t, time.Date(2026, time.March, 16, 6, 0, 0, 0, time.UTC), s.Next(friday)) // Monday

	s = MustParseCron("0 0 1,15 * *")
	from := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC), s.Next(from))
}

func TestCronSchedule_MonthRollover(t *testing.T) {
	s := MustParseCron("0 0 31 * *")
	from := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	// April has 30 days; first match is May 31.
	assert.Equal(t, time.Date(2026, time.May, 31, 0, 0, 0, 0, time.UTC), s.Next(from))
}

func TestCronSchedule_VixieDayRule(t *testing.T) {
	// Ограничены оба поля дня: срабатывает любое из них.
	s := MustParseCron("0 0 10 * 0")

	from := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC) // Thursday
	next := s.Next(from)
	// Sunday March 8 comes before March 10.
	assert.Equal(t, time.Date(2026, time.March, 8, 0, 0, 0, 0, time.UTC), next)
}

func TestCronSchedule_String(t *testing.T) {
	assert.Equal(t, "30 4 * * *", MustParseCron("30 4 * * *").String())
}
