package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronSchedule implements Schedule for standard five-field cron
// expressions (minute, hour, day of month, month, day of week).
// Nightly sweeps use it so tenants see fresh promotion eligibility
// before the school day starts, regardless of worker restarts.
//
// Supported field syntax: "*", single values, lists "1,15", ranges "1-5"
// and steps "*/10" or "2-10/2". Day-of-month and day-of-week combine with
// OR when both are restricted, matching Vixie cron.
type CronSchedule struct {
	expr string

	minutes uint64
	hours   uint64
	dom     uint64
	months  uint64
	dow     uint64
	domStar bool
	dowStar bool
}

type cronField struct {
	name string
	min  int
	max  int
}

var cronFields = []cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day of month", 1, 31},
	{"month", 1, 12},
	{"day of week", 0, 6},
}

// ParseCron parses a five-field cron expression.
func ParseCron(expr string) (*CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron: expected 5 fields, got %d in %q", len(fields), expr)
	}

	var sets [5]uint64
	var stars [5]bool
	for i, f := range fields {
		set, star, err := parseCronField(f, cronFields[i])
		if err != nil {
			return nil, fmt.Errorf("cron: %s: %w", cronFields[i].name, err)
		}
		sets[i] = set
		stars[i] = star
	}

	return &CronSchedule{
		expr:    expr,
		minutes: sets[0],
		hours:   sets[1],
		dom:     sets[2],
		months:  sets[3],
		dow:     sets[4],
		domStar: stars[2],
		dowStar: stars[4],
	}, nil
}

// MustParseCron is ParseCron that panics on error, for static schedules.
func MustParseCron(expr string) *CronSchedule {
	cs, err := ParseCron(expr)
	if err != nil {
		panic(err)
	}
	return cs
}

// DailyAt returns a schedule firing once a day at the given wall-clock time.
func DailyAt(hour, minute int) *CronSchedule {
	return MustParseCron(fmt.Sprintf("%d %d * * *", minute, hour))
}

// parseCronField parses one field into a bitmask over [spec.min, spec.max].
func parseCronField(field string, spec cronField) (uint64, bool, error) {
	var mask uint64
	star := false

	for _, part := range strings.Split(field, ",") {
		rangePart := part
		step := 1

		if idx := strings.Index(part, "/"); idx >= 0 {
			rangePart = part[:idx]
			var err error
			step, err = strconv.Atoi(part[idx+1:])
			if err != nil || step <= 0 {
				return 0, false, fmt.Errorf("invalid step in %q", part)
			}
		}

		lo, hi := spec.min, spec.max
		switch {
		case rangePart == "*":
			if step == 1 && len(field) == 1 {
				star = true
			}
		case strings.Contains(rangePart, "-"):
			bounds := strings.SplitN(rangePart, "-", 2)
			var err1, err2 error
			lo, err1 = strconv.Atoi(bounds[0])
			hi, err2 = strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil {
				return 0, false, fmt.Errorf("invalid range %q", rangePart)
			}
		default:
			v, err := strconv.Atoi(rangePart)
			if err != nil {
				return 0, false, fmt.Errorf("invalid value %q", rangePart)
			}
			lo, hi = v, v
			// "5/15" означает "от 5 до максимума с шагом 15".
			if strings.Contains(part, "/") {
				hi = spec.max
			}
		}

		if lo < spec.min || hi > spec.max || lo > hi {
			return 0, false, fmt.Errorf("value out of range [%d,%d] in %q", spec.min, spec.max, part)
		}
		for v := lo; v <= hi; v += step {
			mask |= 1 << uint(v)
		}
	}

	if mask == 0 {
		return 0, false, fmt.Errorf("empty field %q", field)
	}
	return mask, star, nil
}

// Next returns the first matching time strictly after t, at minute
// granularity. Gives up after four years (covers Feb 29 schedules).
func (c *CronSchedule) Next(t time.Time) time.Time {
	// Секунды обнуляются: гранулярность крона - минута.
	next := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for next.Before(limit) {
		if c.months&(1<<uint(next.Month())) == 0 {
			next = time.Date(next.Year(), next.Month(), 1, 0, 0, 0, 0, next.Location()).AddDate(0, 1, 0)
			continue
		}
		if !c.dayMatches(next) {
			next = time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, next.Location()).AddDate(0, 0, 1)
			continue
		}
		if c.hours&(1<<uint(next.Hour())) == 0 {
			next = next.Truncate(time.Hour).Add(time.Hour)
			continue
		}
		if c.minutes&(1<<uint(next.Minute())) == 0 {
			next = next.Add(time.Minute)
			continue
		}
		return next
	}
	return time.Time{}
}

// dayMatches applies the Vixie cron day rule: when both day fields are
// restricted, either may match; otherwise the restricted one decides.
func (c *CronSchedule) dayMatches(t time.Time) bool {
	domOK := c.dom&(1<<uint(t.Day())) != 0
	dowOK := c.dow&(1<<uint(t.Weekday())) != 0
	switch {
	case c.domStar && c.dowStar:
		return true
	case c.domStar:
		return dowOK
	case c.dowStar:
		return domOK
	default:
		return domOK || dowOK
	}
}

// String returns the original expression.
func (c *CronSchedule) String() string {
	return c.expr
}
