package journey

import "time"

// AcademicYearConfig - настройка границ академического года тенанта.
// EndMonth/EndDay - последний день года включительно; между концом одного
// года и началом следующего допустим разрыв (летние каникулы). Timezone -
// имя зоны IANA; пустое значение означает зону переданного момента.
type AcademicYearConfig struct {
	StartMonth time.Month
	StartDay   int
	EndMonth   time.Month
	EndDay     int
	Timezone   string
}

// DefaultAcademicYear возвращает настройку по умолчанию:
// 1 июня - 31 мая следующего календарного года, UTC.
func DefaultAcademicYear() AcademicYearConfig {
	return AcademicYearConfig{
		StartMonth: time.June,
		StartDay:   1,
		EndMonth:   time.May,
		EndDay:     31,
		Timezone:   "UTC",
	}
}

// IsValid проверяет корректность настройки.
func (c AcademicYearConfig) IsValid() bool {
	if !validMonthDay(c.StartMonth, c.StartDay) || !validMonthDay(c.EndMonth, c.EndDay) {
		return false
	}
	if c.StartMonth == c.EndMonth && c.StartDay == c.EndDay {
		return false
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return false
		}
	}
	return true
}

// validMonthDay не допускает дат, которых нет в каждом году:
// 29 февраля в невисокосный год сдвинул бы границу окна.
func validMonthDay(m time.Month, d int) bool {
	if m < time.January || m > time.December {
		return false
	}
	if d < 1 {
		return false
	}
	// 2001 - невисокосный год.
	lastDay := time.Date(2001, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1).Day()
	return d <= lastDay
}

// location возвращает зону тенанта, либо fallback при пустой настройке.
func (c AcademicYearConfig) location(fallback *time.Location) *time.Location {
	if c.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// Window - окно одного академического года: [Start, End).
// Окно пересекает границу календарного года, если старт не 1 января.
type Window struct {
	Start time.Time
	End   time.Time
}

// IsValid проверяет, что окно непустое.
func (w Window) IsValid() bool {
	return !w.Start.IsZero() && w.End.After(w.Start)
}

// Contains возвращает true, если момент попадает в окно.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Ended возвращает true, если окно уже закончилось.
func (w Window) Ended(now time.Time) bool {
	return !now.Before(w.End)
}

// WindowFor вычисляет окно академического года для данного момента: год,
// начавшийся последним. Пример с настройкой по умолчанию: 15 января 2026
// года попадает в окно 1 июня 2025 - 1 июня 2026, а не в окно,
// начинающееся в 2026. Момент в разрыве между годами (после конца, до
// нового старта) относится к только что закончившемуся году.
func (c AcademicYearConfig) WindowFor(now time.Time) Window {
	loc := c.location(now.Location())
	at := now.In(loc)
	start := time.Date(at.Year(), c.StartMonth, c.StartDay, 0, 0, 0, 0, loc)
	if at.Before(start) {
		start = time.Date(at.Year()-1, c.StartMonth, c.StartDay, 0, 0, 0, 0, loc)
	}
	return c.windowFrom(start)
}

// NextWindow возвращает окно года, следующего за данным: старт ровно через
// календарный год после старта текущего.
func (c AcademicYearConfig) NextWindow(w Window) Window {
	loc := c.location(w.Start.Location())
	start := time.Date(w.Start.Year()+1, c.StartMonth, c.StartDay, 0, 0, 0, 0, loc)
	return c.windowFrom(start)
}

// windowFrom строит окно от данного старта. Конец - эксклюзивная граница:
// день после EndMonth/EndDay, в том же календарном году при окне без
// переноса (февраль - ноябрь) и в следующем при переносе (сентябрь - июнь).
func (c AcademicYearConfig) windowFrom(start time.Time) Window {
	endYear := start.Year()
	if !monthDayAfter(c.EndMonth, c.EndDay, c.StartMonth, c.StartDay) {
		endYear++
	}
	lastDay := time.Date(endYear, c.EndMonth, c.EndDay, 0, 0, 0, 0, start.Location())
	return Window{Start: start, End: lastDay.AddDate(0, 0, 1)}
}

func monthDayAfter(m1 time.Month, d1 int, m2 time.Month, d2 int) bool {
	if m1 != m2 {
		return m1 > m2
	}
	return d1 > d2
}
