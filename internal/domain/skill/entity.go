// Package skill contains the per-student skill signal model: one cumulative
// score per closed category, its qualitative level, its trend against recent
// history, and the append-only observation history behind both.
package skill

import (
	"fmt"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVELS & TRENDS
// ══════════════════════════════════════════════════════════════════════════════

// Level is the qualitative band a skill score falls into.
// Shown to students and parents; thresholds are fixed product copy.
type Level string

const (
	LevelEmerging   Level = "EMERGING"   // [0, 40)
	LevelDeveloping Level = "DEVELOPING" // [40, 60)
	LevelProficient Level = "PROFICIENT" // [60, 80)
	LevelAdvanced   Level = "ADVANCED"   // [80, 100]
)

// LevelForScore maps a normalized score to its qualitative level.
func LevelForScore(score float64) Level {
	switch {
	case score < 40:
		return LevelEmerging
	case score < 60:
		return LevelDeveloping
	case score < 80:
		return LevelProficient
	default:
		return LevelAdvanced
	}
}

// Trend describes recent movement of a skill score.
type Trend string

const (
	TrendImproving      Trend = "IMPROVING"
	TrendStable         Trend = "STABLE"
	TrendNeedsAttention Trend = "NEEDS_ATTENTION"
)

// trendThreshold is the dead zone around the recent mean. Movement within
// it classifies as STABLE, so identical scores can never read as a decline.
const trendThreshold = 3.0

// trendWindow is how many prior observations the trend looks back at.
const trendWindow = 3

// ClassifyTrend compares the current score against the mean of up to the
// last trendWindow prior observations. With no prior history the trend
// is STABLE.
func ClassifyTrend(current float64, history []HistoryPoint) Trend {
	if len(history) == 0 {
		return TrendStable
	}
	start := len(history) - trendWindow
	if start < 0 {
		start = 0
	}
	recent := history[start:]
	sum := 0.0
	for _, p := range recent {
		sum += p.Score
	}
	mean := sum / float64(len(recent))

	switch {
	case current > mean+trendThreshold:
		return TrendImproving
	case current < mean-trendThreshold:
		return TrendNeedsAttention
	default:
		return TrendStable
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HISTORY
// ══════════════════════════════════════════════════════════════════════════════

// HistoryPoint is one appended observation: the normalized score a single
// completed attempt produced for this category.
type HistoryPoint struct {
	Score      float64
	AttemptID  string
	RecordedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// SKILL SCORE (aggregate)
// ══════════════════════════════════════════════════════════════════════════════

// blendAlpha is the weight of a new observation against the running score.
// The running score is an exponential blend so one bad run cannot erase a
// term of progress, and one lucky run cannot fake mastery.
const blendAlpha = 0.3

// SkillScore is the per-(student, category) aggregate.
type SkillScore struct {
	TenantID  shared.TenantID
	StudentID shared.StudentID
	Category  shared.SkillCategory

	Score float64 // running blended score in [0,100]
	Level Level
	Trend Trend
	XP    int // cumulative per-category XP, never decreases

	History   []HistoryPoint // append-only, chronological
	UpdatedAt time.Time
}

// NewSkillScore seeds an empty skill row for an enrolled student.
func NewSkillScore(tenantID shared.TenantID, studentID shared.StudentID, category shared.SkillCategory, at time.Time) (*SkillScore, error) {
	if !tenantID.IsValid() {
		return nil, shared.ErrInvalidTenantID
	}
	if !studentID.IsValid() {
		return nil, shared.ErrInvalidStudentID
	}
	if !category.IsValid() {
		return nil, fmt.Errorf("%w: unknown skill category %q", shared.ErrInvalidInput, category)
	}
	return &SkillScore{
		TenantID:  tenantID,
		StudentID: studentID,
		Category:  category,
		Score:     0,
		Level:     LevelEmerging,
		Trend:     TrendStable,
		History:   make([]HistoryPoint, 0),
		UpdatedAt: at,
	}, nil
}

// ApplyObservation folds a new normalized observation into the aggregate:
// appends history, re-blends the running score, reclassifies level and trend,
// and accrues category XP. Observations must arrive in chronological order.
func (s *SkillScore) ApplyObservation(observed float64, attemptID string, xpShare int, at time.Time) error {
	if observed < 0 || observed > 100 {
		return shared.ErrScoreOutOfRange
	}
	if n := len(s.History); n > 0 && at.Before(s.History[n-1].RecordedAt) {
		return shared.ErrHistoryNotOrdered
	}
	if xpShare < 0 {
		xpShare = 0
	}

	// Trend compares the observation against history BEFORE this point.
	s.Trend = ClassifyTrend(observed, s.History)

	if len(s.History) == 0 {
		s.Score = observed
	} else {
		s.Score = (1-blendAlpha)*s.Score + blendAlpha*observed
	}
	s.Level = LevelForScore(s.Score)
	s.XP += xpShare

	s.History = append(s.History, HistoryPoint{
		Score:      observed,
		AttemptID:  attemptID,
		RecordedAt: at,
	})
	s.UpdatedAt = at
	return nil
}

// LastObservation returns the most recent history point, if any.
func (s *SkillScore) LastObservation() (HistoryPoint, bool) {
	if len(s.History) == 0 {
		return HistoryPoint{}, false
	}
	return s.History[len(s.History)-1], true
}
