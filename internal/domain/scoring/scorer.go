// Package scoring is the pure scoring and normalization pipeline.
// It grades a frozen item set against final answers and telemetry and
// produces normalized per-category signals in [0,100]. No I/O, no clocks
// beyond the timestamp the caller passes in; same inputs, same outputs.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/shared"
)

const (
	// numericTolerance is the absolute tolerance for numeric answers.
	numericTolerance = 1e-6

	// maxTimePenalty bounds how much overtime can pull a category score down.
	maxTimePenalty = 15.0

	// hintPenalty is the per-hint deduction, bounded by maxHintPenalty.
	hintPenalty    = 3.0
	maxHintPenalty = 15.0
)

// ItemGrade is the grading outcome for a single item.
type ItemGrade struct {
	ItemID     string
	Correct    bool
	Categories []shared.SkillCategory
}

// GradeAnswer checks a single answer against the item's key.
// The answer is assumed to already match the item's type (validated upstream).
func GradeAnswer(item attempt.Item, ans attempt.Answer) bool {
	switch item.Type {
	case attempt.ItemSingleChoice:
		return ans.Choice == item.CorrectChoice
	case attempt.ItemMultiChoice:
		return sameSelectionSet(ans.Selections, item.CorrectSelections)
	case attempt.ItemFreeText:
		given := strings.ToLower(strings.TrimSpace(ans.Text))
		for _, accepted := range item.AcceptedAnswers {
			if given == strings.ToLower(strings.TrimSpace(accepted)) {
				return true
			}
		}
		return false
	case attempt.ItemNumeric:
		return math.Abs(ans.Numeric-item.NumericAnswer) <= numericTolerance
	default:
		return false
	}
}

func sameSelectionSet(given, correct []int) bool {
	if len(given) != len(correct) {
		return false
	}
	set := make(map[int]bool, len(correct))
	for _, c := range correct {
		set[c] = true
	}
	for _, g := range given {
		if !set[g] {
			return false
		}
	}
	return true
}

// Score grades the final answers and produces the frozen scoring result.
// Invariants:
//   - accuracy is correct/total; zero items yields accuracy 0, not NaN
//   - every normalized score stays in [0,100]
//   - efficiency penalties only pull a score down, never above the
//     category's raw accuracy ceiling
func Score(set attempt.ItemSet, answers []attempt.Answer, telem attempt.TelemetrySummary, now time.Time) attempt.ScoringResult {
	byItem := make(map[string]attempt.Answer, len(answers))
	for _, a := range answers {
		byItem[a.ItemID] = a
	}

	grades := make([]ItemGrade, 0, len(set.Items))
	correct := 0
	for _, item := range set.Items {
		ans, answered := byItem[item.ID]
		ok := answered && GradeAnswer(item, ans)
		if ok {
			correct++
		}
		grades = append(grades, ItemGrade{ItemID: item.ID, Correct: ok, Categories: item.Categories})
	}

	total := len(set.Items)
	accuracy := 0.0
	if total > 0 {
		accuracy = float64(correct) / float64(total)
	}

	result := attempt.ScoringResult{
		CorrectCount:     correct,
		TotalCount:       total,
		Accuracy:         accuracy,
		NormalizedScores: normalize(set, grades, telem),
		TimeSpentMs:      telem.TimeSpentMs,
		HintsUsed:        telem.HintsUsed,
		ComputedAt:       now,
	}
	return result
}

// normalize maps per-item grades into per-category scores in [0,100].
// Only categories actually measured by this item set appear in the output.
func normalize(set attempt.ItemSet, grades []ItemGrade, telem attempt.TelemetrySummary) map[shared.SkillCategory]float64 {
	type catAcc struct {
		correct int
		total   int
	}
	perCat := make(map[shared.SkillCategory]*catAcc)
	for _, g := range grades {
		for _, cat := range g.Categories {
			if !cat.IsValid() {
				continue
			}
			acc, ok := perCat[cat]
			if !ok {
				acc = &catAcc{}
				perCat[cat] = acc
			}
			acc.total++
			if g.Correct {
				acc.correct++
			}
		}
	}
	if len(perCat) == 0 {
		return map[shared.SkillCategory]float64{}
	}

	penalty := efficiencyPenalty(set, telem)

	scores := make(map[shared.SkillCategory]float64, len(perCat))
	for cat, acc := range perCat {
		raw := 0.0
		if acc.total > 0 {
			raw = float64(acc.correct) / float64(acc.total) * 100.0
		}
		// Penalties never lift a score above its accuracy ceiling.
		scores[cat] = clamp(raw-penalty, 0, raw)
	}
	return scores
}

// efficiencyPenalty derives a bounded deduction from overtime and hints.
// A fast, hint-free run gets zero penalty; a slow, hint-heavy run is capped
// at maxTimePenalty+maxHintPenalty so accuracy stays the dominant signal.
func efficiencyPenalty(set attempt.ItemSet, telem attempt.TelemetrySummary) float64 {
	expected := 0
	for _, item := range set.Items {
		expected += item.ExpectedTimeMs
	}

	timePen := 0.0
	if expected > 0 && telem.TimeSpentMs > expected {
		overtime := float64(telem.TimeSpentMs-expected) / float64(expected)
		timePen = math.Min(overtime*10.0, maxTimePenalty)
	}

	hintPen := math.Min(float64(telem.HintsUsed)*hintPenalty, maxHintPenalty)

	return timePen + hintPen
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
