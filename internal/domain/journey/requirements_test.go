package journey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

func fullScores(value float64) map[shared.SkillCategory]float64 {
	scores := make(map[shared.SkillCategory]float64)
	for _, cat := range shared.AllSkillCategories() {
		scores[cat] = value
	}
	return scores
}

func TestRequirementsFor_ThresholdGrowsWithGrade(t *testing.T) {
	rs := RequirementsFor(1)
	require.Len(t, rs.Requirements, len(shared.AllSkillCategories()))
	assert.Equal(t, 35.0, rs.Requirements[0].MinScore)
	assert.Equal(t, 7, rs.MinAttempts)

	rs = RequirementsFor(5)
	assert.Equal(t, 47.0, rs.Requirements[0].MinScore)
	assert.Equal(t, 11, rs.MinAttempts)

	// 35 + 3*11 = 68 for grade 12, still under the cap.
	rs = RequirementsFor(12)
	assert.Equal(t, 68.0, rs.Requirements[0].MinScore)
	assert.Equal(t, 18, rs.MinAttempts)
}

func TestEvaluate_AllRequirementsMet(t *testing.T) {
	rs := RequirementsFor(3) // threshold 41

	progress, allMet := rs.Evaluate(fullScores(50), rs.MinAttempts)
	assert.True(t, allMet)
	for _, p := range progress {
		assert.True(t, p.Met)
		assert.Equal(t, 41.0, p.Required)
	}
}

func TestEvaluate_MissingCategoryCountsAsZero(t *testing.T) {
	rs := RequirementsFor(3)
	scores := fullScores(90)
	delete(scores, shared.SkillResilience)

	progress, allMet := rs.Evaluate(scores, rs.MinAttempts)
	assert.False(t, allMet)

	var resilience RequirementProgress
	for _, p := range progress {
		if p.Category == shared.SkillResilience {
			resilience = p
		}
	}
	assert.Equal(t, 0.0, resilience.Current)
	assert.False(t, resilience.Met)
}

func TestEvaluate_AttemptFloorGatesHardCompletion(t *testing.T) {
	rs := RequirementsFor(3)

	_, allMet := rs.Evaluate(fullScores(90), rs.MinAttempts-1)
	assert.False(t, allMet, "high scores from too few attempts are not mastery")

	_, allMet = rs.Evaluate(fullScores(90), rs.MinAttempts)
	assert.True(t, allMet)
}
