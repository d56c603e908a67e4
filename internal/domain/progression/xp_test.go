package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateXP_Formula(t *testing.T) {
	// 25 base + 8*10 correct + round(0.8*50) accuracy - 2*2 hints, no speed bonus.
	xp := CalculateXP(XPInput{
		CorrectCount: 8,
		TotalCount:   10,
		Accuracy:     0.8,
		HintsUsed:    2,
	})
	assert.Equal(t, 25+80+40-4, xp)
}

func TestCalculateXP_NeverNegative(t *testing.T) {
	xp := CalculateXP(XPInput{
		CorrectCount: 0,
		TotalCount:   10,
		Accuracy:     0,
		HintsUsed:    50,
	})
	assert.Equal(t, 0, xp)
}

func TestCalculateXP_SpeedBonus(t *testing.T) {
	base := XPInput{CorrectCount: 5, TotalCount: 5, Accuracy: 1.0}

	// Finishing exactly on time earns no bonus.
	onTime := base
	onTime.TimeSpentMs = 120_000
	onTime.ExpectedTimeMs = 120_000
	noBonus := CalculateXP(onTime)

	// Saving half the time earns the full capped bonus.
	fast := base
	fast.TimeSpentMs = 60_000
	fast.ExpectedTimeMs = 120_000
	withBonus := CalculateXP(fast)

	assert.Equal(t, 20, withBonus-noBonus)

	// No expected time means the bonus is unavailable.
	unknown := base
	unknown.TimeSpentMs = 1
	assert.Equal(t, noBonus, CalculateXP(unknown))
}

func TestCalculateXP_SpeedBonusIsCapped(t *testing.T) {
	slow := CalculateXP(XPInput{CorrectCount: 5, Accuracy: 1.0, TimeSpentMs: 119_000, ExpectedTimeMs: 120_000})
	blazing := CalculateXP(XPInput{CorrectCount: 5, Accuracy: 1.0, TimeSpentMs: 1_000, ExpectedTimeMs: 120_000})
	assert.LessOrEqual(t, blazing-slow, 20)
}

func TestCalculateXP_MoreCorrectNeverEarnsLess(t *testing.T) {
	prev := 0
	for correct := 0; correct <= 10; correct++ {
		xp := CalculateXP(XPInput{
			CorrectCount: correct,
			TotalCount:   10,
			Accuracy:     float64(correct) / 10.0,
		})
		assert.GreaterOrEqual(t, xp, prev, "XP dropped at %d correct", correct)
		prev = xp
	}
}

func TestSplitXPByCategory(t *testing.T) {
	shares := SplitXPByCategory(100, 3)
	require.Len(t, shares, 3)
	assert.Equal(t, []int{34, 33, 33}, shares, "remainder goes to the first category")

	total := 0
	for _, s := range shares {
		total += s
	}
	assert.Equal(t, 100, total)

	assert.Nil(t, SplitXPByCategory(100, 0))
}
