package skill

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

const (
	testTenantID  = shared.TenantID("a81bc81b-dead-4e5d-abff-90865d1e13b1")
	testStudentID = shared.StudentID("c56a4180-65aa-42ec-a945-5fd21dec0538")
)

func newTestScore(t *testing.T) *SkillScore {
	t.Helper()
	s, err := NewSkillScore(testTenantID, testStudentID, shared.SkillFocus, time.Now().UTC())
	require.NoError(t, err)
	return s
}

func TestNewSkillScore_StartsEmpty(t *testing.T) {
	s := newTestScore(t)

	assert.Equal(t, 0.0, s.Score)
	assert.Equal(t, LevelEmerging, s.Level)
	assert.Equal(t, TrendStable, s.Trend)
	assert.Equal(t, 0, s.XP)
	assert.Empty(t, s.History)
}

func TestApplyObservation_FirstObservationSetsScore(t *testing.T) {
	s := newTestScore(t)

	require.NoError(t, s.ApplyObservation(70, "att-1", 30, time.Now().UTC()))

	assert.Equal(t, 70.0, s.Score, "first observation is taken as-is, not blended with the zero seed")
	assert.Equal(t, LevelProficient, s.Level)
	assert.Equal(t, TrendStable, s.Trend)
	assert.Equal(t, 30, s.XP)
	require.Len(t, s.History, 1)
}

func TestApplyObservation_BlendsSubsequentObservations(t *testing.T) {
	s := newTestScore(t)
	now := time.Now().UTC()

	require.NoError(t, s.ApplyObservation(70, "att-1", 10, now))
	require.NoError(t, s.ApplyObservation(100, "att-2", 10, now.Add(time.Hour)))

	// 0.7*70 + 0.3*100
	assert.InDelta(t, 79.0, s.Score, 1e-9)
	assert.Equal(t, LevelProficient, s.Level)
	assert.Equal(t, TrendImproving, s.Trend)
}

func TestApplyObservation_OneBadRunCannotEraseProgress(t *testing.T) {
	s := newTestScore(t)
	now := time.Now().UTC()

	require.NoError(t, s.ApplyObservation(90, "att-1", 0, now))
	require.NoError(t, s.ApplyObservation(0, "att-2", 0, now.Add(time.Hour)))

	// 0.7*90 + 0.3*0
	assert.InDelta(t, 63.0, s.Score, 1e-9)
	assert.Equal(t, TrendNeedsAttention, s.Trend)
}

func TestApplyObservation_RejectsOutOfRangeScore(t *testing.T) {
	s := newTestScore(t)

	assert.ErrorIs(t, s.ApplyObservation(-1, "att-1", 0, time.Now().UTC()), shared.ErrScoreOutOfRange)
	assert.ErrorIs(t, s.ApplyObservation(100.1, "att-1", 0, time.Now().UTC()), shared.ErrScoreOutOfRange)
	assert.Empty(t, s.History, "rejected observation leaves no trace")
}

func TestApplyObservation_RejectsOutOfOrderHistory(t *testing.T) {
	s := newTestScore(t)
	now := time.Now().UTC()

	require.NoError(t, s.ApplyObservation(50, "att-1", 0, now))
	err := s.ApplyObservation(60, "att-2", 0, now.Add(-time.Hour))
	assert.ErrorIs(t, err, shared.ErrHistoryNotOrdered)
	assert.Len(t, s.History, 1)
}

func TestApplyObservation_XPNeverDecreases(t *testing.T) {
	s := newTestScore(t)
	now := time.Now().UTC()

	require.NoError(t, s.ApplyObservation(50, "att-1", 40, now))
	require.NoError(t, s.ApplyObservation(50, "att-2", -10, now.Add(time.Hour)))

	assert.Equal(t, 40, s.XP, "negative share clamps to zero instead of draining XP")
}

func TestClassifyTrend(t *testing.T) {
	now := time.Now().UTC()
	history := []HistoryPoint{
		{Score: 50, RecordedAt: now},
		{Score: 52, RecordedAt: now.Add(time.Hour)},
		{Score: 54, RecordedAt: now.Add(2 * time.Hour)},
	}

	assert.Equal(t, TrendStable, ClassifyTrend(50, nil), "no history reads as stable")
	assert.Equal(t, TrendStable, ClassifyTrend(54, history), "movement inside the dead zone")
	assert.Equal(t, TrendImproving, ClassifyTrend(60, history))
	assert.Equal(t, TrendNeedsAttention, ClassifyTrend(45, history))
}

func TestClassifyTrend_LooksAtRecentWindowOnly(t *testing.T) {
	now := time.Now().UTC()
	// Old low scores must not drag the baseline down: the window is 3.
	history := []HistoryPoint{
		{Score: 10, RecordedAt: now},
		{Score: 80, RecordedAt: now.Add(time.Hour)},
		{Score: 80, RecordedAt: now.Add(2 * time.Hour)},
		{Score: 80, RecordedAt: now.Add(3 * time.Hour)},
	}
	assert.Equal(t, TrendStable, ClassifyTrend(80, history))
}

func TestLevelForScore_Bands(t *testing.T) {
	assert.Equal(t, LevelEmerging, LevelForScore(0))
	assert.Equal(t, LevelEmerging, LevelForScore(39.9))
	assert.Equal(t, LevelDeveloping, LevelForScore(40))
	assert.Equal(t, LevelProficient, LevelForScore(60))
	assert.Equal(t, LevelAdvanced, LevelForScore(80))
	assert.Equal(t, LevelAdvanced, LevelForScore(100))
}
