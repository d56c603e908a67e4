package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/skill"
	"github.com/edugami/edugami-engine/pkg/timeutil"
)

func correctAnswers() []ProgressAnswer {
	return []ProgressAnswer{
		{ItemID: "q1", Type: "single_choice", Choice: 1},
		{ItemID: "q2", Type: "free_text", Text: "spiral"},
	}
}

func submitCmd(attemptID string, answers []ProgressAnswer) SubmitAttemptCommand {
	return SubmitAttemptCommand{
		Identity:  studentIdentity(),
		AttemptID: attemptID,
		Answers:   answers,
	}
}

// startTestAttempt opens an attempt through the real handler.
func startTestAttempt(t *testing.T, env *commandEnv) string {
	t.Helper()
	result, err := env.start.Handle(context.Background(), startCmd())
	require.NoError(t, err)
	return result.AttemptID
}

// seedSkill stores a skill aggregate with one observation at the given score.
func seedSkill(t *testing.T, env *commandEnv, category shared.SkillCategory, score float64) {
	t.Helper()
	now := timeutil.Date(2025, 7, 1)
	s, err := skill.NewSkillScore(testTenantID, testStudentID, category, now)
	require.NoError(t, err)
	require.NoError(t, s.ApplyObservation(score, "seed", 0, now))
	require.NoError(t, env.skills.Save(context.Background(), s))
}

func TestSubmitAttempt_ScoresAndUpdatesSkills(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()
	attemptID := startTestAttempt(t, env)

	result, err := env.submit.Handle(ctx, submitCmd(attemptID, correctAnswers()))
	require.NoError(t, err)

	assert.False(t, result.Replayed)
	assert.Equal(t, 2, result.CorrectCount)
	assert.Equal(t, 2, result.TotalCount)
	assert.InDelta(t, 1.0, result.Accuracy, 1e-9)
	assert.Greater(t, result.XPAwarded, 0)

	// One outcome per measured category, XP shares summing to the award.
	require.Len(t, result.Categories, 2)
	totalShares := 0
	for _, c := range result.Categories {
		totalShares += c.XPGained
		assert.Equal(t, 100.0, c.Observed)
	}
	assert.Equal(t, result.XPAwarded, totalShares)

	// Skills were persisted.
	reasoning, err := env.skills.Get(ctx, testTenantID, testStudentID, shared.SkillCognitiveReasoning)
	require.NoError(t, err)
	assert.Equal(t, 100.0, reasoning.Score)
	assert.Len(t, reasoning.History, 1)

	// The attempt is closed with a frozen result.
	stored, err := env.attempts.GetByID(ctx, testTenantID, attempt.AttemptID(attemptID))
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusCompleted, stored.Status)
	require.NotNil(t, stored.Result)

	assert.Len(t, env.bus.ofType(shared.EventAttemptCompleted), 1)
	assert.Len(t, env.bus.ofType(shared.EventXPGained), 1)
}

func TestSubmitAttempt_DoubleSubmitReplaysFrozenResult(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()
	attemptID := startTestAttempt(t, env)

	first, err := env.submit.Handle(ctx, submitCmd(attemptID, correctAnswers()))
	require.NoError(t, err)

	// Submitting different answers afterwards does not rescore.
	wrong := []ProgressAnswer{
		{ItemID: "q1", Type: "single_choice", Choice: 9},
		{ItemID: "q2", Type: "free_text", Text: "wrong"},
	}
	second, err := env.submit.Handle(ctx, submitCmd(attemptID, wrong))
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.CorrectCount, second.CorrectCount)
	assert.Equal(t, first.XPAwarded, second.XPAwarded)

	// Skills got exactly one observation, XP was not double-awarded.
	reasoning, err := env.skills.Get(ctx, testTenantID, testStudentID, shared.SkillCognitiveReasoning)
	require.NoError(t, err)
	assert.Len(t, reasoning.History, 1)

	assert.Len(t, env.bus.ofType(shared.EventAttemptCompleted), 1, "no second completion event")
}

func TestSubmitAttempt_AnswerValidationLeavesAttemptOpen(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()
	attemptID := startTestAttempt(t, env)

	_, err := env.submit.Handle(ctx, submitCmd(attemptID, correctAnswers()[:1]))
	assert.ErrorIs(t, err, shared.ErrAnswerCardinality)

	stored, err := env.attempts.GetByID(ctx, testTenantID, attempt.AttemptID(attemptID))
	require.NoError(t, err)
	assert.True(t, stored.IsOpen(), "failed validation must not close the attempt")

	// The corrected batch then succeeds.
	_, err = env.submit.Handle(ctx, submitCmd(attemptID, correctAnswers()))
	assert.NoError(t, err)
}

func TestSubmitAttempt_MergesAutosavedTelemetry(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()
	attemptID := startTestAttempt(t, env)

	// Autosaved hints lower the normalized score (2 hints = 6 points).
	record := NewRecordProgressHandler(env.autosave, DefaultRecordProgressHandlerConfig())
	_, err := record.Handle(ctx, RecordProgressCommand{
		Identity:  studentIdentity(),
		AttemptID: attemptID,
		Ticks:     []ProgressTick{{ItemID: "q1", TimeSpentMs: 10_000, HintsUsed: 2}},
	})
	require.NoError(t, err)

	result, err := env.submit.Handle(ctx, submitCmd(attemptID, correctAnswers()))
	require.NoError(t, err)

	for _, c := range result.Categories {
		assert.InDelta(t, 94.0, c.Observed, 1e-9)
	}

	// Autosave entry is discarded after a successful submit.
	saved, err := env.autosave.LoadProgress(ctx, testTenantID, attempt.AttemptID(attemptID))
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestSubmitAttempt_CallerTelemetryAppliesWithoutAutosave(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()
	attemptID := startTestAttempt(t, env)

	// No autosave ticks at all: the caller-supplied summary alone must
	// drive the penalties (2 hints = 6 points).
	cmd := submitCmd(attemptID, correctAnswers())
	cmd.Telemetry = &attempt.TelemetrySummary{TimeSpentMs: 10_000, HintsUsed: 2}

	result, err := env.submit.Handle(ctx, cmd)
	require.NoError(t, err)

	require.NotEmpty(t, result.Categories)
	for _, c := range result.Categories {
		assert.InDelta(t, 94.0, c.Observed, 1e-9)
	}

	stored, err := env.attempts.GetByID(ctx, testTenantID, attempt.AttemptID(attemptID))
	require.NoError(t, err)
	require.NotNil(t, stored.Result)
	assert.Equal(t, 10_000, stored.Result.TimeSpentMs)
	assert.Equal(t, 2, stored.Result.HintsUsed)
}

func TestSubmitAttempt_CallerTelemetryOverridesAutosave(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()
	attemptID := startTestAttempt(t, env)

	record := NewRecordProgressHandler(env.autosave, DefaultRecordProgressHandlerConfig())
	_, err := record.Handle(ctx, RecordProgressCommand{
		Identity:  studentIdentity(),
		AttemptID: attemptID,
		Ticks:     []ProgressTick{{ItemID: "q1", TimeSpentMs: 10_000, HintsUsed: 2}},
	})
	require.NoError(t, err)

	// The client's roll-up says no hints were used; it wins over the
	// partial autosave ticks.
	cmd := submitCmd(attemptID, correctAnswers())
	cmd.Telemetry = &attempt.TelemetrySummary{TimeSpentMs: 10_000}

	result, err := env.submit.Handle(ctx, cmd)
	require.NoError(t, err)

	for _, c := range result.Categories {
		assert.InDelta(t, 100.0, c.Observed, 1e-9)
	}
}

func TestSubmitAttempt_NegativeTelemetryRejected(t *testing.T) {
	env := newCommandEnv(t)
	attemptID := startTestAttempt(t, env)

	cmd := submitCmd(attemptID, correctAnswers())
	cmd.Telemetry = &attempt.TelemetrySummary{TimeSpentMs: -1}

	_, err := env.submit.Handle(context.Background(), cmd)
	assert.ErrorIs(t, err, shared.ErrTelemetryInvalid)
}

func TestSubmitAttempt_ReplayReturnsCategoryScores(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()
	attemptID := startTestAttempt(t, env)

	first, err := env.submit.Handle(ctx, submitCmd(attemptID, correctAnswers()))
	require.NoError(t, err)
	require.NotEmpty(t, first.Categories)

	second, err := env.submit.Handle(ctx, submitCmd(attemptID, correctAnswers()))
	require.NoError(t, err)
	require.True(t, second.Replayed)

	// The frozen per-category scores come back on every retry.
	require.Len(t, second.Categories, len(first.Categories))
	shares := 0
	for i, c := range second.Categories {
		assert.Equal(t, first.Categories[i].Category, c.Category)
		assert.InDelta(t, first.Categories[i].Observed, c.Observed, 1e-9)
		shares += c.XPGained
	}
	assert.Equal(t, first.XPAwarded, shares)
}

func TestSubmitAttempt_AutosaveOutageDoesNotBlockSubmit(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()
	attemptID := startTestAttempt(t, env)

	env.autosave.unavailable = true

	result, err := env.submit.Handle(ctx, submitCmd(attemptID, correctAnswers()))
	require.NoError(t, err, "the final answer batch is self-sufficient")
	assert.Equal(t, 2, result.CorrectCount)
}

func TestSubmitAttempt_UnlocksCareers(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()

	// Seed planning so a perfect creativity run crosses the game_designer
	// thresholds (CREATIVITY 60, PLANNING 50) without reaching architect.
	seedSkill(t, env, shared.SkillPlanning, 55)

	attemptID := startTestAttempt(t, env)
	result, err := env.submit.Handle(ctx, submitCmd(attemptID, correctAnswers()))
	require.NoError(t, err)

	require.Len(t, result.NewCareers, 1)
	assert.Equal(t, "game_designer", result.NewCareers[0].CareerID)
	assert.Len(t, env.bus.ofType(shared.EventCareerUnlocked), 1)
}

func TestSubmitAttempt_SubmittingAbandonedAttemptFails(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()
	attemptID := startTestAttempt(t, env)

	_, err := env.abandon.Handle(ctx, AbandonAttemptCommand{Identity: studentIdentity(), AttemptID: attemptID})
	require.NoError(t, err)

	_, err = env.submit.Handle(ctx, submitCmd(attemptID, correctAnswers()))
	assert.ErrorIs(t, err, shared.ErrAttemptAlreadyClosed)
}

func TestSubmitAttempt_ForeignStudentRejected(t *testing.T) {
	env := newCommandEnv(t)
	attemptID := startTestAttempt(t, env)

	cmd := submitCmd(attemptID, correctAnswers())
	cmd.Identity.StudentID = "99999999-aaaa-4bbb-8ccc-000000000001"
	_, err := env.submit.Handle(context.Background(), cmd)
	assert.ErrorIs(t, err, shared.ErrWrongTenant)
}
