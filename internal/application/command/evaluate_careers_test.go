package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugami/edugami-engine/internal/domain/career"
	"github.com/edugami/edugami-engine/internal/domain/shared"
)

func evaluateCmd() EvaluateCareersCommand {
	return EvaluateCareersCommand{TenantID: testTenantID, StudentID: testStudentID}
}

func TestEvaluateCareers_UnlocksAndPublishes(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()

	seedSkill(t, env, shared.SkillCreativity, 70)
	seedSkill(t, env, shared.SkillPlanning, 55)

	result, err := env.careers.Handle(ctx, evaluateCmd())
	require.NoError(t, err)

	require.Len(t, result.NewUnlocks, 1)
	assert.Equal(t, "game_designer", result.NewUnlocks[0].CareerID)
	assert.Equal(t, "Game Designer", result.NewUnlocks[0].Title)
	assert.ElementsMatch(t, []string{"CREATIVITY", "PLANNING"}, result.NewUnlocks[0].LinkedSkills)
	assert.Equal(t, 1, result.TotalUnlocked)

	assert.Len(t, env.bus.ofType(shared.EventCareerUnlocked), 1)

	unlocked, err := env.unlocks.UnlockedSet(ctx, testTenantID, testStudentID)
	require.NoError(t, err)
	assert.True(t, unlocked[career.CareerID("game_designer")])
}

func TestEvaluateCareers_Idempotent(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()

	seedSkill(t, env, shared.SkillCreativity, 70)
	seedSkill(t, env, shared.SkillPlanning, 55)

	first, err := env.careers.Handle(ctx, evaluateCmd())
	require.NoError(t, err)
	require.Len(t, first.NewUnlocks, 1)

	second, err := env.careers.Handle(ctx, evaluateCmd())
	require.NoError(t, err)
	assert.Empty(t, second.NewUnlocks, "re-running with unchanged skills unlocks nothing")
	assert.Equal(t, 1, second.TotalUnlocked)
	assert.Len(t, env.bus.ofType(shared.EventCareerUnlocked), 1, "no duplicate event")
}

func TestEvaluateCareers_UnlocksSurviveScoreDrops(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()

	seedSkill(t, env, shared.SkillCreativity, 70)
	seedSkill(t, env, shared.SkillPlanning, 55)
	_, err := env.careers.Handle(ctx, evaluateCmd())
	require.NoError(t, err)

	// Scores drift below threshold; the unlock stays.
	seedSkill(t, env, shared.SkillCreativity, 10)

	result, err := env.careers.Handle(ctx, evaluateCmd())
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalUnlocked, "unlocks are never revoked")
}

func TestEvaluateCareers_MarksCatalogVersion(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()

	result, err := env.careers.Handle(ctx, evaluateCmd())
	require.NoError(t, err)
	assert.Equal(t, career.DefaultCatalog().Version, result.CatalogVersion)

	// The student no longer shows up in the behind-catalog sweep.
	behind, err := env.unlocks.ListStudentsBelowCatalogVersion(ctx, career.DefaultCatalog().Version, 10)
	require.NoError(t, err)
	assert.Empty(t, behind)
}

func TestEvaluateCareers_NoSkillsNoUnlocks(t *testing.T) {
	env := newCommandEnv(t)

	result, err := env.careers.Handle(context.Background(), evaluateCmd())
	require.NoError(t, err)
	assert.Empty(t, result.NewUnlocks)
	assert.Equal(t, 0, result.TotalUnlocked)
}
