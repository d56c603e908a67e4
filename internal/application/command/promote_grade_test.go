package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugami/edugami-engine/internal/application/saga"
	"github.com/edugami/edugami-engine/internal/domain/journey"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/pkg/timeutil"
)

func teacherIdentity() shared.Identity {
	return shared.Identity{TenantID: testTenantID, StudentID: testStudentID, Role: shared.RoleTeacher}
}

func newPromoteHandler(env *commandEnv) *PromoteGradeHandler {
	flow := saga.NewPromotionFlow(env.journeys, env.skills, env.attempts, env.unlocks, env.bus)
	return NewPromoteGradeHandler(flow)
}

func TestPromoteGrade_OnlyStaffMayPromote(t *testing.T) {
	env := newCommandEnv(t)
	handler := newPromoteHandler(env)

	_, err := handler.Handle(context.Background(), PromoteGradeCommand{
		Identity:  studentIdentity(),
		Timestamp: timeutil.Date(2026, 6, 2),
	})
	assert.ErrorIs(t, err, shared.ErrRoleNotPermitted)
}

func TestPromoteGrade_SoftPromotionAfterWindow(t *testing.T) {
	env := newCommandEnv(t)
	handler := newPromoteHandler(env)

	// Zero YearConfig falls back to the default academic year.
	result, err := handler.Handle(context.Background(), PromoteGradeCommand{
		Identity:  teacherIdentity(),
		Timestamp: timeutil.Date(2026, 6, 2),
	})
	require.NoError(t, err)

	assert.Equal(t, 4, result.FromGrade)
	assert.Equal(t, 5, result.ToGrade)
	assert.Equal(t, "SOFT", result.CompletionType)
	assert.False(t, result.BadgeAwarded)

	opened, err := env.journeys.GetOpenJourney(context.Background(), testTenantID, testStudentID)
	require.NoError(t, err)
	assert.Equal(t, shared.Grade(5), opened.Grade)
	assert.Len(t, env.bus.ofType(shared.EventJourneyPromoted), 1)
}

func TestPromoteGrade_NotYetEligiblePassesThrough(t *testing.T) {
	env := newCommandEnv(t)
	handler := newPromoteHandler(env)

	_, err := handler.Handle(context.Background(), PromoteGradeCommand{
		Identity:   teacherIdentity(),
		YearConfig: journey.DefaultAcademicYear(),
		Timestamp:  timeutil.Date(2026, 1, 15),
	})
	assert.ErrorIs(t, err, shared.ErrNotYetEligible)
}
