package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/shared"
)

func TestAbandonAttempt_ClosesWithoutScoring(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()
	attemptID := startTestAttempt(t, env)

	result, err := env.abandon.Handle(ctx, AbandonAttemptCommand{Identity: studentIdentity(), AttemptID: attemptID})
	require.NoError(t, err)
	assert.Equal(t, attemptID, result.AttemptID)

	stored, err := env.attempts.GetByID(ctx, testTenantID, attempt.AttemptID(attemptID))
	require.NoError(t, err)
	assert.Equal(t, attempt.StatusAbandoned, stored.Status)
	assert.Equal(t, attempt.AbandonExplicit, stored.AbandonedReason)
	assert.Nil(t, stored.Result)

	// No skills touched, no XP awarded.
	all, err := env.skills.GetAll(ctx, testTenantID, testStudentID)
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.Len(t, env.bus.ofType(shared.EventAttemptAbandoned), 1)
}

func TestAbandonAttempt_DiscardsAutosave(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()
	attemptID := startTestAttempt(t, env)

	record := NewRecordProgressHandler(env.autosave, DefaultRecordProgressHandlerConfig())
	_, err := record.Handle(ctx, RecordProgressCommand{
		Identity:  studentIdentity(),
		AttemptID: attemptID,
		Answers:   []ProgressAnswer{{ItemID: "q1", Type: "single_choice", Choice: 1}},
	})
	require.NoError(t, err)

	_, err = env.abandon.Handle(ctx, AbandonAttemptCommand{Identity: studentIdentity(), AttemptID: attemptID})
	require.NoError(t, err)

	saved, err := env.autosave.LoadProgress(ctx, testTenantID, attempt.AttemptID(attemptID))
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestAbandonAttempt_AlreadyClosed(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()
	attemptID := startTestAttempt(t, env)

	cmd := AbandonAttemptCommand{Identity: studentIdentity(), AttemptID: attemptID}
	_, err := env.abandon.Handle(ctx, cmd)
	require.NoError(t, err)

	_, err = env.abandon.Handle(ctx, cmd)
	assert.ErrorIs(t, err, shared.ErrAttemptAlreadyClosed)
}

func TestAbandonAttempt_UnknownAttempt(t *testing.T) {
	env := newCommandEnv(t)

	_, err := env.abandon.Handle(context.Background(), AbandonAttemptCommand{Identity: studentIdentity(), AttemptID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
}
