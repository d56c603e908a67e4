package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

func TestRecordProgress_PersistsTick(t *testing.T) {
	store := newMemAutosaveStore()
	handler := NewRecordProgressHandler(store, DefaultRecordProgressHandlerConfig())

	result, err := handler.Handle(context.Background(), RecordProgressCommand{
		Identity:  studentIdentity(),
		AttemptID: "att-1",
		Answers:   []ProgressAnswer{{ItemID: "q1", Type: "single_choice", Choice: 2}},
		Ticks:     []ProgressTick{{ItemID: "q1", TimeSpentMs: 4000, HintsUsed: 1}},
	})
	require.NoError(t, err)
	assert.True(t, result.Persisted)

	saved, err := store.LoadProgress(context.Background(), testTenantID, "att-1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, 2, saved.Answers["q1"].Choice)
	assert.Equal(t, 1, saved.TotalHints)
}

func TestRecordProgress_AccumulatesAcrossTicks(t *testing.T) {
	store := newMemAutosaveStore()
	handler := NewRecordProgressHandler(store, DefaultRecordProgressHandlerConfig())
	ctx := context.Background()

	for _, choice := range []int{1, 3} {
		_, err := handler.Handle(ctx, RecordProgressCommand{
			Identity:  studentIdentity(),
			AttemptID: "att-1",
			Answers:   []ProgressAnswer{{ItemID: "q1", Type: "single_choice", Choice: choice}},
			Ticks:     []ProgressTick{{ItemID: "q1", TimeSpentMs: 1000}},
		})
		require.NoError(t, err)
	}

	saved, err := store.LoadProgress(ctx, testTenantID, "att-1")
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Answers["q1"].Choice, "the latest answer wins")
	assert.Equal(t, 2000, saved.TotalTimeMs(), "telemetry is append-only")
}

func TestRecordProgress_StoreOutageIsSwallowed(t *testing.T) {
	store := newMemAutosaveStore()
	store.unavailable = true
	handler := NewRecordProgressHandler(store, DefaultRecordProgressHandlerConfig())

	result, err := handler.Handle(context.Background(), RecordProgressCommand{
		Identity:  studentIdentity(),
		AttemptID: "att-1",
		Ticks:     []ProgressTick{{ItemID: "q1", TimeSpentMs: 1000}},
	})
	require.NoError(t, err, "a lost tick must never fail the caller")
	assert.False(t, result.Persisted)
}

func TestRecordProgress_ValidationStillFails(t *testing.T) {
	store := newMemAutosaveStore()
	handler := NewRecordProgressHandler(store, DefaultRecordProgressHandlerConfig())

	_, err := handler.Handle(context.Background(), RecordProgressCommand{
		Identity:  studentIdentity(),
		AttemptID: "",
	})
	assert.ErrorIs(t, err, shared.ErrAttemptNotFound)

	_, err = handler.Handle(context.Background(), RecordProgressCommand{
		Identity:  studentIdentity(),
		AttemptID: "att-1",
		Answers:   []ProgressAnswer{{ItemID: "q1", Type: "essay"}},
	})
	assert.ErrorIs(t, err, shared.ErrAnswerType)
}

func TestRecordProgress_TTLDefaultApplied(t *testing.T) {
	handler := NewRecordProgressHandler(newMemAutosaveStore(), RecordProgressHandlerConfig{})
	assert.Equal(t, DefaultRecordProgressHandlerConfig().AutosaveTTL, handler.autosaveTTL)
}
