package command

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/career"
	"github.com/edugami/edugami-engine/internal/domain/journey"
	"github.com/edugami/edugami-engine/internal/domain/progression"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/pkg/timeutil"
)

// commandEnv wires the full command stack over in-memory fakes.
type commandEnv struct {
	attempts *memAttemptRepo
	journeys *memJourneyRepo
	skills   *memSkillRepo
	unlocks  *memCareerRepo
	autosave *memAutosaveStore
	bus      *capturingPublisher
	content  *stubContentProvider

	start   *StartAttemptHandler
	submit  *SubmitAttemptHandler
	abandon *AbandonAttemptHandler
	careers *EvaluateCareersHandler
}

func newCommandEnv(t *testing.T) *commandEnv {
	t.Helper()

	env := &commandEnv{
		attempts: newMemAttemptRepo(),
		journeys: newMemJourneyRepo(),
		skills:   newMemSkillRepo(),
		unlocks:  newMemCareerRepo(),
		autosave: newMemAutosaveStore(),
		bus:      &capturingPublisher{},
		content:  &stubContentProvider{itemSet: testContentItemSet()},
	}

	// Every test student has an open grade-4 journey.
	j, err := journey.NewGradeJourney(
		"journey-1", testTenantID, testStudentID, 4,
		journey.Window{Start: timeutil.Date(2025, 6, 1), End: timeutil.Date(2026, 6, 1)},
		timeutil.Date(2025, 6, 1),
	)
	require.NoError(t, err)
	require.NoError(t, env.journeys.Save(context.Background(), j))

	catalog := career.DefaultCatalog()
	n := 0
	evaluator := career.NewEvaluator(catalog, func() string {
		n++
		return fmt.Sprintf("unlock-%d", n)
	})

	env.careers = NewEvaluateCareersHandler(env.skills, env.unlocks, evaluator, catalog, env.bus)
	env.start = NewStartAttemptHandler(env.attempts, env.journeys, env.content, env.bus)
	env.submit = NewSubmitAttemptHandler(env.attempts, env.autosave, env.skills, env.careers, noopTxManager{}, env.bus, progression.DefaultLevelTable())
	env.abandon = NewAbandonAttemptHandler(env.attempts, env.autosave, env.bus)
	return env
}

func testContentItemSet() attempt.ItemSet {
	return attempt.ItemSet{
		SubjectID:      "pattern_puzzles",
		CatalogVersion: 3,
		Items: []attempt.Item{
			{
				ID:             "q1",
				Type:           attempt.ItemSingleChoice,
				Categories:     []shared.SkillCategory{shared.SkillCognitiveReasoning},
				CorrectChoice:  1,
				ExpectedTimeMs: 60_000,
			},
			{
				ID:             "q2",
				Type:           attempt.ItemFreeText,
				Categories:     []shared.SkillCategory{shared.SkillCreativity},
				AcceptedAnswers: []string{"spiral"},
				ExpectedTimeMs: 60_000,
			},
		},
	}
}

func startCmd() StartAttemptCommand {
	return StartAttemptCommand{
		Identity:  studentIdentity(),
		SubjectID: "pattern_puzzles",
		Kind:      "assessment",
	}
}

func TestStartAttempt_OpensAttempt(t *testing.T) {
	env := newCommandEnv(t)

	result, err := env.start.Handle(context.Background(), startCmd())
	require.NoError(t, err)

	assert.NotEmpty(t, result.AttemptID)
	assert.Equal(t, 1, result.AttemptNumber)
	assert.Equal(t, 2, result.ItemCount)
	assert.Equal(t, shared.Grade(4), env.content.lastGrade, "the student's current grade drives content difficulty")

	stored, err := env.attempts.GetByID(context.Background(), testTenantID, attempt.AttemptID(result.AttemptID))
	require.NoError(t, err)
	assert.True(t, stored.IsOpen())

	assert.Len(t, env.bus.ofType(shared.EventAttemptStarted), 1)
}

func TestStartAttempt_SecondOpenAttemptConflicts(t *testing.T) {
	env := newCommandEnv(t)

	_, err := env.start.Handle(context.Background(), startCmd())
	require.NoError(t, err)

	_, err = env.start.Handle(context.Background(), startCmd())
	assert.ErrorIs(t, err, shared.ErrAttemptAlreadyOpen)
}

func TestStartAttempt_NewAttemptAfterClosingPrevious(t *testing.T) {
	env := newCommandEnv(t)
	ctx := context.Background()

	first, err := env.start.Handle(ctx, startCmd())
	require.NoError(t, err)

	_, err = env.abandon.Handle(ctx, AbandonAttemptCommand{Identity: studentIdentity(), AttemptID: first.AttemptID})
	require.NoError(t, err)

	second, err := env.start.Handle(ctx, startCmd())
	require.NoError(t, err)
	assert.Equal(t, 2, second.AttemptNumber, "attempt numbers keep counting across closed attempts")
}

func TestStartAttempt_RejectsNonStudentRole(t *testing.T) {
	env := newCommandEnv(t)

	cmd := startCmd()
	cmd.Identity.Role = shared.RoleTeacher
	_, err := env.start.Handle(context.Background(), cmd)
	assert.ErrorIs(t, err, shared.ErrRoleNotPermitted)
}

func TestStartAttempt_RejectsEmptyAssessment(t *testing.T) {
	env := newCommandEnv(t)
	env.content.itemSet = attempt.ItemSet{SubjectID: "pattern_puzzles"}

	_, err := env.start.Handle(context.Background(), startCmd())
	assert.ErrorIs(t, err, shared.ErrContentInvalidResponse)

	// A quest with zero scoreable items is fine.
	cmd := startCmd()
	cmd.Kind = "quest"
	result, err := env.start.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ItemCount)
}

func TestStartAttempt_ContentFailurePropagates(t *testing.T) {
	env := newCommandEnv(t)
	env.content.err = shared.ErrContentUnavailable

	_, err := env.start.Handle(context.Background(), startCmd())
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrContentUnavailable)

	_, err = env.attempts.GetOpenAttempt(context.Background(), testTenantID, testStudentID, "pattern_puzzles")
	assert.True(t, shared.IsNotFound(err), "no attempt may be left behind on content failure")
}

func TestStartAttempt_RequiresOpenJourney(t *testing.T) {
	env := newCommandEnv(t)
	// Close the seeded journey.
	j, err := env.journeys.GetOpenJourney(context.Background(), testTenantID, testStudentID)
	require.NoError(t, err)
	require.NoError(t, j.Close(journey.CompletionSoft, journey.Snapshot{TakenAt: time.Now().UTC()}, time.Now().UTC()))
	require.NoError(t, env.journeys.Save(context.Background(), j))

	_, err = env.start.Handle(context.Background(), startCmd())
	assert.ErrorIs(t, err, shared.ErrNoOpenJourney)
}
