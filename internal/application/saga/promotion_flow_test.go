package saga

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/career"
	"github.com/edugami/edugami-engine/internal/domain/journey"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/skill"
	"github.com/edugami/edugami-engine/pkg/timeutil"
)

const (
	testTenantID  = shared.TenantID("a81bc81b-dead-4e5d-abff-90865d1e13b1")
	testStudentID = shared.StudentID("c56a4180-65aa-42ec-a945-5fd21dec0538")
)

// Narrow stubs: the saga touches a single read on each of these
// repositories, so interface embedding keeps the fakes honest - calling
// anything else panics loudly.

type stubSkillRepo struct {
	skill.Repository
	scores []*skill.SkillScore
}

func (s *stubSkillRepo) GetAll(context.Context, shared.TenantID, shared.StudentID) ([]*skill.SkillScore, error) {
	return s.scores, nil
}

type stubAttemptRepo struct {
	attempt.Repository
	completed int
}

func (s *stubAttemptRepo) CountCompletedInWindow(context.Context, shared.TenantID, shared.StudentID, time.Time, time.Time) (int, error) {
	return s.completed, nil
}

type stubCareerRepo struct {
	career.Repository
	unlocked map[career.CareerID]bool
}

func (s *stubCareerRepo) UnlockedSet(context.Context, shared.TenantID, shared.StudentID) (map[career.CareerID]bool, error) {
	return s.unlocked, nil
}

type memJourneyRepo struct {
	mu       sync.Mutex
	journeys map[journey.JourneyID]*journey.GradeJourney
	badges   int
}

func newMemJourneyRepo() *memJourneyRepo {
	return &memJourneyRepo{journeys: make(map[journey.JourneyID]*journey.GradeJourney)}
}

func (r *memJourneyRepo) Save(_ context.Context, j *journey.GradeJourney) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *j
	r.journeys[j.ID] = &cp
	return nil
}

func (r *memJourneyRepo) GetByID(_ context.Context, _ shared.TenantID, id journey.JourneyID) (*journey.GradeJourney, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.journeys[id]
	if !ok {
		return nil, shared.ErrJourneyNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memJourneyRepo) GetOpenJourney(_ context.Context, _ shared.TenantID, studentID shared.StudentID) (*journey.GradeJourney, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.journeys {
		if j.StudentID == studentID && j.Status == journey.StatusInProgress {
			cp := *j
			return &cp, nil
		}
	}
	return nil, shared.ErrNoOpenJourney
}

func (r *memJourneyRepo) GetPendingJourney(_ context.Context, _ shared.TenantID, studentID shared.StudentID) (*journey.GradeJourney, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.journeys {
		if j.StudentID == studentID && j.Status == journey.StatusPending {
			cp := *j
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memJourneyRepo) ListByStudent(_ context.Context, _ shared.TenantID, studentID shared.StudentID) ([]*journey.GradeJourney, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*journey.GradeJourney
	for _, j := range r.journeys {
		if j.StudentID == studentID {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memJourneyRepo) CloseAndActivate(_ context.Context, closed *journey.GradeJourney, activated *journey.GradeJourney) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *closed
	r.journeys[closed.ID] = &cp
	if activated != nil {
		acp := *activated
		r.journeys[activated.ID] = &acp
	}
	return nil
}

func (r *memJourneyRepo) ListSoftEligible(_ context.Context, now time.Time, limit int) ([]*journey.GradeJourney, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*journey.GradeJourney
	for _, j := range r.journeys {
		if j.SoftEligible(now) {
			cp := *j
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memJourneyRepo) SaveBadge(context.Context, *journey.MasteryBadge) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.badges++
	return true, nil
}

func (r *memJourneyRepo) ListBadges(context.Context, shared.TenantID, shared.StudentID) ([]*journey.MasteryBadge, error) {
	return nil, nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) count(eventType shared.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

// ─── fixture ─────────────────────────────────────────────────────────────────

type sagaEnv struct {
	journeys *memJourneyRepo
	skills   *stubSkillRepo
	attempts *stubAttemptRepo
	careers  *stubCareerRepo
	bus      *capturingPublisher
	flow     *PromotionFlow
}

func newSagaEnv(t *testing.T, grade shared.Grade) *sagaEnv {
	t.Helper()
	env := &sagaEnv{
		journeys: newMemJourneyRepo(),
		skills:   &stubSkillRepo{},
		attempts: &stubAttemptRepo{},
		careers:  &stubCareerRepo{unlocked: map[career.CareerID]bool{}},
		bus:      &capturingPublisher{},
	}
	env.flow = NewPromotionFlow(env.journeys, env.skills, env.attempts, env.careers, env.bus)

	j, err := journey.NewGradeJourney(
		"journey-open", testTenantID, testStudentID, grade,
		journey.Window{Start: timeutil.Date(2025, 6, 1), End: timeutil.Date(2026, 6, 1)},
		timeutil.Date(2025, 6, 1),
	)
	require.NoError(t, err)
	require.NoError(t, env.journeys.Save(context.Background(), j))
	return env
}

// masteredSkills returns scores clearing every grade threshold.
func masteredSkills() []*skill.SkillScore {
	var scores []*skill.SkillScore
	for _, cat := range shared.AllSkillCategories() {
		scores = append(scores, &skill.SkillScore{
			TenantID:  testTenantID,
			StudentID: testStudentID,
			Category:  cat,
			Score:     90,
			XP:        500,
		})
	}
	return scores
}

func promotionInput(at time.Time) PromotionInput {
	return PromotionInput{
		TenantID:   testTenantID,
		StudentID:  testStudentID,
		YearConfig: journey.DefaultAcademicYear(),
		Timestamp:  at,
	}
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestPromotion_SoftAfterWindowEnds(t *testing.T) {
	env := newSagaEnv(t, 4)
	ctx := context.Background()

	result, err := env.flow.Execute(ctx, promotionInput(timeutil.Date(2026, 6, 2)))
	require.NoError(t, err)

	assert.Equal(t, "SOFT", result.CompletionType)
	assert.Equal(t, 4, result.FromGrade)
	assert.Equal(t, 5, result.ToGrade)
	assert.False(t, result.BadgeAwarded, "soft completion earns no badge")
	require.NotEmpty(t, result.NewJourneyID)

	closed, err := env.journeys.GetByID(ctx, testTenantID, journey.JourneyID(result.ClosedJourneyID))
	require.NoError(t, err)
	assert.Equal(t, journey.StatusCompleted, closed.Status)
	require.NotNil(t, closed.Summary, "closing freezes the year snapshot")

	opened, err := env.journeys.GetOpenJourney(ctx, testTenantID, testStudentID)
	require.NoError(t, err)
	assert.Equal(t, journey.JourneyID(result.NewJourneyID), opened.ID)
	assert.Equal(t, shared.Grade(5), opened.Grade)
	assert.Equal(t, timeutil.Date(2026, 6, 1), opened.Window.Start, "windows tile without gaps")

	assert.Equal(t, 1, env.bus.count(shared.EventJourneyPromoted))
}

func TestPromotion_NotYetEligible(t *testing.T) {
	env := newSagaEnv(t, 4)

	_, err := env.flow.Execute(context.Background(), promotionInput(timeutil.Date(2026, 1, 15)))
	assert.ErrorIs(t, err, shared.ErrNotYetEligible)

	// The open journey is untouched.
	j, jerr := env.journeys.GetOpenJourney(context.Background(), testTenantID, testStudentID)
	require.NoError(t, jerr)
	assert.Equal(t, journey.JourneyID("journey-open"), j.ID)
}

func TestPromotion_MasteryDoesNotPromoteEarly(t *testing.T) {
	env := newSagaEnv(t, 4)
	env.skills.scores = masteredSkills()
	env.attempts.completed = 10 // grade 4 floor is 6+4

	// Mid-window: every mastery requirement is met, but eligibility is
	// purely date-based.
	_, err := env.flow.Execute(context.Background(), promotionInput(timeutil.Date(2026, 1, 15)))
	assert.ErrorIs(t, err, shared.ErrNotYetEligible)
	assert.Zero(t, env.journeys.badges, "no badge before the window ends")

	j, jerr := env.journeys.GetOpenJourney(context.Background(), testTenantID, testStudentID)
	require.NoError(t, jerr)
	assert.Equal(t, journey.StatusInProgress, j.Status)
}

func TestPromotion_HardCompletionAfterWindowEnds(t *testing.T) {
	env := newSagaEnv(t, 4)
	env.skills.scores = masteredSkills()
	env.attempts.completed = 10

	result, err := env.flow.Execute(context.Background(), promotionInput(timeutil.Date(2026, 6, 2)))
	require.NoError(t, err)

	assert.Equal(t, "HARD", result.CompletionType)
	assert.True(t, result.BadgeAwarded)
	assert.Equal(t, 1, env.journeys.badges)
	assert.Equal(t, 1, env.bus.count(shared.EventBadgeAwarded))
}

func TestPromotion_TooFewAttemptsForfeitsBadgeOnly(t *testing.T) {
	env := newSagaEnv(t, 4)
	env.skills.scores = masteredSkills()
	env.attempts.completed = 9 // one short of the floor

	// Failing a requirement never blocks the soft-completion promotion,
	// it only forfeits the badge.
	result, err := env.flow.Execute(context.Background(), promotionInput(timeutil.Date(2026, 6, 2)))
	require.NoError(t, err)

	assert.Equal(t, "SOFT", result.CompletionType)
	assert.False(t, result.BadgeAwarded)
	assert.Zero(t, env.journeys.badges)
}

func TestPromotion_ResumesAbandonedPendingJourney(t *testing.T) {
	env := newSagaEnv(t, 4)
	ctx := context.Background()

	// A previous run crashed after creating the pending journey.
	pending, err := journey.NewPendingJourney(
		"journey-pending", testTenantID, testStudentID, 5,
		journey.Window{Start: timeutil.Date(2026, 6, 1), End: timeutil.Date(2027, 6, 1)},
		timeutil.Date(2026, 6, 1),
	)
	require.NoError(t, err)
	require.NoError(t, env.journeys.Save(ctx, pending))

	result, err := env.flow.Execute(ctx, promotionInput(timeutil.Date(2026, 6, 2)))
	require.NoError(t, err)

	assert.Equal(t, "journey-pending", result.NewJourneyID, "the retry adopts the leftover pending journey")

	all, err := env.journeys.ListByStudent(ctx, testTenantID, testStudentID)
	require.NoError(t, err)
	assert.Len(t, all, 2, "no duplicate journey was created")
}

func TestPromotion_TerminalGradeClosesWithoutSuccessor(t *testing.T) {
	env := newSagaEnv(t, 12)
	ctx := context.Background()

	result, err := env.flow.Execute(ctx, promotionInput(timeutil.Date(2026, 6, 2)))
	require.NoError(t, err)

	assert.Empty(t, result.NewJourneyID)
	assert.Equal(t, 12, result.FromGrade)
	assert.Equal(t, 12, result.ToGrade)

	_, err = env.journeys.GetOpenJourney(ctx, testTenantID, testStudentID)
	assert.ErrorIs(t, err, shared.ErrNoOpenJourney)
}

func TestPromotion_Idempotent_SecondRunFindsNoOpenJourney(t *testing.T) {
	env := newSagaEnv(t, 4)
	ctx := context.Background()
	input := promotionInput(timeutil.Date(2026, 6, 2))

	first, err := env.flow.Execute(ctx, input)
	require.NoError(t, err)

	// The new journey's window has not ended, so a repeat is not eligible.
	_, err = env.flow.Execute(ctx, input)
	assert.ErrorIs(t, err, shared.ErrNotYetEligible)

	opened, jerr := env.journeys.GetOpenJourney(ctx, testTenantID, testStudentID)
	require.NoError(t, jerr)
	assert.Equal(t, journey.JourneyID(first.NewJourneyID), opened.ID)
}
