package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/career"
	"github.com/edugami/edugami-engine/internal/domain/journey"
	"github.com/edugami/edugami-engine/internal/domain/progression"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/skill"
	"github.com/edugami/edugami-engine/internal/infrastructure/persistence/projections"
	"github.com/edugami/edugami-engine/pkg/timeutil"
)

const (
	testTenantID  = shared.TenantID("a81bc81b-dead-4e5d-abff-90865d1e13b1")
	testStudentID = shared.StudentID("c56a4180-65aa-42ec-a945-5fd21dec0538")
)

func identityWith(role shared.Role) shared.Identity {
	return shared.Identity{TenantID: testTenantID, StudentID: testStudentID, Role: role}
}

// Queries touch a narrow slice of each repository; stubs embed the
// interface so anything else panics loudly.

type stubSkillRepo struct {
	skill.Repository
	scores []*skill.SkillScore
}

func (r *stubSkillRepo) GetAll(context.Context, shared.TenantID, shared.StudentID) ([]*skill.SkillScore, error) {
	return r.scores, nil
}

type stubJourneyRepo struct {
	journey.Repository
	open   *journey.GradeJourney
	badges []*journey.MasteryBadge
}

func (r *stubJourneyRepo) GetOpenJourney(context.Context, shared.TenantID, shared.StudentID) (*journey.GradeJourney, error) {
	if r.open == nil {
		return nil, shared.ErrNoOpenJourney
	}
	return r.open, nil
}

func (r *stubJourneyRepo) ListBadges(context.Context, shared.TenantID, shared.StudentID) ([]*journey.MasteryBadge, error) {
	return r.badges, nil
}

type stubAttemptRepo struct {
	attempt.Repository
	completed int
	recent    []*attempt.Attempt
}

func (r *stubAttemptRepo) CountCompletedInWindow(context.Context, shared.TenantID, shared.StudentID, time.Time, time.Time) (int, error) {
	return r.completed, nil
}

func (r *stubAttemptRepo) ListByStudent(context.Context, shared.TenantID, shared.StudentID, int) ([]*attempt.Attempt, error) {
	return r.recent, nil
}

type stubCareerRepo struct {
	career.Repository
	unlocks []*career.Unlock
}

func (r *stubCareerRepo) ListUnlocks(context.Context, shared.TenantID, shared.StudentID) ([]*career.Unlock, error) {
	return r.unlocks, nil
}

type memSkillTreeCache struct {
	entries map[string]*projections.SkillTreeView
}

func newMemSkillTreeCache() *memSkillTreeCache {
	return &memSkillTreeCache{entries: make(map[string]*projections.SkillTreeView)}
}

func cacheKey(tenantID shared.TenantID, studentID shared.StudentID, role shared.Role) string {
	return string(tenantID) + "|" + string(studentID) + "|" + string(role)
}

func (c *memSkillTreeCache) Get(_ context.Context, tenantID shared.TenantID, studentID shared.StudentID, role shared.Role) (*projections.SkillTreeView, error) {
	return c.entries[cacheKey(tenantID, studentID, role)], nil
}

func (c *memSkillTreeCache) Set(_ context.Context, tenantID shared.TenantID, studentID shared.StudentID, role shared.Role, view *projections.SkillTreeView, _ time.Duration) error {
	c.entries[cacheKey(tenantID, studentID, role)] = view
	return nil
}

func (c *memSkillTreeCache) Invalidate(_ context.Context, tenantID shared.TenantID, studentID shared.StudentID) error {
	for _, role := range []shared.Role{shared.RoleStudent, shared.RoleParent, shared.RoleTeacher, shared.RoleAdmin} {
		delete(c.entries, cacheKey(tenantID, studentID, role))
	}
	return nil
}

func scoredSkill(category shared.SkillCategory, score float64, xp, observations int) *skill.SkillScore {
	history := make([]skill.HistoryPoint, observations)
	for i := range history {
		history[i] = skill.HistoryPoint{Score: score, RecordedAt: timeutil.Date(2026, 1, 1+i)}
	}
	return &skill.SkillScore{
		TenantID:  testTenantID,
		StudentID: testStudentID,
		Category:  category,
		Score:     score,
		Level:     skill.LevelForScore(score),
		Trend:     skill.TrendStable,
		XP:        xp,
		History:   history,
	}
}

// ─── skill tree ──────────────────────────────────────────────────────────────

func newSkillTreeHandler(scores []*skill.SkillScore, cache SkillTreeCache) *GetSkillTreeHandler {
	builder := projections.NewSkillTreeBuilder(skill.DefaultCatalog(), progression.DefaultLevelTable(), progression.DefaultBandTable())
	return NewGetSkillTreeHandler(&stubSkillRepo{scores: scores}, builder, cache, DefaultGetSkillTreeHandlerConfig())
}

func TestGetSkillTree_BuildsAndCaches(t *testing.T) {
	cache := newMemSkillTreeCache()
	repo := &stubSkillRepo{scores: []*skill.SkillScore{scoredSkill(shared.SkillPlanning, 72, 130, 4)}}
	builder := projections.NewSkillTreeBuilder(skill.DefaultCatalog(), progression.DefaultLevelTable(), progression.DefaultBandTable())
	handler := NewGetSkillTreeHandler(repo, builder, cache, DefaultGetSkillTreeHandlerConfig())
	ctx := context.Background()

	first, err := handler.Handle(ctx, GetSkillTreeQuery{Identity: identityWith(shared.RoleStudent)})
	require.NoError(t, err)
	assert.Equal(t, 130, first.TotalXP)
	assert.Len(t, first.Nodes, len(skill.DefaultCatalog().Definitions))

	// The repo changes; the cached view is served until invalidation.
	repo.scores = nil
	second, err := handler.Handle(ctx, GetSkillTreeQuery{Identity: identityWith(shared.RoleStudent)})
	require.NoError(t, err)
	assert.Equal(t, 130, second.TotalXP)

	require.NoError(t, cache.Invalidate(ctx, testTenantID, testStudentID))
	third, err := handler.Handle(ctx, GetSkillTreeQuery{Identity: identityWith(shared.RoleStudent)})
	require.NoError(t, err)
	assert.Equal(t, 0, third.TotalXP)
}

func TestGetSkillTree_CacheIsKeyedByRole(t *testing.T) {
	cache := newMemSkillTreeCache()
	handler := newSkillTreeHandler([]*skill.SkillScore{scoredSkill(shared.SkillPlanning, 72, 130, 4)}, cache)
	ctx := context.Background()

	studentView, err := handler.Handle(ctx, GetSkillTreeQuery{Identity: identityWith(shared.RoleStudent)})
	require.NoError(t, err)
	teacherView, err := handler.Handle(ctx, GetSkillTreeQuery{Identity: identityWith(shared.RoleTeacher)})
	require.NoError(t, err)

	var studentBand, teacherBand string
	for _, n := range studentView.Nodes {
		if n.Category == shared.SkillPlanning.String() {
			studentBand = n.MaturityBand
		}
	}
	for _, n := range teacherView.Nodes {
		if n.Category == shared.SkillPlanning.String() {
			teacherBand = n.MaturityBand
		}
	}
	assert.Empty(t, studentBand, "the internal band never reaches students")
	assert.Equal(t, "ESTABLISHED", teacherBand)
	assert.Len(t, cache.entries, 2, "one entry per role")
}

func TestGetSkillTree_WorksWithoutCache(t *testing.T) {
	handler := newSkillTreeHandler(nil, nil)

	view, err := handler.Handle(context.Background(), GetSkillTreeQuery{Identity: identityWith(shared.RoleStudent)})
	require.NoError(t, err)
	assert.Len(t, view.Nodes, len(skill.DefaultCatalog().Definitions), "tree shape is stable even with no data")
}

func TestGetSkillTree_RejectsInvalidIdentity(t *testing.T) {
	handler := newSkillTreeHandler(nil, nil)

	_, err := handler.Handle(context.Background(), GetSkillTreeQuery{})
	assert.Error(t, err)
}

// ─── grade status ────────────────────────────────────────────────────────────

func openJourney(t *testing.T, grade int) *journey.GradeJourney {
	t.Helper()
	j, err := journey.NewGradeJourney(
		"journey-1", testTenantID, testStudentID, shared.Grade(grade),
		journey.Window{Start: timeutil.Date(2025, 6, 1), End: timeutil.Date(2026, 6, 1)},
		timeutil.Date(2025, 6, 1),
	)
	require.NoError(t, err)
	return j
}

func TestGetGradeStatus_ReportsRequirementProgress(t *testing.T) {
	var scores []*skill.SkillScore
	for _, cat := range shared.AllSkillCategories() {
		if cat == shared.SkillResilience {
			continue // never observed
		}
		scores = append(scores, scoredSkill(cat, 90, 200, 4))
	}

	handler := NewGetGradeStatusHandler(
		&stubJourneyRepo{open: openJourney(t, 4)},
		&stubSkillRepo{scores: scores},
		&stubAttemptRepo{completed: 10},
	)

	result, err := handler.Handle(context.Background(), GetGradeStatusQuery{
		Identity: identityWith(shared.RoleStudent),
		Now:      timeutil.Date(2026, 1, 15),
	})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Grade)
	assert.Equal(t, "IN_PROGRESS", result.Status)
	assert.False(t, result.SoftEligible, "window has not ended yet")
	assert.False(t, result.HardComplete, "an unobserved category blocks hard completion")
	assert.Equal(t, 10, result.AttemptsCompleted)
	assert.Equal(t, 10, result.AttemptsRequired)

	require.Len(t, result.Requirements, len(shared.AllSkillCategories()))
	byCategory := make(map[string]RequirementLine, len(result.Requirements))
	for _, line := range result.Requirements {
		byCategory[line.Category] = line
	}
	planning := byCategory["PLANNING"]
	assert.Equal(t, 90.0, planning.Current)
	assert.Equal(t, 44.0, planning.Required)
	assert.True(t, planning.Met)

	resilience := byCategory["RESILIENCE"]
	assert.Equal(t, 0.0, resilience.Current)
	assert.False(t, resilience.Met)
}

func TestGetGradeStatus_HardCompleteAndSoftEligible(t *testing.T) {
	var scores []*skill.SkillScore
	for _, cat := range shared.AllSkillCategories() {
		scores = append(scores, scoredSkill(cat, 90, 200, 4))
	}

	handler := NewGetGradeStatusHandler(
		&stubJourneyRepo{open: openJourney(t, 4)},
		&stubSkillRepo{scores: scores},
		&stubAttemptRepo{completed: 12},
	)

	result, err := handler.Handle(context.Background(), GetGradeStatusQuery{
		Identity: identityWith(shared.RoleStudent),
		Now:      timeutil.Date(2026, 6, 2),
	})
	require.NoError(t, err)
	assert.True(t, result.HardComplete)
	assert.True(t, result.SoftEligible)
}

func TestGetGradeStatus_NoOpenJourney(t *testing.T) {
	handler := NewGetGradeStatusHandler(&stubJourneyRepo{}, &stubSkillRepo{}, &stubAttemptRepo{})

	_, err := handler.Handle(context.Background(), GetGradeStatusQuery{Identity: identityWith(shared.RoleStudent)})
	assert.ErrorIs(t, err, shared.ErrNoOpenJourney)
}

// ─── student summary ─────────────────────────────────────────────────────────

func newSummaryHandler(t *testing.T, journeyRepo *stubJourneyRepo, skills []*skill.SkillScore, unlocks []*career.Unlock, recent []*attempt.Attempt) *GetStudentSummaryHandler {
	t.Helper()
	builder := projections.NewStudentSummaryBuilder(skill.DefaultCatalog(), career.DefaultCatalog(), progression.DefaultBandTable())
	return NewGetStudentSummaryHandler(
		journeyRepo,
		&stubSkillRepo{scores: skills},
		&stubCareerRepo{unlocks: unlocks},
		&stubAttemptRepo{recent: recent},
		builder,
	)
}

func TestGetStudentSummary_StudentsAreNotPermitted(t *testing.T) {
	handler := newSummaryHandler(t, &stubJourneyRepo{}, nil, nil, nil)

	_, err := handler.Handle(context.Background(), GetStudentSummaryQuery{Identity: identityWith(shared.RoleStudent)})
	assert.ErrorIs(t, err, shared.ErrRoleNotPermitted)
}

func TestGetStudentSummary_BandsOnlyForTeachers(t *testing.T) {
	journeyRepo := &stubJourneyRepo{open: openJourney(t, 4)}
	skills := []*skill.SkillScore{scoredSkill(shared.SkillCreativity, 72, 130, 4)}

	handler := newSummaryHandler(t, journeyRepo, skills, nil, nil)
	ctx := context.Background()

	parentView, err := handler.Handle(ctx, GetStudentSummaryQuery{Identity: identityWith(shared.RoleParent), Now: timeutil.Date(2026, 1, 15)})
	require.NoError(t, err)
	require.Len(t, parentView.Skills, 1)
	assert.Empty(t, parentView.Skills[0].MaturityBand)

	teacherView, err := handler.Handle(ctx, GetStudentSummaryQuery{Identity: identityWith(shared.RoleTeacher), Now: timeutil.Date(2026, 1, 15)})
	require.NoError(t, err)
	require.Len(t, teacherView.Skills, 1)
	assert.Equal(t, "ESTABLISHED", teacherView.Skills[0].MaturityBand)
	assert.Equal(t, 4, teacherView.Grade.Grade)
	assert.Equal(t, 130, teacherView.TotalXP)
}

func TestGetStudentSummary_IncludesCareersBadgesAndAttempts(t *testing.T) {
	unlockedAt := timeutil.Date(2026, 2, 1)
	unlock, err := career.NewUnlock("unlock-1", testTenantID, testStudentID, "game_designer", career.DefaultCatalog().Version, nil, unlockedAt)
	require.NoError(t, err)

	badge, err := journey.NewMasteryBadge("badge-1", testTenantID, testStudentID, 3, timeutil.Date(2025, 5, 30))
	require.NoError(t, err)

	open, err := attempt.NewAttempt(
		"att-1", testTenantID, testStudentID,
		"pattern_puzzles", shared.SubjectKindAssessment, 1,
		attempt.ItemSet{SubjectID: "pattern_puzzles"},
		timeutil.Date(2026, 3, 1),
	)
	require.NoError(t, err)

	journeyRepo := &stubJourneyRepo{open: openJourney(t, 4), badges: []*journey.MasteryBadge{badge}}
	handler := newSummaryHandler(t, journeyRepo, nil, []*career.Unlock{unlock}, []*attempt.Attempt{open})

	view, err := handler.Handle(context.Background(), GetStudentSummaryQuery{Identity: identityWith(shared.RoleParent), Now: timeutil.Date(2026, 3, 2)})
	require.NoError(t, err)

	require.Len(t, view.Careers, 1)
	assert.Equal(t, "game_designer", view.Careers[0].CareerID)
	assert.Equal(t, "Game Designer", view.Careers[0].Title)
	assert.Equal(t, unlockedAt, view.Careers[0].UnlockedAt)

	assert.Equal(t, []int{3}, view.Badges)

	require.Len(t, view.RecentAttempts, 1)
	assert.Equal(t, "att-1", view.RecentAttempts[0].AttemptID)
	assert.Equal(t, "IN_PROGRESS", view.RecentAttempts[0].Status)
	assert.Zero(t, view.RecentAttempts[0].XPAwarded, "open attempts carry no result")
}

func TestGetStudentSummary_NoOpenJourneyTolerated(t *testing.T) {
	handler := newSummaryHandler(t, &stubJourneyRepo{}, nil, nil, nil)

	view, err := handler.Handle(context.Background(), GetStudentSummaryQuery{Identity: identityWith(shared.RoleParent)})
	require.NoError(t, err, "a student between journeys still has a summary")
	assert.Zero(t, view.Grade.Grade)
}
