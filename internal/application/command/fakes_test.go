package command

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/career"
	"github.com/edugami/edugami-engine/internal/domain/journey"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/skill"
)

// In-memory fakes shared by the command handler tests. They mirror the
// contracts of the postgres implementations: composite keys are scoped by
// tenant, conditional transitions are guarded by status.

// ─── attempt repository ──────────────────────────────────────────────────────

type memAttemptRepo struct {
	mu       sync.Mutex
	attempts map[attempt.AttemptID]*attempt.Attempt
}

func newMemAttemptRepo() *memAttemptRepo {
	return &memAttemptRepo{attempts: make(map[attempt.AttemptID]*attempt.Attempt)}
}

func (r *memAttemptRepo) Save(_ context.Context, a *attempt.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.IsOpen() {
		for _, existing := range r.attempts {
			if existing.ID != a.ID && existing.IsOpen() &&
				existing.TenantID == a.TenantID && existing.StudentID == a.StudentID && existing.SubjectID == a.SubjectID {
				// Mirrors the partial unique index on open attempts.
				return shared.ErrConflict
			}
		}
	}
	cp := *a
	r.attempts[a.ID] = &cp
	return nil
}

func (r *memAttemptRepo) GetByID(_ context.Context, tenantID shared.TenantID, id attempt.AttemptID) (*attempt.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok || a.TenantID != tenantID {
		return nil, shared.ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memAttemptRepo) GetOpenAttempt(_ context.Context, tenantID shared.TenantID, studentID shared.StudentID, subjectID shared.SubjectID) (*attempt.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.IsOpen() && a.TenantID == tenantID && a.StudentID == studentID && a.SubjectID == subjectID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, shared.ErrAttemptNotFound
}

func (r *memAttemptRepo) NextAttemptNumber(_ context.Context, tenantID shared.TenantID, studentID shared.StudentID, subjectID shared.SubjectID) (attempt.AttemptNumber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.attempts {
		if a.TenantID == tenantID && a.StudentID == studentID && a.SubjectID == subjectID {
			n++
		}
	}
	return attempt.AttemptNumber(n + 1), nil
}

func (r *memAttemptRepo) CompleteIfInProgress(_ context.Context, a *attempt.Attempt) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.attempts[a.ID]
	if !ok {
		return false, shared.ErrAttemptNotFound
	}
	if stored.Status != attempt.StatusInProgress {
		return false, nil
	}
	cp := *a
	r.attempts[a.ID] = &cp
	return true, nil
}

func (r *memAttemptRepo) AbandonIfInProgress(_ context.Context, tenantID shared.TenantID, id attempt.AttemptID, reason attempt.AbandonReason, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.attempts[id]
	if !ok || stored.TenantID != tenantID {
		return false, shared.ErrAttemptNotFound
	}
	if stored.Status != attempt.StatusInProgress {
		return false, nil
	}
	if err := stored.Abandon(reason, at); err != nil {
		return false, err
	}
	return true, nil
}

func (r *memAttemptRepo) ListByStudent(_ context.Context, tenantID shared.TenantID, studentID shared.StudentID, limit int) ([]*attempt.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*attempt.Attempt
	for _, a := range r.attempts {
		if a.TenantID == tenantID && a.StudentID == studentID {
			cp := *a
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memAttemptRepo) ListStale(_ context.Context, threshold time.Duration, limit int) ([]*attempt.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	var out []*attempt.Attempt
	for _, a := range r.attempts {
		if a.IsStale(threshold, now) {
			cp := *a
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memAttemptRepo) CountCompletedInWindow(_ context.Context, tenantID shared.TenantID, studentID shared.StudentID, from, to time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.attempts {
		if a.TenantID == tenantID && a.StudentID == studentID &&
			a.Status == attempt.StatusCompleted && a.FinishedAt != nil &&
			!a.FinishedAt.Before(from) && a.FinishedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

// ─── autosave store ──────────────────────────────────────────────────────────

type memAutosaveStore struct {
	mu      sync.Mutex
	entries map[attempt.AttemptID]*attempt.ProgressState

	// unavailable simulates a Redis outage.
	unavailable bool
}

func newMemAutosaveStore() *memAutosaveStore {
	return &memAutosaveStore{entries: make(map[attempt.AttemptID]*attempt.ProgressState)}
}

func (s *memAutosaveStore) AppendProgress(_ context.Context, _ shared.TenantID, id attempt.AttemptID, answers []attempt.Answer, events []attempt.TelemetryEvent, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return errors.New("autosave store unavailable")
	}
	state, ok := s.entries[id]
	if !ok {
		fresh := attempt.NewProgressState()
		state = &fresh
		s.entries[id] = state
	}
	state.Merge(answers, events, time.Now().UTC())
	return nil
}

func (s *memAutosaveStore) LoadProgress(_ context.Context, _ shared.TenantID, id attempt.AttemptID) (*attempt.ProgressState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return nil, errors.New("autosave store unavailable")
	}
	state, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	cp := *state
	return &cp, nil
}

func (s *memAutosaveStore) Discard(_ context.Context, _ shared.TenantID, id attempt.AttemptID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// ─── skill repository ────────────────────────────────────────────────────────

type skillKey struct {
	student  shared.StudentID
	category shared.SkillCategory
}

type memSkillRepo struct {
	mu     sync.Mutex
	scores map[skillKey]*skill.SkillScore
}

func newMemSkillRepo() *memSkillRepo {
	return &memSkillRepo{scores: make(map[skillKey]*skill.SkillScore)}
}

func (r *memSkillRepo) Save(_ context.Context, s *skill.SkillScore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.scores[skillKey{s.StudentID, s.Category}] = &cp
	return nil
}

func (r *memSkillRepo) SaveAll(ctx context.Context, scores []*skill.SkillScore) error {
	for _, s := range scores {
		if err := r.Save(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *memSkillRepo) Get(_ context.Context, _ shared.TenantID, studentID shared.StudentID, category shared.SkillCategory) (*skill.SkillScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scores[skillKey{studentID, category}]
	if !ok {
		return nil, shared.ErrSkillScoreNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSkillRepo) GetAll(_ context.Context, _ shared.TenantID, studentID shared.StudentID) ([]*skill.SkillScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*skill.SkillScore
	for _, cat := range shared.AllSkillCategories() {
		if s, ok := r.scores[skillKey{studentID, cat}]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ─── career repository ───────────────────────────────────────────────────────

type careerKey struct {
	student shared.StudentID
	career  career.CareerID
}

type memCareerRepo struct {
	mu        sync.Mutex
	unlocks   map[careerKey]*career.Unlock
	evaluated map[shared.StudentID]int
}

func newMemCareerRepo() *memCareerRepo {
	return &memCareerRepo{
		unlocks:   make(map[careerKey]*career.Unlock),
		evaluated: make(map[shared.StudentID]int),
	}
}

func (r *memCareerRepo) SaveUnlock(_ context.Context, u *career.Unlock) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := careerKey{u.StudentID, u.CareerID}
	if _, exists := r.unlocks[key]; exists {
		return false, nil
	}
	cp := *u
	r.unlocks[key] = &cp
	return true, nil
}

func (r *memCareerRepo) ListUnlocks(_ context.Context, _ shared.TenantID, studentID shared.StudentID) ([]*career.Unlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*career.Unlock
	for key, u := range r.unlocks {
		if key.student == studentID {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memCareerRepo) UnlockedSet(_ context.Context, _ shared.TenantID, studentID shared.StudentID) (map[career.CareerID]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := make(map[career.CareerID]bool)
	for key := range r.unlocks {
		if key.student == studentID {
			set[key.career] = true
		}
	}
	return set, nil
}

func (r *memCareerRepo) ListStudentsBelowCatalogVersion(_ context.Context, version int, limit int) ([]career.StudentCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []career.StudentCursor
	for student, v := range r.evaluated {
		if v < version {
			out = append(out, career.StudentCursor{StudentID: student})
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memCareerRepo) MarkEvaluated(_ context.Context, _ shared.TenantID, studentID shared.StudentID, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluated[studentID] = version
	return nil
}

// ─── journey repository ──────────────────────────────────────────────────────

type memJourneyRepo struct {
	mu       sync.Mutex
	journeys map[journey.JourneyID]*journey.GradeJourney
	badges   map[string]*journey.MasteryBadge // key: student|grade
}

func newMemJourneyRepo() *memJourneyRepo {
	return &memJourneyRepo{
		journeys: make(map[journey.JourneyID]*journey.GradeJourney),
		badges:   make(map[string]*journey.MasteryBadge),
	}
}

func (r *memJourneyRepo) Save(_ context.Context, j *journey.GradeJourney) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *j
	r.journeys[j.ID] = &cp
	return nil
}

func (r *memJourneyRepo) GetByID(_ context.Context, tenantID shared.TenantID, id journey.JourneyID) (*journey.GradeJourney, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.journeys[id]
	if !ok || j.TenantID != tenantID {
		return nil, shared.ErrJourneyNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memJourneyRepo) GetOpenJourney(_ context.Context, tenantID shared.TenantID, studentID shared.StudentID) (*journey.GradeJourney, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.journeys {
		if j.TenantID == tenantID && j.StudentID == studentID && j.Status == journey.StatusInProgress {
			cp := *j
			return &cp, nil
		}
	}
	return nil, shared.ErrNoOpenJourney
}

func (r *memJourneyRepo) GetPendingJourney(_ context.Context, tenantID shared.TenantID, studentID shared.StudentID) (*journey.GradeJourney, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.journeys {
		if j.TenantID == tenantID && j.StudentID == studentID && j.Status == journey.StatusPending {
			cp := *j
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memJourneyRepo) ListByStudent(_ context.Context, tenantID shared.TenantID, studentID shared.StudentID) ([]*journey.GradeJourney, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*journey.GradeJourney
	for _, j := range r.journeys {
		if j.TenantID == tenantID && j.StudentID == studentID {
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

func (r *memJourneyRepo) SaveBadge(_ context.Context, b *journey.MasteryBadge) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := b.StudentID.String() + "|" + b.Grade.String()
	if _, exists := r.badges[key]; exists {
		return false, nil
	}
	cp := *b
	r.badges[key] = &cp
	return true, nil
}

func (r *memJourneyRepo) ListBadges(_ context.Context, _ shared.TenantID, studentID shared.StudentID) ([]*journey.MasteryBadge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*journey.MasteryBadge
	for _, b := range r.badges {
		if b.StudentID == studentID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ─── transaction manager and event publisher ─────────────────────────────────

type noopTxManager struct{}

func (noopTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
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

func (p *capturingPublisher) ofType(eventType shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// ─── test fixture ────────────────────────────────────────────────────────────

const (
	testTenantID  = shared.TenantID("a81bc81b-dead-4e5d-abff-90865d1e13b1")
	testStudentID = shared.StudentID("c56a4180-65aa-42ec-a945-5fd21dec0538")
)

func studentIdentity() shared.Identity {
	return shared.Identity{TenantID: testTenantID, StudentID: testStudentID, Role: shared.RoleStudent}
}

// ─── content provider ────────────────────────────────────────────────────────

type stubContentProvider struct {
	itemSet attempt.ItemSet
	err     error

	mu        sync.Mutex
	lastGrade shared.Grade
}

func (s *stubContentProvider) FetchItemSet(_ context.Context, _ shared.TenantID, _ shared.SubjectID, _ shared.SubjectKind, grade shared.Grade) (attempt.ItemSet, error) {
	s.mu.Lock()
	s.lastGrade = grade
	s.mu.Unlock()
	if s.err != nil {
		return attempt.ItemSet{}, s.err
	}
	return s.itemSet, nil
}
