package query

import (
	"context"
	"fmt"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/career"
	"github.com/edugami/edugami-engine/internal/domain/journey"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/skill"
	"github.com/edugami/edugami-engine/internal/infrastructure/persistence/projections"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT SUMMARY QUERY
// Сводка прогресса для родителя или учителя: класс, навыки, карьеры,
// значки, последние попытки. Студенту сводка недоступна - у него есть
// дерево навыков. Полоса зрелости попадает только в проекцию учителя.
// ══════════════════════════════════════════════════════════════════════════════

const recentAttemptsLimit = 10

// GetStudentSummaryQuery contains the query parameters.
type GetStudentSummaryQuery struct {
	Identity shared.Identity

	// Now overrides the evaluation time (defaults to time.Now).
	Now time.Time
}

// Validate validates the query.
func (q GetStudentSummaryQuery) Validate() error {
	if err := q.Identity.Validate(); err != nil {
		return err
	}
	if q.Identity.Role == shared.RoleStudent {
		return shared.ErrRoleNotPermitted
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentSummaryHandler handles the GetStudentSummaryQuery.
type GetStudentSummaryHandler struct {
	journeyRepo journey.Repository
	skillRepo   skill.Repository
	careerRepo  career.Repository
	attemptRepo attempt.Repository
	builder     *projections.StudentSummaryBuilder
}

// NewGetStudentSummaryHandler creates a new GetStudentSummaryHandler.
func NewGetStudentSummaryHandler(
	journeyRepo journey.Repository,
	skillRepo skill.Repository,
	careerRepo career.Repository,
	attemptRepo attempt.Repository,
	builder *projections.StudentSummaryBuilder,
) *GetStudentSummaryHandler {
	return &GetStudentSummaryHandler{
		journeyRepo: journeyRepo,
		skillRepo:   skillRepo,
		careerRepo:  careerRepo,
		attemptRepo: attemptRepo,
		builder:     builder,
	}
}

// Handle executes the get student summary query.
func (h *GetStudentSummaryHandler) Handle(ctx context.Context, q GetStudentSummaryQuery) (*projections.StudentSummaryView, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_student_summary: validation failed: %w", err)
	}

	now := q.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tenantID := q.Identity.TenantID
	studentID := q.Identity.StudentID

	j, err := h.journeyRepo.GetOpenJourney(ctx, tenantID, studentID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, fmt.Errorf("get_student_summary: %w", err)
	}

	skills, err := h.skillRepo.GetAll(ctx, tenantID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get_student_summary: failed to load skills: %w", err)
	}

	unlocks, err := h.careerRepo.ListUnlocks(ctx, tenantID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get_student_summary: failed to load careers: %w", err)
	}

	badges, err := h.journeyRepo.ListBadges(ctx, tenantID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get_student_summary: failed to load badges: %w", err)
	}

	recent, err := h.attemptRepo.ListByStudent(ctx, tenantID, studentID, recentAttemptsLimit)
	if err != nil {
		return nil, fmt.Errorf("get_student_summary: failed to load attempts: %w", err)
	}

	return h.builder.Build(studentID, j, skills, unlocks, badges, recent, q.Identity.Role, now), nil
}
