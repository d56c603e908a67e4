package query

import (
	"context"
	"fmt"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/journey"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/skill"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET GRADE STATUS QUERY
// Состояние учебного пути: текущий класс, окно академического года,
// прогресс по требованиям мастерства и готовность к переводу.
// ══════════════════════════════════════════════════════════════════════════════

// GetGradeStatusQuery contains the query parameters.
type GetGradeStatusQuery struct {
	Identity shared.Identity

	// Now overrides the evaluation time (defaults to time.Now).
	Now time.Time
}

// Validate validates the query.
func (q GetGradeStatusQuery) Validate() error {
	return q.Identity.Validate()
}

// RequirementLine - прогресс по одному требованию мастерства.
type RequirementLine struct {
	Category string  `json:"category"`
	Current  float64 `json:"current"`
	Required float64 `json:"required"`
	Met      bool    `json:"met"`
}

// GradeStatusResult contains the grade status.
type GradeStatusResult struct {
	JourneyID         string            `json:"journey_id"`
	Grade             int               `json:"grade"`
	Status            string            `json:"status"`
	WindowStart       time.Time         `json:"window_start"`
	WindowEnd         time.Time         `json:"window_end"`
	SoftEligible      bool              `json:"soft_eligible"`
	HardComplete      bool              `json:"hard_complete"`
	Requirements      []RequirementLine `json:"requirements"`
	AttemptsCompleted int               `json:"attempts_completed"`
	AttemptsRequired  int               `json:"attempts_required"`
	MasteryBadges     []int             `json:"mastery_badges"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetGradeStatusHandler handles the GetGradeStatusQuery.
type GetGradeStatusHandler struct {
	journeyRepo journey.Repository
	skillRepo   skill.Repository
	attemptRepo attempt.Repository
}

// NewGetGradeStatusHandler creates a new GetGradeStatusHandler.
func NewGetGradeStatusHandler(
	journeyRepo journey.Repository,
	skillRepo skill.Repository,
	attemptRepo attempt.Repository,
) *GetGradeStatusHandler {
	return &GetGradeStatusHandler{
		journeyRepo: journeyRepo,
		skillRepo:   skillRepo,
		attemptRepo: attemptRepo,
	}
}

// Handle executes the get grade status query.
func (h *GetGradeStatusHandler) Handle(ctx context.Context, q GetGradeStatusQuery) (*GradeStatusResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_grade_status: validation failed: %w", err)
	}

	now := q.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tenantID := q.Identity.TenantID
	studentID := q.Identity.StudentID

	j, err := h.journeyRepo.GetOpenJourney(ctx, tenantID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get_grade_status: %w", err)
	}

	skills, err := h.skillRepo.GetAll(ctx, tenantID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get_grade_status: failed to load skills: %w", err)
	}
	scores := make(map[shared.SkillCategory]float64, len(skills))
	for _, s := range skills {
		scores[s.Category] = s.Score
	}

	attempts, err := h.attemptRepo.CountCompletedInWindow(ctx, tenantID, studentID, j.Window.Start, j.Window.End)
	if err != nil {
		return nil, fmt.Errorf("get_grade_status: failed to count attempts: %w", err)
	}

	reqSet := journey.RequirementsFor(j.Grade)
	progress, hardComplete := reqSet.Evaluate(scores, attempts)

	lines := make([]RequirementLine, 0, len(progress))
	for _, p := range progress {
		lines = append(lines, RequirementLine{
			Category: p.Category.String(),
			Current:  p.Current,
			Required: p.Required,
			Met:      p.Met,
		})
	}

	badges, err := h.journeyRepo.ListBadges(ctx, tenantID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get_grade_status: failed to load badges: %w", err)
	}
	badgeGrades := make([]int, 0, len(badges))
	for _, b := range badges {
		badgeGrades = append(badgeGrades, int(b.Grade))
	}

	return &GradeStatusResult{
		JourneyID:         j.ID.String(),
		Grade:             int(j.Grade),
		Status:            string(j.Status),
		WindowStart:       j.Window.Start,
		WindowEnd:         j.Window.End,
		SoftEligible:      j.SoftEligible(now),
		HardComplete:      hardComplete,
		Requirements:      lines,
		AttemptsCompleted: attempts,
		AttemptsRequired:  reqSet.MinAttempts,
		MasteryBadges:     badgeGrades,
	}, nil
}
