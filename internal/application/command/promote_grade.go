package command

import (
	"context"
	"fmt"
	"time"

	"github.com/edugami/edugami-engine/internal/application/saga"
	"github.com/edugami/edugami-engine/internal/domain/journey"
	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROMOTE GRADE COMMAND
// Явный запрос на перевод студента в следующий класс. Автоматических
// переводов нет: фоновая задача лишь помечает кандидатов, а сам перевод
// запускается учителем или администратором этой командой. Оркестрацию
// выполняет сага перевода.
// ══════════════════════════════════════════════════════════════════════════════

// PromoteGradeCommand contains the promotion request.
type PromoteGradeCommand struct {
	Identity shared.Identity

	// YearConfig - границы академического года тенанта.
	YearConfig journey.AcademicYearConfig

	// Timestamp is the promotion time (defaults to now if zero).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c PromoteGradeCommand) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if c.Identity.Role != shared.RoleTeacher && c.Identity.Role != shared.RoleAdmin {
		return shared.ErrRoleNotPermitted
	}
	return nil
}

// PromoteGradeResult contains the promotion outcome.
type PromoteGradeResult struct {
	ClosedJourneyID string
	NewJourneyID    string
	FromGrade       int
	ToGrade         int
	CompletionType  string
	BadgeAwarded    bool
	PromotedAt      time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// PromoteGradeHandler handles the PromoteGradeCommand.
type PromoteGradeHandler struct {
	flow *saga.PromotionFlow
}

// NewPromoteGradeHandler creates a new PromoteGradeHandler.
func NewPromoteGradeHandler(flow *saga.PromotionFlow) *PromoteGradeHandler {
	return &PromoteGradeHandler{flow: flow}
}

// Handle executes the promote grade command.
func (h *PromoteGradeHandler) Handle(ctx context.Context, cmd PromoteGradeCommand) (*PromoteGradeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("promote_grade: validation failed: %w", err)
	}

	yearConfig := cmd.YearConfig
	if !yearConfig.IsValid() {
		yearConfig = journey.DefaultAcademicYear()
	}

	res, err := h.flow.Execute(ctx, saga.PromotionInput{
		TenantID:      cmd.Identity.TenantID,
		StudentID:     cmd.Identity.StudentID,
		YearConfig:    yearConfig,
		Timestamp:     cmd.Timestamp,
		CorrelationID: cmd.CorrelationID,
	})
	if err != nil {
		return nil, err
	}

	return &PromoteGradeResult{
		ClosedJourneyID: res.ClosedJourneyID,
		NewJourneyID:    res.NewJourneyID,
		FromGrade:       res.FromGrade,
		ToGrade:         res.ToGrade,
		CompletionType:  res.CompletionType,
		BadgeAwarded:    res.BadgeAwarded,
		PromotedAt:      res.PromotedAt,
	}, nil
}
