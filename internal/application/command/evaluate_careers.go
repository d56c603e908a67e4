package command

import (
	"context"
	"fmt"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/career"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/skill"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE CAREERS COMMAND
// Сопоставляет текущие навыки студента с каталогом карьер и фиксирует новые
// разблокировки. Идемпотентна: уже разблокированные карьеры пропускаются,
// повторный запуск с теми же навыками ничего не меняет. Вызывается из
// submit-конвейера и из фоновой задачи при смене версии каталога.
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateCareersCommand contains the target student.
type EvaluateCareersCommand struct {
	TenantID  shared.TenantID
	StudentID shared.StudentID

	// Timestamp is the evaluation time (defaults to now if zero).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c EvaluateCareersCommand) Validate() error {
	if !c.TenantID.IsValid() {
		return shared.ErrInvalidTenantID
	}
	if !c.StudentID.IsValid() {
		return shared.ErrInvalidStudentID
	}
	return nil
}

// UnlockedCareer describes one freshly unlocked career.
type UnlockedCareer struct {
	CareerID     string
	Title        string
	LinkedSkills []string
}

// EvaluateCareersResult contains the evaluation outcome.
type EvaluateCareersResult struct {
	NewUnlocks     []UnlockedCareer
	TotalUnlocked  int
	CatalogVersion int
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateCareersHandler handles the EvaluateCareersCommand.
type EvaluateCareersHandler struct {
	skillRepo      skill.Repository
	careerRepo     career.Repository
	evaluator      *career.Evaluator
	catalog        career.Catalog
	eventPublisher shared.EventPublisher
}

// NewEvaluateCareersHandler creates a new EvaluateCareersHandler.
func NewEvaluateCareersHandler(
	skillRepo skill.Repository,
	careerRepo career.Repository,
	evaluator *career.Evaluator,
	catalog career.Catalog,
	eventPublisher shared.EventPublisher,
) *EvaluateCareersHandler {
	return &EvaluateCareersHandler{
		skillRepo:      skillRepo,
		careerRepo:     careerRepo,
		evaluator:      evaluator,
		catalog:        catalog,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the evaluate careers command.
func (h *EvaluateCareersHandler) Handle(ctx context.Context, cmd EvaluateCareersCommand) (*EvaluateCareersResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("evaluate_careers: validation failed: %w", err)
	}

	now := cmd.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	scores, err := h.currentScores(ctx, cmd.TenantID, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("evaluate_careers: failed to load skills: %w", err)
	}

	unlocked, err := h.careerRepo.UnlockedSet(ctx, cmd.TenantID, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("evaluate_careers: failed to load unlocks: %w", err)
	}

	newUnlocks := h.evaluator.Evaluate(cmd.TenantID, cmd.StudentID, scores, unlocked, now)

	result := &EvaluateCareersResult{
		CatalogVersion: h.evaluator.CatalogVersion(),
		TotalUnlocked:  len(unlocked),
	}

	for _, u := range newUnlocks {
		created, err := h.careerRepo.SaveUnlock(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("evaluate_careers: failed to save unlock: %w", err)
		}
		if !created {
			// Параллельная оценка успела первой - не дублируем событие.
			continue
		}

		def, _ := h.catalog.Find(u.CareerID)
		linked := make([]string, 0, len(def.LinkedSkills))
		for _, c := range def.LinkedSkills {
			linked = append(linked, c.String())
		}

		result.NewUnlocks = append(result.NewUnlocks, UnlockedCareer{
			CareerID:     u.CareerID.String(),
			Title:        def.Title,
			LinkedSkills: linked,
		})
		result.TotalUnlocked++

		event := shared.NewCareerUnlockedEvent(cmd.TenantID, cmd.StudentID.String(), u.CareerID.String(), def.Title, linked)
		if cmd.CorrelationID != "" {
			event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		}
		_ = h.eventPublisher.Publish(event)
	}

	if err := h.careerRepo.MarkEvaluated(ctx, cmd.TenantID, cmd.StudentID, h.evaluator.CatalogVersion()); err != nil {
		return nil, fmt.Errorf("evaluate_careers: failed to mark evaluated: %w", err)
	}

	return result, nil
}

// currentScores собирает сглаженные счета навыков по всем категориям.
func (h *EvaluateCareersHandler) currentScores(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) (map[shared.SkillCategory]float64, error) {
	all, err := h.skillRepo.GetAll(ctx, tenantID, studentID)
	if err != nil {
		return nil, err
	}
	scores := make(map[shared.SkillCategory]float64, len(all))
	for _, s := range all {
		scores[s.Category] = s.Score
	}
	return scores, nil
}
