// Package eventhandler содержит обработчики доменных событий.
// Обработчики выполняют fire-and-forget эффекты после фиксации фактов:
// сброс кешей, триггеры уведомлений, запрос регенерации нарратива.
// Ошибки здесь логируются и не откатывают исходную операцию.
package eventhandler

import (
	"context"
	"log/slog"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ATTEMPT COMPLETED HANDLER
// Обрабатывает завершение попытки:
// 1. Сбрасывает кеш дерева навыков - клиент увидит свежие счета
// 2. Запрашивает регенерацию AI-нарратива со свежими доказательствами
// ═══════════════════════════════════════════════════════════════════════════

// SkillTreeInvalidator сбрасывает кешированные проекции дерева навыков.
type SkillTreeInvalidator interface {
	Invalidate(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) error
}

// NarrativeService запрашивает регенерацию нарратива у внешнего
// AI-генератора. Движок передаёт структурированные доказательства и
// никогда не сочиняет текст сам.
type NarrativeService interface {
	RequestRegeneration(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, evidence map[string]interface{}) error
}

// OnAttemptCompletedHandler обрабатывает событие завершения попытки.
type OnAttemptCompletedHandler struct {
	invalidator SkillTreeInvalidator
	narrative   NarrativeService
	logger      *slog.Logger
}

// NewOnAttemptCompletedHandler создаёт новый обработчик.
func NewOnAttemptCompletedHandler(
	invalidator SkillTreeInvalidator,
	narrative NarrativeService,
	logger *slog.Logger,
) *OnAttemptCompletedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnAttemptCompletedHandler{
		invalidator: invalidator,
		narrative:   narrative,
		logger:      logger.With("handler", "on_attempt_completed"),
	}
}

// Handle обрабатывает событие. Реализует интерфейс shared.EventHandler.
func (h *OnAttemptCompletedHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	completed, ok := event.(shared.AttemptCompletedEvent)
	if !ok {
		h.logger.Warn("received non-AttemptCompletedEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	h.logger.Info("processing attempt completed event",
		"student_id", completed.StudentID,
		"subject_id", completed.SubjectID,
		"accuracy", completed.Accuracy,
		"xp_gained", completed.XPGained,
	)

	tenantID := shared.TenantID(completed.TenantId)
	studentID := shared.StudentID(completed.StudentID)

	if h.invalidator != nil {
		if err := h.invalidator.Invalidate(ctx, tenantID, studentID); err != nil {
			h.logger.Error("failed to invalidate skill tree cache",
				"student_id", completed.StudentID,
				"error", err,
			)
		}
	}

	if h.narrative != nil {
		evidence := map[string]interface{}{
			"subject_id":        completed.SubjectID,
			"subject_kind":      string(completed.SubjectKind),
			"accuracy":          completed.Accuracy,
			"normalized_scores": completed.NormalizedScores,
		}
		if err := h.narrative.RequestRegeneration(ctx, tenantID, studentID, evidence); err != nil {
			h.logger.Error("failed to request narrative regeneration",
				"student_id", completed.StudentID,
				"error", err,
			)
		}
	}

	return nil
}
