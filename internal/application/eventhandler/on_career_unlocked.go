package eventhandler

import (
	"context"
	"log/slog"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON CAREER UNLOCKED HANDLER
// Новая карьера стала видимой - отправляем триггер уведомления и
// сбрасываем кеш, чтобы карта карьер обновилась сразу.
// ═══════════════════════════════════════════════════════════════════════════

// OnCareerUnlockedHandler обрабатывает событие разблокировки карьеры.
type OnCareerUnlockedHandler struct {
	notifications NotificationTrigger
	invalidator   SkillTreeInvalidator
	logger        *slog.Logger
}

// NewOnCareerUnlockedHandler создаёт новый обработчик.
func NewOnCareerUnlockedHandler(
	notifications NotificationTrigger,
	invalidator SkillTreeInvalidator,
	logger *slog.Logger,
) *OnCareerUnlockedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnCareerUnlockedHandler{
		notifications: notifications,
		invalidator:   invalidator,
		logger:        logger.With("handler", "on_career_unlocked"),
	}
}

// Handle обрабатывает событие. Реализует интерфейс shared.EventHandler.
func (h *OnCareerUnlockedHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	unlocked, ok := event.(shared.CareerUnlockedEvent)
	if !ok {
		h.logger.Warn("received non-CareerUnlockedEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	h.logger.Info("processing career unlocked event",
		"student_id", unlocked.StudentID,
		"career_id", unlocked.CareerID,
	)

	tenantID := shared.TenantID(unlocked.TenantId)
	studentID := shared.StudentID(unlocked.StudentID)

	if h.invalidator != nil {
		if err := h.invalidator.Invalidate(ctx, tenantID, studentID); err != nil {
			h.logger.Error("failed to invalidate cache after unlock",
				"student_id", unlocked.StudentID,
				"error", err,
			)
		}
	}

	if h.notifications != nil {
		err := h.notifications.Trigger(ctx, tenantID, studentID, "career_unlocked",
			map[string]interface{}{
				"career_id":     unlocked.CareerID,
				"career_title":  unlocked.CareerTitle,
				"linked_skills": unlocked.LinkedSkills,
			},
		)
		if err != nil {
			h.logger.Error("failed to trigger career unlock notification",
				"student_id", unlocked.StudentID,
				"error", err,
			)
		}
	}

	return nil
}
