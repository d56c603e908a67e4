package eventhandler

import (
	"context"
	"log/slog"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON LEVEL UP HANDLER
// Пересечение границы игрового уровня - повод для празднующего
// уведомления. Доставкой занимается внешний сервис; движок лишь
// отправляет триггер с данными для шаблона.
// ═══════════════════════════════════════════════════════════════════════════

// NotificationTrigger отправляет триггер уведомления внешнему сервису
// доставки. Само уведомление (push, email, чат) собирается снаружи.
type NotificationTrigger interface {
	Trigger(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, kind string, payload map[string]interface{}) error
}

// OnLevelUpHandler обрабатывает событие повышения уровня.
type OnLevelUpHandler struct {
	notifications NotificationTrigger
	logger        *slog.Logger
}

// NewOnLevelUpHandler создаёт новый обработчик.
func NewOnLevelUpHandler(notifications NotificationTrigger, logger *slog.Logger) *OnLevelUpHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnLevelUpHandler{
		notifications: notifications,
		logger:        logger.With("handler", "on_level_up"),
	}
}

// Handle обрабатывает событие. Реализует интерфейс shared.EventHandler.
func (h *OnLevelUpHandler) Handle(event shared.Event) error {
	ctx := context.Background()

	levelUp, ok := event.(shared.LevelUpEvent)
	if !ok {
		h.logger.Warn("received non-LevelUpEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	h.logger.Info("processing level up event",
		"student_id", levelUp.StudentID,
		"category", levelUp.Category,
		"new_level", levelUp.NewLevel,
	)

	if h.notifications == nil {
		return nil
	}

	err := h.notifications.Trigger(ctx,
		shared.TenantID(levelUp.TenantId),
		shared.StudentID(levelUp.StudentID),
		"level_up",
		map[string]interface{}{
			"category":    levelUp.Category,
			"old_level":   levelUp.OldLevel,
			"new_level":   levelUp.NewLevel,
			"level_title": levelUp.LevelTitle,
		},
	)
	if err != nil {
		h.logger.Error("failed to trigger level up notification",
			"student_id", levelUp.StudentID,
			"error", err,
		)
	}
	return nil
}
