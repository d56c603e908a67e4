package command

import (
	"context"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD PROGRESS COMMAND
// Best-effort автосохранение прогресса открытой попытки. Тики летят часто,
// поэтому команда никогда не роняет вызывающую сторону из-за хранилища:
// потерянный тик теряет только неотправленный прогресс. Ошибки валидации
// (чужая попытка, битый вход) всё же возвращаются.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressAnswer - один ответ в тике прогресса.
type ProgressAnswer struct {
	ItemID     string
	Type       string
	Choice     int
	Selections []int
	Text       string
	Numeric    float64
}

// ProgressTick - одно событие телеметрии в тике.
type ProgressTick struct {
	ItemID      string
	TimeSpentMs int
	HintsUsed   int
}

// RecordProgressCommand contains a progress tick for an open attempt.
type RecordProgressCommand struct {
	Identity  shared.Identity
	AttemptID string
	Answers   []ProgressAnswer
	Ticks     []ProgressTick
	Timestamp time.Time
}

// Validate validates the command.
func (c RecordProgressCommand) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if c.AttemptID == "" {
		return shared.ErrAttemptNotFound
	}
	for _, a := range c.Answers {
		if a.ItemID == "" || !attempt.ItemType(a.Type).IsValid() {
			return shared.ErrAnswerType
		}
	}
	return nil
}

// RecordProgressResult reports whether the tick was persisted.
// Persisted=false with a nil error means the write was dropped best-effort.
type RecordProgressResult struct {
	Persisted bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordProgressHandler handles the RecordProgressCommand.
type RecordProgressHandler struct {
	autosave attempt.AutosaveStore

	// autosaveTTL bounds how long unsubmitted progress survives.
	autosaveTTL time.Duration
}

// RecordProgressHandlerConfig contains configuration for the handler.
type RecordProgressHandlerConfig struct {
	AutosaveTTL time.Duration
}

// DefaultRecordProgressHandlerConfig returns default configuration.
func DefaultRecordProgressHandlerConfig() RecordProgressHandlerConfig {
	return RecordProgressHandlerConfig{AutosaveTTL: 48 * time.Hour}
}

// NewRecordProgressHandler creates a new RecordProgressHandler.
func NewRecordProgressHandler(autosave attempt.AutosaveStore, config RecordProgressHandlerConfig) *RecordProgressHandler {
	if config.AutosaveTTL == 0 {
		config = DefaultRecordProgressHandlerConfig()
	}
	return &RecordProgressHandler{
		autosave:    autosave,
		autosaveTTL: config.AutosaveTTL,
	}
}

// Handle executes the record progress command.
func (h *RecordProgressHandler) Handle(ctx context.Context, cmd RecordProgressCommand) (*RecordProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := cmd.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	answers := make([]attempt.Answer, 0, len(cmd.Answers))
	for _, a := range cmd.Answers {
		answers = append(answers, attempt.Answer{
			ItemID:     a.ItemID,
			Type:       attempt.ItemType(a.Type),
			Choice:     a.Choice,
			Selections: a.Selections,
			Text:       a.Text,
			Numeric:    a.Numeric,
		})
	}
	events := make([]attempt.TelemetryEvent, 0, len(cmd.Ticks))
	for _, t := range cmd.Ticks {
		events = append(events, attempt.TelemetryEvent{
			ItemID:      t.ItemID,
			TimeSpentMs: t.TimeSpentMs,
			HintsUsed:   t.HintsUsed,
			RecordedAt:  now,
		})
	}

	err := h.autosave.AppendProgress(ctx, cmd.Identity.TenantID, attempt.AttemptID(cmd.AttemptID), answers, events, h.autosaveTTL)
	if err != nil {
		// Хранилище недоступно - тик пропадает, вызов успешен.
		return &RecordProgressResult{Persisted: false}, nil
	}
	return &RecordProgressResult{Persisted: true}, nil
}
