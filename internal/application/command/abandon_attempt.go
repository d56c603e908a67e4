package command

import (
	"context"
	"fmt"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ABANDON ATTEMPT COMMAND
// Явное закрытие попытки без оценивания. Частичная телеметрия остаётся в
// записи, но на навыки и XP не влияет. Закрыть уже закрытую попытку нельзя.
// ══════════════════════════════════════════════════════════════════════════════

// AbandonAttemptCommand contains the attempt to abandon.
type AbandonAttemptCommand struct {
	Identity  shared.Identity
	AttemptID string

	// Timestamp is the abandon time (defaults to now if zero).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c AbandonAttemptCommand) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if c.Identity.Role != shared.RoleStudent {
		return shared.ErrRoleNotPermitted
	}
	if c.AttemptID == "" {
		return shared.ErrAttemptNotFound
	}
	return nil
}

// AbandonAttemptResult contains the result.
type AbandonAttemptResult struct {
	AttemptID   string
	AbandonedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AbandonAttemptHandler handles the AbandonAttemptCommand.
type AbandonAttemptHandler struct {
	attemptRepo    attempt.Repository
	autosave       attempt.AutosaveStore
	eventPublisher shared.EventPublisher
}

// NewAbandonAttemptHandler creates a new AbandonAttemptHandler.
func NewAbandonAttemptHandler(
	attemptRepo attempt.Repository,
	autosave attempt.AutosaveStore,
	eventPublisher shared.EventPublisher,
) *AbandonAttemptHandler {
	return &AbandonAttemptHandler{
		attemptRepo:    attemptRepo,
		autosave:       autosave,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the abandon attempt command.
func (h *AbandonAttemptHandler) Handle(ctx context.Context, cmd AbandonAttemptCommand) (*AbandonAttemptResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("abandon_attempt: validation failed: %w", err)
	}

	now := cmd.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tenantID := cmd.Identity.TenantID

	att, err := h.attemptRepo.GetByID(ctx, tenantID, attempt.AttemptID(cmd.AttemptID))
	if err != nil {
		return nil, fmt.Errorf("abandon_attempt: failed to load attempt: %w", err)
	}
	if att.StudentID != cmd.Identity.StudentID {
		return nil, shared.ErrWrongTenant
	}

	closed, err := h.attemptRepo.AbandonIfInProgress(ctx, tenantID, att.ID, attempt.AbandonExplicit, now)
	if err != nil {
		return nil, fmt.Errorf("abandon_attempt: failed to abandon: %w", err)
	}
	if !closed {
		return nil, shared.ErrAttemptAlreadyClosed
	}

	_ = h.autosave.Discard(ctx, tenantID, att.ID)

	event := shared.NewAttemptAbandonedEvent(
		tenantID, att.ID.String(), att.StudentID.String(), att.SubjectID.String(), string(attempt.AbandonExplicit),
	)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &AbandonAttemptResult{AttemptID: att.ID.String(), AbandonedAt: now}, nil
}
