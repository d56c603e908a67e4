// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/journey"
	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// START ATTEMPT COMMAND
// Открывает новую попытку по предмету. Набор вопросов запрашивается у
// контент-провайдера и замораживается на попытке. Инвариант: не более
// одной открытой попытки на пару (студент, предмет).
// ══════════════════════════════════════════════════════════════════════════════

// ContentProvider выдаёт набор вопросов для предмета с учётом класса студента.
// Реализуется адаптером внешнего контент-сервиса.
type ContentProvider interface {
	FetchItemSet(ctx context.Context, tenantID shared.TenantID, subjectID shared.SubjectID, kind shared.SubjectKind, grade shared.Grade) (attempt.ItemSet, error)
}

// StartAttemptCommand contains the data to open a new attempt.
type StartAttemptCommand struct {
	Identity  shared.Identity
	SubjectID string
	Kind      string

	// Timestamp is when the attempt starts (defaults to now if zero).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c StartAttemptCommand) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if c.Identity.Role != shared.RoleStudent {
		return shared.ErrRoleNotPermitted
	}
	if _, err := shared.NewSubjectID(c.SubjectID); err != nil {
		return err
	}
	if !shared.SubjectKind(c.Kind).IsValid() {
		return fmt.Errorf("%w: unknown subject kind %q", shared.ErrInvalidInput, c.Kind)
	}
	return nil
}

// StartAttemptResult contains the result of opening an attempt.
type StartAttemptResult struct {
	AttemptID     string
	AttemptNumber int
	SubjectID     string
	ItemCount     int
	StartedAt     time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// StartAttemptHandler handles the StartAttemptCommand.
type StartAttemptHandler struct {
	attemptRepo    attempt.Repository
	journeyRepo    journey.Repository
	content        ContentProvider
	eventPublisher shared.EventPublisher
}

// NewStartAttemptHandler creates a new StartAttemptHandler.
func NewStartAttemptHandler(
	attemptRepo attempt.Repository,
	journeyRepo journey.Repository,
	content ContentProvider,
	eventPublisher shared.EventPublisher,
) *StartAttemptHandler {
	return &StartAttemptHandler{
		attemptRepo:    attemptRepo,
		journeyRepo:    journeyRepo,
		content:        content,
		eventPublisher: eventPublisher,
	}
}

// Handle executes the start attempt command.
func (h *StartAttemptHandler) Handle(ctx context.Context, cmd StartAttemptCommand) (*StartAttemptResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("start_attempt: validation failed: %w", err)
	}

	now := cmd.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tenantID := cmd.Identity.TenantID
	studentID := cmd.Identity.StudentID
	subjectID := shared.SubjectID(cmd.SubjectID)
	kind := shared.SubjectKind(cmd.Kind)

	// Быстрая проверка инварианта до похода за контентом. Гонка двух
	// параллельных стартов добивается частичным уникальным индексом в
	// репозитории - Save вернёт тот же ErrAttemptAlreadyOpen.
	if _, err := h.attemptRepo.GetOpenAttempt(ctx, tenantID, studentID, subjectID); err == nil {
		return nil, shared.ErrAttemptAlreadyOpen
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("start_attempt: failed to check open attempt: %w", err)
	}

	// Класс студента нужен контент-провайдеру для подбора сложности.
	j, err := h.journeyRepo.GetOpenJourney(ctx, tenantID, studentID)
	if err != nil {
		return nil, fmt.Errorf("start_attempt: failed to get grade journey: %w", err)
	}

	itemSet, err := h.content.FetchItemSet(ctx, tenantID, subjectID, kind, j.Grade)
	if err != nil {
		return nil, fmt.Errorf("start_attempt: failed to fetch item set: %w", err)
	}
	if kind == shared.SubjectKindAssessment && len(itemSet.Items) == 0 {
		return nil, fmt.Errorf("%w: assessment %q has no items", shared.ErrContentInvalidResponse, subjectID)
	}

	number, err := h.attemptRepo.NextAttemptNumber(ctx, tenantID, studentID, subjectID)
	if err != nil {
		return nil, fmt.Errorf("start_attempt: failed to allocate attempt number: %w", err)
	}

	att, err := attempt.NewAttempt(
		attempt.AttemptID(uuid.NewString()),
		tenantID, studentID, subjectID, kind, number, itemSet, now,
	)
	if err != nil {
		return nil, fmt.Errorf("start_attempt: %w", err)
	}

	if err := h.attemptRepo.Save(ctx, att); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) || errors.Is(err, shared.ErrConflict) {
			return nil, shared.ErrAttemptAlreadyOpen
		}
		return nil, fmt.Errorf("start_attempt: failed to save attempt: %w", err)
	}

	event := shared.NewAttemptStartedEvent(tenantID, att.ID.String(), studentID.String(), subjectID.String(), kind, int(number))
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(event)

	return &StartAttemptResult{
		AttemptID:     att.ID.String(),
		AttemptNumber: int(number),
		SubjectID:     subjectID.String(),
		ItemCount:     len(itemSet.Items),
		StartedAt:     now,
	}, nil
}
