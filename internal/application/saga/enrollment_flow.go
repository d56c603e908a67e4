// Package saga contains complex business processes that orchestrate
// multiple domain operations in a coordinated manner.
// Sagas ensure consistency across operations and handle compensation on failures.
package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edugami/edugami-engine/internal/domain/journey"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/skill"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT SAGA
// Зачисление студента: Validate → Seed Skills → Open Journey → Publish.
// Порядок шагов выбран так, что компенсации не нужны: посев строк навыков
// идемпотентен и безвреден сам по себе, а открытие пути охраняется
// уникальным индексом "один открытый путь на студента". Повтор упавшего
// зачисления безопасен с любого шага.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentStep represents a step in the enrollment process.
type EnrollmentStep string

const (
	StepValidateEnrollment EnrollmentStep = "validate"
	StepSeedSkills         EnrollmentStep = "seed_skills"
	StepOpenJourney        EnrollmentStep = "open_journey"
	StepPublishEnrollment  EnrollmentStep = "publish_event"
)

// EnrollmentInput contains all data required to enroll a student.
type EnrollmentInput struct {
	TenantID  shared.TenantID
	StudentID shared.StudentID
	Grade     shared.Grade

	// YearConfig определяет границы академического года тенанта.
	YearConfig journey.AcademicYearConfig

	// Timestamp is the enrollment time (defaults to now if zero).
	Timestamp time.Time
}

// Validate checks if the input is valid for enrollment.
func (i EnrollmentInput) Validate() error {
	if !i.TenantID.IsValid() {
		return shared.ErrInvalidTenantID
	}
	if !i.StudentID.IsValid() {
		return shared.ErrInvalidStudentID
	}
	if !i.Grade.IsValid() {
		return fmt.Errorf("%w: grade out of range", shared.ErrInvalidInput)
	}
	if !i.YearConfig.IsValid() {
		return shared.ErrInvalidYearConfig
	}
	return nil
}

// EnrollmentResult contains the result of a successful enrollment.
type EnrollmentResult struct {
	JourneyID    string
	Grade        int
	WindowStart  time.Time
	WindowEnd    time.Time
	SkillsSeeded int
	EnrolledAt   time.Time
}

// EnrollmentFlow orchestrates student enrollment.
type EnrollmentFlow struct {
	journeyRepo    journey.Repository
	skillRepo      skill.Repository
	eventPublisher shared.EventPublisher
}

// NewEnrollmentFlow creates a new EnrollmentFlow.
func NewEnrollmentFlow(
	journeyRepo journey.Repository,
	skillRepo skill.Repository,
	eventPublisher shared.EventPublisher,
) *EnrollmentFlow {
	return &EnrollmentFlow{
		journeyRepo:    journeyRepo,
		skillRepo:      skillRepo,
		eventPublisher: eventPublisher,
	}
}

// Execute runs the enrollment saga.
func (f *EnrollmentFlow) Execute(ctx context.Context, input EnrollmentInput) (*EnrollmentResult, error) {
	// Step 1: validate
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("enrollment[%s]: %w", StepValidateEnrollment, err)
	}

	now := input.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if _, err := f.journeyRepo.GetOpenJourney(ctx, input.TenantID, input.StudentID); err == nil {
		return nil, shared.ErrJourneyAlreadyOpen
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("enrollment[%s]: %w", StepValidateEnrollment, err)
	}

	// Step 2: seed skill rows (idempotent upsert)
	seeded := 0
	for _, cat := range shared.AllSkillCategories() {
		if _, err := f.skillRepo.Get(ctx, input.TenantID, input.StudentID, cat); err == nil {
			continue
		} else if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("enrollment[%s]: %w", StepSeedSkills, err)
		}
		s, err := skill.NewSkillScore(input.TenantID, input.StudentID, cat, now)
		if err != nil {
			return nil, fmt.Errorf("enrollment[%s]: %w", StepSeedSkills, err)
		}
		if err := f.skillRepo.Save(ctx, s); err != nil {
			return nil, fmt.Errorf("enrollment[%s]: %w", StepSeedSkills, err)
		}
		seeded++
	}

	// Step 3: open the first journey
	window := input.YearConfig.WindowFor(now)
	j, err := journey.NewGradeJourney(
		journey.JourneyID(uuid.NewString()),
		input.TenantID, input.StudentID, input.Grade, window, now,
	)
	if err != nil {
		return nil, fmt.Errorf("enrollment[%s]: %w", StepOpenJourney, err)
	}
	if err := f.journeyRepo.Save(ctx, j); err != nil {
		if shared.IsConflict(err) {
			return nil, shared.ErrJourneyAlreadyOpen
		}
		return nil, fmt.Errorf("enrollment[%s]: %w", StepOpenJourney, err)
	}

	// Step 4: publish (fire-and-forget)
	_ = f.eventPublisher.Publish(shared.NewJourneyOpenedEvent(
		input.TenantID, input.StudentID.String(), j.ID.String(), int(input.Grade), window.End,
	))

	return &EnrollmentResult{
		JourneyID:    j.ID.String(),
		Grade:        int(input.Grade),
		WindowStart:  window.Start,
		WindowEnd:    window.End,
		SkillsSeeded: seeded,
		EnrolledAt:   now,
	}, nil
}
