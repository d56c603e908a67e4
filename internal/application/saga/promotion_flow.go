package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/career"
	"github.com/edugami/edugami-engine/internal/domain/journey"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/skill"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROMOTION SAGA
// Перевод в следующий класс: Load → Check Eligibility → Snapshot →
// Create Pending Journey → Close & Activate → Award Badge → Publish.
//
// Новый путь сначала создаётся в состоянии PENDING и лишь в одной
// транзакции со закрытием старого активируется. Если сага падает между
// шагами, повтор находит висящий PENDING-путь и продолжает с него:
// инвариант "ровно один наблюдаемо открытый путь" не нарушается, а
// повтор не плодит дубликатов.
// ══════════════════════════════════════════════════════════════════════════════

// PromotionStep represents a step in the promotion process.
type PromotionStep string

const (
	StepLoadJourney      PromotionStep = "load_journey"
	StepCheckEligibility PromotionStep = "check_eligibility"
	StepSnapshot         PromotionStep = "snapshot"
	StepCreatePending    PromotionStep = "create_pending"
	StepCloseAndActivate PromotionStep = "close_and_activate"
	StepAwardBadge       PromotionStep = "award_badge"
	StepPublishPromotion PromotionStep = "publish_event"
)

// PromotionInput contains all data required to promote a student.
type PromotionInput struct {
	TenantID  shared.TenantID
	StudentID shared.StudentID

	// YearConfig определяет окно следующего академического года.
	YearConfig journey.AcademicYearConfig

	// Timestamp is the promotion time (defaults to now if zero).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate checks if the input is valid.
func (i PromotionInput) Validate() error {
	if !i.TenantID.IsValid() {
		return shared.ErrInvalidTenantID
	}
	if !i.StudentID.IsValid() {
		return shared.ErrInvalidStudentID
	}
	if !i.YearConfig.IsValid() {
		return shared.ErrInvalidYearConfig
	}
	return nil
}

// PromotionResult contains the result of a successful promotion.
type PromotionResult struct {
	ClosedJourneyID string
	NewJourneyID    string // empty for the terminal grade
	FromGrade       int
	ToGrade         int
	CompletionType  string
	BadgeAwarded    bool
	PromotedAt      time.Time
}

// PromotionFlow orchestrates grade promotion.
type PromotionFlow struct {
	journeyRepo    journey.Repository
	skillRepo      skill.Repository
	attemptRepo    attempt.Repository
	careerRepo     career.Repository
	eventPublisher shared.EventPublisher
}

// NewPromotionFlow creates a new PromotionFlow.
func NewPromotionFlow(
	journeyRepo journey.Repository,
	skillRepo skill.Repository,
	attemptRepo attempt.Repository,
	careerRepo career.Repository,
	eventPublisher shared.EventPublisher,
) *PromotionFlow {
	return &PromotionFlow{
		journeyRepo:    journeyRepo,
		skillRepo:      skillRepo,
		attemptRepo:    attemptRepo,
		careerRepo:     careerRepo,
		eventPublisher: eventPublisher,
	}
}

// Execute runs the promotion saga.
func (f *PromotionFlow) Execute(ctx context.Context, input PromotionInput) (*PromotionResult, error) {
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("promotion[validate]: %w", err)
	}

	now := input.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// Step 1: load the open journey
	current, err := f.journeyRepo.GetOpenJourney(ctx, input.TenantID, input.StudentID)
	if err != nil {
		return nil, fmt.Errorf("promotion[%s]: %w", StepLoadJourney, err)
	}

	// Step 2: eligibility. Перевод возможен только после конца окна года.
	// Выполненные требования мастерства дают тип HARD и значок, но не
	// открывают досрочный перевод.
	if !current.SoftEligible(now) {
		return nil, shared.ErrNotYetEligible
	}

	snapshot, hardComplete, err := f.buildSnapshot(ctx, input.TenantID, input.StudentID, current, now)
	if err != nil {
		return nil, fmt.Errorf("promotion[%s]: %w", StepSnapshot, err)
	}

	completionType := journey.CompletionSoft
	if hardComplete {
		completionType = journey.CompletionHard
	}

	// Step 3: pending journey (resume if a previous run left one behind)
	var pending *journey.GradeJourney
	if !current.Grade.IsTerminal() {
		pending, err = f.journeyRepo.GetPendingJourney(ctx, input.TenantID, input.StudentID)
		if err != nil {
			if !shared.IsNotFound(err) {
				return nil, fmt.Errorf("promotion[%s]: %w", StepCreatePending, err)
			}
			nextWindow := input.YearConfig.NextWindow(current.Window)
			pending, err = journey.NewPendingJourney(
				journey.JourneyID(uuid.NewString()),
				input.TenantID, input.StudentID, current.Grade.Next(), nextWindow, now,
			)
			if err != nil {
				return nil, fmt.Errorf("promotion[%s]: %w", StepCreatePending, err)
			}
			if err := f.journeyRepo.Save(ctx, pending); err != nil {
				return nil, fmt.Errorf("promotion[%s]: %w", StepCreatePending, err)
			}
		}
	}

	// Step 4: commit point - close old, activate new in one transaction
	if err := current.Close(completionType, *snapshot, now); err != nil {
		return nil, fmt.Errorf("promotion[%s]: %w", StepCloseAndActivate, err)
	}
	if pending != nil {
		if err := pending.Activate(now); err != nil {
			return nil, fmt.Errorf("promotion[%s]: %w", StepCloseAndActivate, err)
		}
	}
	if err := f.journeyRepo.CloseAndActivate(ctx, current, pending); err != nil {
		return nil, fmt.Errorf("promotion[%s]: %w", StepCloseAndActivate, err)
	}

	result := &PromotionResult{
		ClosedJourneyID: current.ID.String(),
		FromGrade:       int(current.Grade),
		ToGrade:         int(current.Grade),
		CompletionType:  string(completionType),
		PromotedAt:      now,
	}
	if pending != nil {
		result.NewJourneyID = pending.ID.String()
		result.ToGrade = int(pending.Grade)
	}

	// Step 5: badge for hard completion (duplicate award is benign)
	if completionType == journey.CompletionHard {
		badge, err := journey.NewMasteryBadge(uuid.NewString(), input.TenantID, input.StudentID, current.Grade, now)
		if err == nil {
			created, err := f.journeyRepo.SaveBadge(ctx, badge)
			if err == nil && created {
				result.BadgeAwarded = true
				_ = f.eventPublisher.Publish(shared.NewBadgeAwardedEvent(
					input.TenantID, input.StudentID.String(), int(current.Grade), "grade_mastery",
				))
			}
		}
	}

	// Step 6: publish (fire-and-forget)
	promoted := shared.NewJourneyPromotedEvent(
		input.TenantID, input.StudentID.String(),
		result.ClosedJourneyID, result.NewJourneyID,
		result.FromGrade, result.ToGrade, result.CompletionType,
	)
	if input.CorrelationID != "" {
		promoted.BaseEvent = promoted.BaseEvent.WithCorrelationID(input.CorrelationID)
	}
	_ = f.eventPublisher.Publish(promoted)

	return result, nil
}

// buildSnapshot собирает итоговый срез года и проверяет требования мастерства.
func (f *PromotionFlow) buildSnapshot(
	ctx context.Context,
	tenantID shared.TenantID,
	studentID shared.StudentID,
	current *journey.GradeJourney,
	now time.Time,
) (*journey.Snapshot, bool, error) {
	skills, err := f.skillRepo.GetAll(ctx, tenantID, studentID)
	if err != nil {
		return nil, false, err
	}
	scores := make(map[shared.SkillCategory]float64, len(skills))
	totalXP := 0
	for _, s := range skills {
		scores[s.Category] = s.Score
		totalXP += s.XP
	}

	attempts, err := f.attemptRepo.CountCompletedInWindow(ctx, tenantID, studentID, current.Window.Start, current.Window.End)
	if err != nil {
		return nil, false, err
	}

	unlocks, err := f.careerRepo.UnlockedSet(ctx, tenantID, studentID)
	if err != nil {
		return nil, false, err
	}

	_, hardComplete := journey.RequirementsFor(current.Grade).Evaluate(scores, attempts)

	return &journey.Snapshot{
		SkillScores:       scores,
		TotalXP:           totalXP,
		AttemptsCompleted: attempts,
		CareersUnlocked:   len(unlocks),
		TakenAt:           now,
	}, hardComplete, nil
}
