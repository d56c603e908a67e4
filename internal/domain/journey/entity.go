// Package journey содержит доменную модель учебного пути по классу:
// академический год, мягкое и полное завершение, значок мастерства
// и перевод в следующий класс. Чистый домен без внешних зависимостей.
package journey

import (
	"errors"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// JourneyID представляет уникальный идентификатор пути (UUID).
type JourneyID string

// IsValid проверяет, что идентификатор непустой.
func (id JourneyID) IsValid() bool {
	return id != ""
}

// String возвращает строковое представление идентификатора.
func (id JourneyID) String() string {
	return string(id)
}

// Status определяет состояние учебного пути.
// PENDING существует только внутри саги перевода: новый путь создаётся
// неактивным, и лишь после закрытия старого активируется. Благодаря этому
// повтор упавшей саги безопасен и инвариант "ровно один открытый путь"
// не нарушается наблюдаемо.
type Status string

const (
	// StatusPending - путь создан сагой перевода, но ещё не активирован.
	StatusPending Status = "PENDING"
	// StatusInProgress - активный путь текущего класса.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusCompleted - путь закрыт (мягко или полностью).
	StatusCompleted Status = "COMPLETED"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// CompletionType - способ завершения пути.
type CompletionType string

const (
	// CompletionSoft - академический год закончился; требования мастерства
	// могли быть не выполнены. Значок не выдаётся.
	CompletionSoft CompletionType = "SOFT"
	// CompletionHard - все требования мастерства класса выполнены.
	CompletionHard CompletionType = "HARD"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUMMARY SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot - итоговый срез прогресса, замораживаемый при закрытии пути.
// Дальнейшие изменения навыков на него не влияют.
type Snapshot struct {
	SkillScores       map[shared.SkillCategory]float64
	TotalXP           int
	AttemptsCompleted int
	CareersUnlocked   int
	TakenAt           time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE
// ══════════════════════════════════════════════════════════════════════════════

// MasteryBadge - значок мастерства класса. Выдаётся ровно один раз
// за полное (HARD) завершение класса и никогда не отзывается.
type MasteryBadge struct {
	ID        string
	TenantID  shared.TenantID
	StudentID shared.StudentID
	Grade     shared.Grade
	AwardedAt time.Time
}

// NewMasteryBadge создаёт значок мастерства.
func NewMasteryBadge(id string, tenantID shared.TenantID, studentID shared.StudentID, grade shared.Grade, at time.Time) (*MasteryBadge, error) {
	if id == "" {
		return nil, errors.New("journey: invalid badge ID")
	}
	if !grade.IsValid() {
		return nil, shared.ErrInvalidInput
	}
	return &MasteryBadge{
		ID:        id,
		TenantID:  tenantID,
		StudentID: studentID,
		Grade:     grade,
		AwardedAt: at,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADE JOURNEY (агрегат)
// ══════════════════════════════════════════════════════════════════════════════

// GradeJourney - агрегат учебного пути. У студента в любой момент
// наблюдаемо ровно один путь в состоянии IN_PROGRESS.
type GradeJourney struct {
	ID        JourneyID
	TenantID  shared.TenantID
	StudentID shared.StudentID
	Grade     shared.Grade
	Status    Status
	Window    Window

	CompletionType CompletionType // заполняется только для COMPLETED
	Summary        *Snapshot      // замораживается при закрытии

	StartedAt   time.Time
	CompletedAt *time.Time
}

// NewGradeJourney открывает новый активный путь.
func NewGradeJourney(
	id JourneyID,
	tenantID shared.TenantID,
	studentID shared.StudentID,
	grade shared.Grade,
	window Window,
	startedAt time.Time,
) (*GradeJourney, error) {
	j, err := newJourney(id, tenantID, studentID, grade, window, startedAt)
	if err != nil {
		return nil, err
	}
	j.Status = StatusInProgress
	return j, nil
}

// NewPendingJourney создаёт путь в состоянии PENDING для саги перевода.
func NewPendingJourney(
	id JourneyID,
	tenantID shared.TenantID,
	studentID shared.StudentID,
	grade shared.Grade,
	window Window,
	createdAt time.Time,
) (*GradeJourney, error) {
	j, err := newJourney(id, tenantID, studentID, grade, window, createdAt)
	if err != nil {
		return nil, err
	}
	j.Status = StatusPending
	return j, nil
}

func newJourney(
	id JourneyID,
	tenantID shared.TenantID,
	studentID shared.StudentID,
	grade shared.Grade,
	window Window,
	startedAt time.Time,
) (*GradeJourney, error) {
	if !id.IsValid() {
		return nil, errors.New("journey: invalid journey ID")
	}
	if !tenantID.IsValid() {
		return nil, shared.ErrInvalidTenantID
	}
	if !studentID.IsValid() {
		return nil, shared.ErrInvalidStudentID
	}
	if !grade.IsValid() {
		return nil, shared.ErrInvalidInput
	}
	if !window.IsValid() {
		return nil, shared.ErrInvalidYearConfig
	}
	return &GradeJourney{
		ID:        id,
		TenantID:  tenantID,
		StudentID: studentID,
		Grade:     grade,
		Window:    window,
		StartedAt: startedAt,
	}, nil
}

// IsOpen возвращает true для активного пути.
func (j *GradeJourney) IsOpen() bool {
	return j.Status == StatusInProgress
}

// Activate переводит PENDING-путь в активное состояние.
func (j *GradeJourney) Activate(at time.Time) error {
	if j.Status != StatusPending {
		if j.Status == StatusCompleted {
			return shared.ErrJourneyAlreadyClosed
		}
		return shared.ErrJourneyAlreadyOpen
	}
	j.Status = StatusInProgress
	j.StartedAt = at
	return nil
}

// SoftEligible возвращает true, если окно академического года закончилось.
// Мягкое завершение лишь открывает возможность перевода - сам перевод
// всегда запускается явным запросом, никогда автоматически.
func (j *GradeJourney) SoftEligible(now time.Time) bool {
	return j.IsOpen() && j.Window.Ended(now)
}

// Close закрывает активный путь, замораживая итоговый срез.
// Для HARD-закрытия вызывающая сторона предварительно проверяет
// требования мастерства.
func (j *GradeJourney) Close(completionType CompletionType, summary Snapshot, at time.Time) error {
	if j.Status == StatusCompleted {
		return shared.ErrJourneyAlreadyClosed
	}
	if j.Status != StatusInProgress {
		return shared.ErrNoOpenJourney
	}
	j.Status = StatusCompleted
	j.CompletionType = completionType
	j.Summary = &summary
	j.CompletedAt = &at
	return nil
}
