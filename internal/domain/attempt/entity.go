// Package attempt содержит доменную модель попытки прохождения
// игры-ассессмента или квеста. Это ядро бизнес-логики - здесь нет
// внешних зависимостей.
package attempt

import (
	"errors"
	"fmt"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// AttemptID представляет уникальный идентификатор попытки (UUID).
type AttemptID string

// IsValid проверяет, что идентификатор непустой.
func (id AttemptID) IsValid() bool {
	return id != ""
}

// String возвращает строковое представление идентификатора.
func (id AttemptID) String() string {
	return string(id)
}

// AttemptNumber - порядковый номер попытки студента по данному предмету.
// Нумерация начинается с 1 и никогда не переиспользуется.
type AttemptNumber int

// IsValid проверяет, что номер попытки положительный.
func (n AttemptNumber) IsValid() bool {
	return n >= 1
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS (машина состояний)
// ══════════════════════════════════════════════════════════════════════════════

// Status определяет состояние попытки.
// Допустимые переходы: IN_PROGRESS → COMPLETED, IN_PROGRESS → ABANDONED.
// Терминальные состояния не покидаются никогда.
type Status string

const (
	// StatusInProgress - попытка открыта, студент играет.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusCompleted - попытка успешно отправлена и оценена.
	StatusCompleted Status = "COMPLETED"
	// StatusAbandoned - попытка брошена (явно или по таймауту).
	StatusAbandoned Status = "ABANDONED"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusInProgress, StatusCompleted, StatusAbandoned:
		return true
	default:
		return false
	}
}

// IsTerminal возвращает true для терминальных состояний.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// CanTransitionTo проверяет допустимость перехода в целевое состояние.
func (s Status) CanTransitionTo(target Status) bool {
	if s != StatusInProgress {
		return false
	}
	return target == StatusCompleted || target == StatusAbandoned
}

// AbandonReason - причина закрытия попытки как брошенной.
type AbandonReason string

const (
	// AbandonExplicit - студент сам закрыл игру.
	AbandonExplicit AbandonReason = "explicit"
	// AbandonExpired - попытка закрыта фоновой задачей по неактивности.
	AbandonExpired AbandonReason = "expired"
)

// ══════════════════════════════════════════════════════════════════════════════
// ITEM SET (снимок контента)
// ══════════════════════════════════════════════════════════════════════════════

// ItemType определяет тип вопроса и форму допустимого ответа.
type ItemType string

const (
	ItemSingleChoice ItemType = "single_choice"
	ItemMultiChoice  ItemType = "multi_choice"
	ItemFreeText     ItemType = "free_text"
	ItemNumeric      ItemType = "numeric"
)

// IsValid проверяет, что тип вопроса известен.
func (t ItemType) IsValid() bool {
	switch t {
	case ItemSingleChoice, ItemMultiChoice, ItemFreeText, ItemNumeric:
		return true
	default:
		return false
	}
}

// Item - один вопрос из набора, замороженного в момент старта попытки.
// Контент-провайдер может менять наборы между попытками; внутри одной
// попытки набор неизменен, поэтому оценивание детерминировано.
type Item struct {
	ID         string
	Type       ItemType
	Categories []shared.SkillCategory // какие навыки измеряет вопрос

	// Ключ правильного ответа (заполняется по типу вопроса).
	CorrectChoice     int
	CorrectSelections []int
	AcceptedAnswers   []string
	NumericAnswer     float64

	// Ориентировочное время на вопрос для расчёта бонуса за скорость.
	ExpectedTimeMs int
}

// ItemSet - замороженный набор вопросов попытки с версией каталога.
type ItemSet struct {
	SubjectID      shared.SubjectID
	CatalogVersion int
	Items          []Item
}

// FindItem ищет вопрос по идентификатору.
func (set ItemSet) FindItem(itemID string) (Item, bool) {
	for _, it := range set.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return Item{}, false
}

// ══════════════════════════════════════════════════════════════════════════════
// ANSWERS & TELEMETRY
// ══════════════════════════════════════════════════════════════════════════════

// Answer - ответ студента на один вопрос.
type Answer struct {
	ItemID     string
	Type       ItemType
	Choice     int
	Selections []int
	Text       string
	Numeric    float64
}

// MatchesItem проверяет, что форма ответа соответствует типу вопроса.
func (a Answer) MatchesItem(item Item) bool {
	return a.ItemID == item.ID && a.Type == item.Type
}

// TelemetryEvent - одно событие телеметрии, накопленное во время попытки.
// Телеметрия дозаписывается через recordProgress и сливается при submit;
// потеря отдельных событий допустима (best-effort).
type TelemetryEvent struct {
	ItemID      string
	TimeSpentMs int
	HintsUsed   int
	RecordedAt  time.Time
}

// ProgressState - накопленное состояние незавершённой попытки.
type ProgressState struct {
	Answers    map[string]Answer // последний ответ по каждому вопросу
	Telemetry  []TelemetryEvent
	TotalHints int
	UpdatedAt  time.Time
}

// NewProgressState создаёт пустое состояние прогресса.
func NewProgressState() ProgressState {
	return ProgressState{Answers: make(map[string]Answer)}
}

// Merge дозаписывает пришедший прогресс поверх накопленного.
// Повторный ответ на вопрос заменяет предыдущий; телеметрия append-only.
func (p *ProgressState) Merge(answers []Answer, events []TelemetryEvent, at time.Time) {
	if p.Answers == nil {
		p.Answers = make(map[string]Answer)
	}
	for _, a := range answers {
		p.Answers[a.ItemID] = a
	}
	for _, e := range events {
		p.Telemetry = append(p.Telemetry, e)
		p.TotalHints += e.HintsUsed
	}
	if at.After(p.UpdatedAt) {
		p.UpdatedAt = at
	}
}

// TotalTimeMs суммирует время по всем событиям телеметрии.
func (p ProgressState) TotalTimeMs() int {
	total := 0
	for _, e := range p.Telemetry {
		total += e.TimeSpentMs
	}
	return total
}

// TelemetrySummary - итоговая телеметрия всей попытки. Клиент передаёт её
// при submit; при её отсутствии сводка восстанавливается из автосейва.
type TelemetrySummary struct {
	TimeSpentMs int
	HintsUsed   int
	Errors      int
	Revisions   int
}

// IsValid проверяет, что все счётчики неотрицательны.
func (s TelemetrySummary) IsValid() bool {
	return s.TimeSpentMs >= 0 && s.HintsUsed >= 0 && s.Errors >= 0 && s.Revisions >= 0
}

// Summary сворачивает накопленные события автосейва в итоговую телеметрию.
func (p ProgressState) Summary() TelemetrySummary {
	return TelemetrySummary{
		TimeSpentMs: p.TotalTimeMs(),
		HintsUsed:   p.TotalHints,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORING RESULT (замораживается при submit)
// ══════════════════════════════════════════════════════════════════════════════

// ScoringResult - результат оценивания, замороженный на попытке.
// Повторный submit той же попытки возвращает этот сохранённый результат,
// не пересчитывая его (идемпотентность).
type ScoringResult struct {
	CorrectCount     int
	TotalCount       int
	Accuracy         float64 // [0,1]
	NormalizedScores map[shared.SkillCategory]float64
	XPAwarded        int
	TimeSpentMs      int
	HintsUsed        int
	ComputedAt       time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTEMPT (агрегат)
// ══════════════════════════════════════════════════════════════════════════════

// Attempt - агрегат попытки. Все изменения проходят через методы,
// охраняющие машину состояний.
type Attempt struct {
	ID        AttemptID
	TenantID  shared.TenantID
	StudentID shared.StudentID
	SubjectID shared.SubjectID
	Kind      shared.SubjectKind
	Number    AttemptNumber
	Status    Status

	ItemSet  ItemSet
	Progress ProgressState
	Result   *ScoringResult // nil до завершения

	AbandonedReason AbandonReason // заполняется только для ABANDONED

	StartedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt *time.Time // nil пока попытка открыта
}

// NewAttempt открывает новую попытку с замороженным набором вопросов.
func NewAttempt(
	id AttemptID,
	tenantID shared.TenantID,
	studentID shared.StudentID,
	subjectID shared.SubjectID,
	kind shared.SubjectKind,
	number AttemptNumber,
	itemSet ItemSet,
	startedAt time.Time,
) (*Attempt, error) {
	if !id.IsValid() {
		return nil, errors.New("attempt: invalid attempt ID")
	}
	if !tenantID.IsValid() {
		return nil, shared.ErrInvalidTenantID
	}
	if !studentID.IsValid() {
		return nil, shared.ErrInvalidStudentID
	}
	if !subjectID.IsValid() {
		return nil, shared.ErrInvalidSubjectID
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown subject kind %q", shared.ErrInvalidInput, kind)
	}
	if !number.IsValid() {
		return nil, fmt.Errorf("%w: attempt number must be >= 1", shared.ErrInvalidInput)
	}

	return &Attempt{
		ID:        id,
		TenantID:  tenantID,
		StudentID: studentID,
		SubjectID: subjectID,
		Kind:      kind,
		Number:    number,
		Status:    StatusInProgress,
		ItemSet:   itemSet,
		Progress:  NewProgressState(),
		StartedAt: startedAt,
		UpdatedAt: startedAt,
	}, nil
}

// IsOpen возвращает true, если попытка ещё не закрыта.
func (a *Attempt) IsOpen() bool {
	return a.Status == StatusInProgress
}

// RecordProgress дозаписывает прогресс в открытую попытку.
// Для закрытой попытки возвращает ошибку состояния; вызывающая сторона
// (best-effort команда) сама решает, глотать её или нет.
func (a *Attempt) RecordProgress(answers []Answer, events []TelemetryEvent, at time.Time) error {
	if !a.IsOpen() {
		return shared.ErrAttemptNotInProgress
	}
	for _, ans := range answers {
		item, ok := a.ItemSet.FindItem(ans.ItemID)
		if !ok {
			return fmt.Errorf("%w: unknown item %q", shared.ErrValidation, ans.ItemID)
		}
		if !ans.MatchesItem(item) {
			return shared.ErrAnswerType
		}
	}
	a.Progress.Merge(answers, events, at)
	a.UpdatedAt = at
	return nil
}

// ValidateFinalAnswers проверяет финальный пакет ответов перед оцениванием:
// ровно один ответ на каждый вопрос набора, формы ответов соответствуют типам.
// Ошибки валидации не меняют состояние попытки - повтор безопасен.
func (a *Attempt) ValidateFinalAnswers(answers []Answer) error {
	if len(answers) != len(a.ItemSet.Items) {
		return shared.ErrAnswerCardinality
	}
	seen := make(map[string]bool, len(answers))
	for _, ans := range answers {
		item, ok := a.ItemSet.FindItem(ans.ItemID)
		if !ok {
			return fmt.Errorf("%w: unknown item %q", shared.ErrValidation, ans.ItemID)
		}
		if seen[ans.ItemID] {
			return fmt.Errorf("%w: duplicate answer for item %q", shared.ErrValidation, ans.ItemID)
		}
		seen[ans.ItemID] = true
		if !ans.MatchesItem(item) {
			return shared.ErrAnswerType
		}
	}
	return nil
}

// Complete переводит попытку в COMPLETED и замораживает результат.
func (a *Attempt) Complete(result ScoringResult, at time.Time) error {
	if !a.Status.CanTransitionTo(StatusCompleted) {
		if a.Status.IsTerminal() {
			return shared.ErrAttemptAlreadyClosed
		}
		return shared.ErrAttemptNotInProgress
	}
	a.Status = StatusCompleted
	a.Result = &result
	a.UpdatedAt = at
	a.FinishedAt = &at
	return nil
}

// Abandon переводит попытку в ABANDONED. Частичная телеметрия сохраняется,
// но на навыки и XP не влияет никогда.
func (a *Attempt) Abandon(reason AbandonReason, at time.Time) error {
	if !a.Status.CanTransitionTo(StatusAbandoned) {
		if a.Status.IsTerminal() {
			return shared.ErrAttemptAlreadyClosed
		}
		return shared.ErrAttemptNotInProgress
	}
	a.Status = StatusAbandoned
	a.AbandonedReason = reason
	a.UpdatedAt = at
	a.FinishedAt = &at
	return nil
}

// IsStale возвращает true, если открытая попытка неактивна дольше порога.
// Используется фоновой задачей авто-закрытия.
func (a *Attempt) IsStale(threshold time.Duration, now time.Time) bool {
	if !a.IsOpen() {
		return false
	}
	last := a.UpdatedAt
	if last.IsZero() {
		last = a.StartedAt
	}
	return now.Sub(last) > threshold
}
