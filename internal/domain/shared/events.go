// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Events carry fire-and-forget downstream effects (notification triggers,
// cache invalidation, narrative regeneration). Scoring, XP and career
// evaluation never ride the bus - they stay inside the submit transaction.
const (
	// Attempt events
	EventAttemptStarted   EventType = "attempt.started"
	EventAttemptCompleted EventType = "attempt.completed"
	EventAttemptAbandoned EventType = "attempt.abandoned"

	// Progress events
	EventXPGained EventType = "progress.xp_gained"
	EventLevelUp  EventType = "progress.level_up"

	// Career events
	EventCareerUnlocked EventType = "career.unlocked"

	// Journey events
	EventJourneyOpened       EventType = "journey.opened"
	EventJourneySoftEligible EventType = "journey.soft_eligible"
	EventJourneyPromoted     EventType = "journey.promoted"
	EventBadgeAwarded        EventType = "journey.badge_awarded"

	// System events
	EventCatalogReevaluated EventType = "system.catalog_reevaluated"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	TenantId      string    `json:"tenant_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, tenantID TenantID, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		TenantId:    string(tenantID),
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Attempt Events
// ═══════════════════════════════════════════════════════════════════════════

// AttemptStartedEvent is emitted when a student opens a new attempt.
type AttemptStartedEvent struct {
	BaseEvent
	AttemptID     string      `json:"attempt_id"`
	StudentID     string      `json:"student_id"`
	SubjectID     string      `json:"subject_id"`
	SubjectKind   SubjectKind `json:"subject_kind"`
	AttemptNumber int         `json:"attempt_number"`
}

// Payload implements Event interface.
func (e AttemptStartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"attempt_id":     e.AttemptID,
		"student_id":     e.StudentID,
		"subject_id":     e.SubjectID,
		"subject_kind":   string(e.SubjectKind),
		"attempt_number": e.AttemptNumber,
	}
}

// NewAttemptStartedEvent creates a new AttemptStartedEvent.
func NewAttemptStartedEvent(tenantID TenantID, attemptID, studentID, subjectID string, kind SubjectKind, number int) AttemptStartedEvent {
	return AttemptStartedEvent{
		BaseEvent:     NewBaseEvent(EventAttemptStarted, tenantID, attemptID),
		AttemptID:     attemptID,
		StudentID:     studentID,
		SubjectID:     subjectID,
		SubjectKind:   kind,
		AttemptNumber: number,
	}
}

// AttemptCompletedEvent is emitted after a successful submit transaction.
type AttemptCompletedEvent struct {
	BaseEvent
	AttemptID        string             `json:"attempt_id"`
	StudentID        string             `json:"student_id"`
	SubjectID        string             `json:"subject_id"`
	SubjectKind      SubjectKind        `json:"subject_kind"`
	Accuracy         float64            `json:"accuracy"`
	XPGained         int                `json:"xp_gained"`
	NormalizedScores map[string]float64 `json:"normalized_scores"`
}

// Payload implements Event interface.
func (e AttemptCompletedEvent) Payload() map[string]interface{} {
	scores := make(map[string]interface{}, len(e.NormalizedScores))
	for cat, s := range e.NormalizedScores {
		scores[cat] = s
	}
	return map[string]interface{}{
		"attempt_id":        e.AttemptID,
		"student_id":        e.StudentID,
		"subject_id":        e.SubjectID,
		"subject_kind":      string(e.SubjectKind),
		"accuracy":          e.Accuracy,
		"xp_gained":         e.XPGained,
		"normalized_scores": scores,
	}
}

// NewAttemptCompletedEvent creates a new AttemptCompletedEvent.
func NewAttemptCompletedEvent(tenantID TenantID, attemptID, studentID, subjectID string, kind SubjectKind, accuracy float64, xpGained int, scores map[string]float64) AttemptCompletedEvent {
	return AttemptCompletedEvent{
		BaseEvent:        NewBaseEvent(EventAttemptCompleted, tenantID, attemptID),
		AttemptID:        attemptID,
		StudentID:        studentID,
		SubjectID:        subjectID,
		SubjectKind:      kind,
		Accuracy:         accuracy,
		XPGained:         xpGained,
		NormalizedScores: scores,
	}
}

// AttemptAbandonedEvent is emitted when an attempt is abandoned
// (explicitly or by the stale-attempt expiry job).
type AttemptAbandonedEvent struct {
	BaseEvent
	AttemptID string `json:"attempt_id"`
	StudentID string `json:"student_id"`
	SubjectID string `json:"subject_id"`
	Reason    string `json:"reason"` // "explicit" or "expired"
}

// Payload implements Event interface.
func (e AttemptAbandonedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"attempt_id": e.AttemptID,
		"student_id": e.StudentID,
		"subject_id": e.SubjectID,
		"reason":     e.Reason,
	}
}

// NewAttemptAbandonedEvent creates a new AttemptAbandonedEvent.
func NewAttemptAbandonedEvent(tenantID TenantID, attemptID, studentID, subjectID, reason string) AttemptAbandonedEvent {
	return AttemptAbandonedEvent{
		BaseEvent: NewBaseEvent(EventAttemptAbandoned, tenantID, attemptID),
		AttemptID: attemptID,
		StudentID: studentID,
		SubjectID: subjectID,
		Reason:    reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// XPGainedEvent is emitted when a student gains XP.
type XPGainedEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	Amount    int    `json:"amount"`
	NewTotal  int    `json:"new_total"`
	Source    string `json:"source"` // e.g., "assessment", "quest"
	AttemptID string `json:"attempt_id,omitempty"`
}

// Payload implements Event interface.
func (e XPGainedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"amount":     e.Amount,
		"new_total":  e.NewTotal,
		"source":     e.Source,
		"attempt_id": e.AttemptID,
	}
}

// NewXPGainedEvent creates a new XPGainedEvent.
func NewXPGainedEvent(tenantID TenantID, studentID string, amount, newTotal int, source, attemptID string) XPGainedEvent {
	return XPGainedEvent{
		BaseEvent: NewBaseEvent(EventXPGained, tenantID, studentID),
		StudentID: studentID,
		Amount:    amount,
		NewTotal:  newTotal,
		Source:    source,
		AttemptID: attemptID,
	}
}

// LevelUpEvent is emitted when a per-category game level crosses a boundary.
// This drives celebratory UI; the core only detects the crossing.
type LevelUpEvent struct {
	BaseEvent
	StudentID  string `json:"student_id"`
	Category   string `json:"category"`
	OldLevel   int    `json:"old_level"`
	NewLevel   int    `json:"new_level"`
	LevelTitle string `json:"level_title"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":  e.StudentID,
		"category":    e.Category,
		"old_level":   e.OldLevel,
		"new_level":   e.NewLevel,
		"level_title": e.LevelTitle,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(tenantID TenantID, studentID string, category SkillCategory, oldLevel, newLevel int, title string) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent:  NewBaseEvent(EventLevelUp, tenantID, studentID),
		StudentID:  studentID,
		Category:   string(category),
		OldLevel:   oldLevel,
		NewLevel:   newLevel,
		LevelTitle: title,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Career Events
// ═══════════════════════════════════════════════════════════════════════════

// CareerUnlockedEvent is emitted when a career becomes visible to a student.
type CareerUnlockedEvent struct {
	BaseEvent
	StudentID    string   `json:"student_id"`
	CareerID     string   `json:"career_id"`
	CareerTitle  string   `json:"career_title"`
	LinkedSkills []string `json:"linked_skills"`
}

// Payload implements Event interface.
func (e CareerUnlockedEvent) Payload() map[string]interface{} {
	skills := make([]interface{}, 0, len(e.LinkedSkills))
	for _, s := range e.LinkedSkills {
		skills = append(skills, s)
	}
	return map[string]interface{}{
		"student_id":    e.StudentID,
		"career_id":     e.CareerID,
		"career_title":  e.CareerTitle,
		"linked_skills": skills,
	}
}

// NewCareerUnlockedEvent creates a new CareerUnlockedEvent.
func NewCareerUnlockedEvent(tenantID TenantID, studentID, careerID, careerTitle string, linkedSkills []string) CareerUnlockedEvent {
	return CareerUnlockedEvent{
		BaseEvent:    NewBaseEvent(EventCareerUnlocked, tenantID, studentID),
		StudentID:    studentID,
		CareerID:     careerID,
		CareerTitle:  careerTitle,
		LinkedSkills: linkedSkills,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Journey Events
// ═══════════════════════════════════════════════════════════════════════════

// JourneyOpenedEvent is emitted when a grade journey opens (enrollment
// or promotion).
type JourneyOpenedEvent struct {
	BaseEvent
	StudentID string    `json:"student_id"`
	JourneyID string    `json:"journey_id"`
	Grade     int       `json:"grade"`
	WindowEnd time.Time `json:"window_end"`
}

// Payload implements Event interface.
func (e JourneyOpenedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"journey_id": e.JourneyID,
		"grade":      e.Grade,
		"window_end": e.WindowEnd.Format(time.RFC3339),
	}
}

// NewJourneyOpenedEvent creates a new JourneyOpenedEvent.
func NewJourneyOpenedEvent(tenantID TenantID, studentID, journeyID string, grade int, windowEnd time.Time) JourneyOpenedEvent {
	return JourneyOpenedEvent{
		BaseEvent: NewBaseEvent(EventJourneyOpened, tenantID, journeyID),
		StudentID: studentID,
		JourneyID: journeyID,
		Grade:     grade,
		WindowEnd: windowEnd,
	}
}

// JourneySoftEligibleEvent is emitted by the promotion sweep when a student
// becomes eligible to promote. Promotion itself is never auto-applied.
type JourneySoftEligibleEvent struct {
	BaseEvent
	StudentID string    `json:"student_id"`
	JourneyID string    `json:"journey_id"`
	Grade     int       `json:"grade"`
	WindowEnd time.Time `json:"window_end"`
}

// Payload implements Event interface.
func (e JourneySoftEligibleEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"journey_id": e.JourneyID,
		"grade":      e.Grade,
		"window_end": e.WindowEnd.Format(time.RFC3339),
	}
}

// NewJourneySoftEligibleEvent creates a new JourneySoftEligibleEvent.
func NewJourneySoftEligibleEvent(tenantID TenantID, studentID, journeyID string, grade int, windowEnd time.Time) JourneySoftEligibleEvent {
	return JourneySoftEligibleEvent{
		BaseEvent: NewBaseEvent(EventJourneySoftEligible, tenantID, journeyID),
		StudentID: studentID,
		JourneyID: journeyID,
		Grade:     grade,
		WindowEnd: windowEnd,
	}
}

// JourneyPromotedEvent is emitted after a successful promotion transaction.
type JourneyPromotedEvent struct {
	BaseEvent
	StudentID      string `json:"student_id"`
	ClosedJourney  string `json:"closed_journey_id"`
	NewJourney     string `json:"new_journey_id"`
	FromGrade      int    `json:"from_grade"`
	ToGrade        int    `json:"to_grade"`
	CompletionType string `json:"completion_type"` // "SOFT" or "HARD"
}

// Payload implements Event interface.
func (e JourneyPromotedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":        e.StudentID,
		"closed_journey_id": e.ClosedJourney,
		"new_journey_id":    e.NewJourney,
		"from_grade":        e.FromGrade,
		"to_grade":          e.ToGrade,
		"completion_type":   e.CompletionType,
	}
}

// NewJourneyPromotedEvent creates a new JourneyPromotedEvent.
func NewJourneyPromotedEvent(tenantID TenantID, studentID, closedID, newID string, fromGrade, toGrade int, completionType string) JourneyPromotedEvent {
	return JourneyPromotedEvent{
		BaseEvent:      NewBaseEvent(EventJourneyPromoted, tenantID, studentID),
		StudentID:      studentID,
		ClosedJourney:  closedID,
		NewJourney:     newID,
		FromGrade:      fromGrade,
		ToGrade:        toGrade,
		CompletionType: completionType,
	}
}

// BadgeAwardedEvent is emitted when a grade mastery badge is awarded.
type BadgeAwardedEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	Grade     int    `json:"grade"`
	BadgeType string `json:"badge_type"`
}

// Payload implements Event interface.
func (e BadgeAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"grade":      e.Grade,
		"badge_type": e.BadgeType,
	}
}

// NewBadgeAwardedEvent creates a new BadgeAwardedEvent.
func NewBadgeAwardedEvent(tenantID TenantID, studentID string, grade int, badgeType string) BadgeAwardedEvent {
	return BadgeAwardedEvent{
		BaseEvent: NewBaseEvent(EventBadgeAwarded, tenantID, studentID),
		StudentID: studentID,
		Grade:     grade,
		BadgeType: badgeType,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
