// Package attempt содержит доменную модель попытки прохождения
// игры-ассессмента или квеста.
package attempt

import (
	"context"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// Repository defines the interface for attempt persistence.
// This interface is implemented by the infrastructure layer.
// The domain layer has no knowledge of the actual storage mechanism.
type Repository interface {
	// Save persists an attempt (create or update).
	Save(ctx context.Context, a *Attempt) error

	// GetByID returns an attempt by its ID, scoped to a tenant.
	GetByID(ctx context.Context, tenantID shared.TenantID, id AttemptID) (*Attempt, error)

	// GetOpenAttempt returns the single IN_PROGRESS attempt for a
	// (student, subject) pair, or shared.ErrNotFound if none is open.
	GetOpenAttempt(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, subjectID shared.SubjectID) (*Attempt, error)

	// NextAttemptNumber returns the next sequential attempt number for a
	// (student, subject) pair. Numbers start at 1 and are never reused.
	NextAttemptNumber(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, subjectID shared.SubjectID) (AttemptNumber, error)

	// CompleteIfInProgress atomically transitions the attempt to COMPLETED
	// with the given frozen result, guarded by status = IN_PROGRESS.
	// Returns (false, nil) if the attempt was already closed - the caller
	// then re-reads the stored result for an idempotent response.
	CompleteIfInProgress(ctx context.Context, a *Attempt) (bool, error)

	// AbandonIfInProgress atomically transitions the attempt to ABANDONED,
	// guarded by status = IN_PROGRESS. Returns (false, nil) if already closed.
	AbandonIfInProgress(ctx context.Context, tenantID shared.TenantID, id AttemptID, reason AbandonReason, at time.Time) (bool, error)

	// ListByStudent returns attempts for a student, most recent first.
	ListByStudent(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, limit int) ([]*Attempt, error)

	// ListStale returns open attempts with no activity past the threshold.
	// Used by the auto-abandon background job; scans across tenants.
	ListStale(ctx context.Context, threshold time.Duration, limit int) ([]*Attempt, error)

	// CountCompletedInWindow returns how many attempts the student completed
	// inside a time window. Feeds grade mastery evaluation.
	CountCompletedInWindow(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, from, to time.Time) (int, error)
}

// AutosaveStore is a low-latency best-effort store for in-flight progress
// ticks. Implemented with Redis; entries expire with the attempt. Losing an
// autosave entry loses unsubmitted progress only, never scored results.
type AutosaveStore interface {
	// AppendProgress merges a progress tick into the autosave entry.
	AppendProgress(ctx context.Context, tenantID shared.TenantID, id AttemptID, answers []Answer, events []TelemetryEvent, ttl time.Duration) error

	// LoadProgress returns the accumulated autosaved progress, if any.
	LoadProgress(ctx context.Context, tenantID shared.TenantID, id AttemptID) (*ProgressState, error)

	// Discard removes the autosave entry after the attempt closes.
	Discard(ctx context.Context, tenantID shared.TenantID, id AttemptID) error
}
