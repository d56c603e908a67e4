// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrConflict         = errors.New("state precondition violated")
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrExpired          = errors.New("expired")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOptimisticLock         = errors.New("optimistic lock failure")

	// Storage / external service errors (transient)
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "attempt", "skill", "journey"
	Op      string // Operation that failed, e.g., "Start", "Submit"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Identity errors
var (
	ErrInvalidTenantID  = NewDomainError("identity", "Validate", ErrInvalidID, "invalid tenant ID")
	ErrInvalidStudentID = NewDomainError("identity", "Validate", ErrInvalidID, "invalid student ID")
	ErrInvalidSubjectID = NewDomainError("identity", "Validate", ErrInvalidID, "invalid subject ID")
)

// Attempt domain errors
var (
	ErrAttemptNotFound       = NewDomainError("attempt", "Find", ErrNotFound, "attempt not found")
	ErrAttemptAlreadyOpen    = NewDomainError("attempt", "Start", ErrConflict, "an attempt is already in progress for this subject")
	ErrAttemptNotInProgress  = NewDomainError("attempt", "Submit", ErrInvalidState, "attempt is not in progress")
	ErrAttemptAlreadyClosed  = NewDomainError("attempt", "Transition", ErrStateTransition, "attempt is already in a terminal state")
	ErrAnswerCardinality     = NewDomainError("attempt", "Submit", ErrValidation, "answer count does not match item count")
	ErrAnswerType            = NewDomainError("attempt", "Submit", ErrValidation, "answer type does not match item type")
	ErrTelemetryInvalid      = NewDomainError("attempt", "Submit", ErrValidation, "telemetry counters must be non-negative")
	ErrAttemptResultNotReady = NewDomainError("attempt", "Result", ErrInvalidState, "scoring result is not available yet")
)

// Skill domain errors
var (
	ErrSkillScoreNotFound = NewDomainError("skill", "Find", ErrNotFound, "skill score not found")
	ErrScoreOutOfRange    = NewDomainError("skill", "Validate", ErrValueOutOfRange, "normalized score must be within [0,100]")
	ErrHistoryNotOrdered  = NewDomainError("skill", "AppendHistory", ErrValidation, "history must stay chronological")
)

// Career domain errors
var (
	ErrCareerNotFound        = NewDomainError("career", "Find", ErrNotFound, "career not found in catalog")
	ErrCareerAlreadyUnlocked = NewDomainError("career", "Unlock", ErrAlreadyExists, "career already unlocked")
	ErrEmptyCatalog          = NewDomainError("career", "Load", ErrInvalidEntity, "career catalog is empty")
)

// Journey domain errors
var (
	ErrJourneyNotFound      = NewDomainError("journey", "Find", ErrNotFound, "grade journey not found")
	ErrNoOpenJourney        = NewDomainError("journey", "Find", ErrNotFound, "student has no open grade journey")
	ErrJourneyAlreadyOpen   = NewDomainError("journey", "Open", ErrConflict, "student already has an open grade journey")
	ErrJourneyAlreadyClosed = NewDomainError("journey", "Close", ErrInvalidState, "grade journey is already completed")
	ErrNotYetEligible       = NewDomainError("journey", "Promote", ErrConflict, "academic year window has not ended yet")
	ErrBadgeAlreadyAwarded  = NewDomainError("journey", "AwardBadge", ErrAlreadyExists, "mastery badge already awarded")
)

// Tenant / configuration errors
var (
	ErrTenantNotFound    = NewDomainError("tenant", "Find", ErrNotFound, "tenant not found")
	ErrInvalidYearConfig = NewDomainError("tenant", "Validate", ErrInvalidInput, "invalid academic year configuration")
	ErrInvalidAPIKey     = NewDomainError("tenant", "Authenticate", ErrUnauthorized, "invalid API key")
	ErrRoleNotPermitted  = NewDomainError("identity", "Authorize", ErrForbidden, "role is not permitted to perform this operation")
	ErrWrongTenant       = NewDomainError("identity", "Authorize", ErrForbidden, "resource belongs to a different tenant")
)

// External service errors
var (
	ErrContentUnavailable     = NewDomainError("content", "Request", ErrServiceUnavailable, "content provider is unavailable")
	ErrContentRateLimited     = NewDomainError("content", "Request", ErrRateLimited, "content provider rate limit exceeded")
	ErrContentTimeout         = NewDomainError("content", "Request", ErrTimeout, "content provider request timeout")
	ErrContentInvalidResponse = NewDomainError("content", "Parse", ErrInvalidFormat, "invalid response from content provider")
	ErrNarrativeFailed        = NewDomainError("narrative", "Request", ErrExternalService, "narrative generator request failed")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if the error is a state-precondition conflict
// (e.g. starting an attempt while one is already open).
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrAlreadyExists)
}

// IsInvalidState checks if the error is a lifecycle-state violation.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrStateTransition)
}

// IsValidation checks if the error is a validation error.
// Attempt state is preserved on validation failures; retry is safe.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsTransient checks if the error came from the storage/external boundary and
// the operation can be retried by the caller.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrConcurrentModification)
}
