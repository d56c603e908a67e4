package journey

import (
	"context"
	"time"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// Repository defines the interface for grade journey persistence.
// Implemented by the infrastructure layer.
type Repository interface {
	// Save persists a journey (create or update).
	Save(ctx context.Context, j *GradeJourney) error

	// GetByID returns a journey by ID, scoped to a tenant.
	GetByID(ctx context.Context, tenantID shared.TenantID, id JourneyID) (*GradeJourney, error)

	// GetOpenJourney returns the student's IN_PROGRESS journey,
	// or shared.ErrNoOpenJourney if none.
	GetOpenJourney(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) (*GradeJourney, error)

	// GetPendingJourney returns the student's PENDING journey left by an
	// interrupted promotion, or shared.ErrNotFound if none.
	GetPendingJourney(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) (*GradeJourney, error)

	// ListByStudent returns all journeys for a student, oldest first.
	ListByStudent(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) ([]*GradeJourney, error)

	// CloseAndActivate atomically closes the old journey and activates the
	// pending one in a single transaction. This is the commit point of the
	// promotion saga. For the terminal grade activated is nil: the old
	// journey closes and no new one opens.
	CloseAndActivate(ctx context.Context, closed *GradeJourney, activated *GradeJourney) error

	// ListSoftEligible returns open journeys whose window ended before now.
	// Feeds the promotion sweep; scans across tenants.
	ListSoftEligible(ctx context.Context, now time.Time, limit int) ([]*GradeJourney, error)

	// Badge operations

	// SaveBadge persists a mastery badge. A duplicate for the same
	// (student, grade) is benign and reported as not created.
	SaveBadge(ctx context.Context, b *MasteryBadge) (created bool, err error)

	// ListBadges returns all mastery badges for a student, oldest first.
	ListBadges(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) ([]*MasteryBadge, error)
}
