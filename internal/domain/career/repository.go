package career

import (
	"context"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// Repository defines the interface for career unlock persistence.
// Implemented by the infrastructure layer.
type Repository interface {
	// SaveUnlock persists an unlock. A concurrent duplicate for the same
	// (student, career) is benign: implementations swallow the unique
	// violation and report the unlock as already present.
	SaveUnlock(ctx context.Context, u *Unlock) (created bool, err error)

	// ListUnlocks returns all unlocks for a student, oldest first.
	ListUnlocks(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) ([]*Unlock, error)

	// UnlockedSet returns the set of career IDs already unlocked for
	// a student. Used by the evaluator for idempotent re-evaluation.
	UnlockedSet(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) (map[CareerID]bool, error)

	// ListStudentsBelowCatalogVersion returns students whose most recent
	// evaluation ran against an older catalog. Feeds the re-evaluation sweep.
	ListStudentsBelowCatalogVersion(ctx context.Context, version int, limit int) ([]StudentCursor, error)

	// MarkEvaluated records the catalog version a student was last
	// evaluated against.
	MarkEvaluated(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, version int) error
}

// StudentCursor identifies a student within a tenant for sweep iteration.
type StudentCursor struct {
	TenantID  shared.TenantID
	StudentID shared.StudentID
}
