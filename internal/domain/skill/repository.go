package skill

import (
	"context"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// Repository defines the interface for skill score persistence.
// Implemented by the infrastructure layer.
type Repository interface {
	// Save persists a skill score aggregate (create or update).
	Save(ctx context.Context, s *SkillScore) error

	// SaveAll persists multiple aggregates inside the caller's transaction
	// scope, used by the submit pipeline.
	SaveAll(ctx context.Context, scores []*SkillScore) error

	// Get returns the aggregate for a (student, category) pair,
	// or shared.ErrNotFound if the row was never seeded.
	Get(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, category shared.SkillCategory) (*SkillScore, error)

	// GetAll returns all category aggregates for a student, in the
	// catalog's stable category order.
	GetAll(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) ([]*SkillScore, error)
}
