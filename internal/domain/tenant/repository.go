package tenant

import (
	"context"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// Repository defines the interface for tenant persistence.
// Implemented by the infrastructure layer.
type Repository interface {
	// Save persists a tenant (create or update).
	Save(ctx context.Context, t *Tenant) error

	// GetByID returns a tenant by ID, or shared.ErrTenantNotFound.
	GetByID(ctx context.Context, id shared.TenantID) (*Tenant, error)

	// ListActive returns all active tenants.
	ListActive(ctx context.Context) ([]*Tenant, error)
}
