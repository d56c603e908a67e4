// Package tenant contains the tenant aggregate: the school or platform
// partner whose students the engine tracks, with its API credential and
// academic year configuration.
package tenant

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/edugami/edugami-engine/internal/domain/journey"
	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// Tenant is the per-partner aggregate. All other aggregates are scoped to a
// tenant; cross-tenant reads and writes are rejected at the application layer.
type Tenant struct {
	ID         shared.TenantID
	Name       string
	APIKeyHash string // bcrypt hash, the plaintext key is never stored
	YearConfig journey.AcademicYearConfig
	Active     bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTenant creates a tenant with a pre-hashed API key.
func NewTenant(id shared.TenantID, name, apiKeyHash string, yearConfig journey.AcademicYearConfig, at time.Time) (*Tenant, error) {
	if !id.IsValid() {
		return nil, shared.ErrInvalidTenantID
	}
	if name == "" {
		return nil, errors.New("tenant: name cannot be empty")
	}
	if apiKeyHash == "" {
		return nil, errors.New("tenant: API key hash cannot be empty")
	}
	if !yearConfig.IsValid() {
		return nil, shared.ErrInvalidYearConfig
	}
	return &Tenant{
		ID:         id,
		Name:       name,
		APIKeyHash: apiKeyHash,
		YearConfig: yearConfig,
		Active:     true,
		CreatedAt:  at,
		UpdatedAt:  at,
	}, nil
}

// VerifyAPIKey checks a presented plaintext key against the stored hash.
func (t *Tenant) VerifyAPIKey(key string) error {
	if !t.Active {
		return shared.ErrInvalidAPIKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(t.APIKeyHash), []byte(key)); err != nil {
		return shared.ErrInvalidAPIKey
	}
	return nil
}

// RotateAPIKey replaces the stored credential hash.
func (t *Tenant) RotateAPIKey(apiKeyHash string, at time.Time) error {
	if apiKeyHash == "" {
		return errors.New("tenant: API key hash cannot be empty")
	}
	t.APIKeyHash = apiKeyHash
	t.UpdatedAt = at
	return nil
}

// Deactivate turns the tenant off without deleting its data.
func (t *Tenant) Deactivate(at time.Time) {
	t.Active = false
	t.UpdatedAt = at
}

// HashAPIKey hashes a plaintext API key for storage.
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("tenant: API key cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
