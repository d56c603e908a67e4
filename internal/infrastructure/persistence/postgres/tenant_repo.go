package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edugami/edugami-engine/internal/domain/journey"
	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/tenant"
)

// ══════════════════════════════════════════════════════════════════════════════
// TENANT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// TenantRepository implements tenant.Repository for PostgreSQL.
type TenantRepository struct {
	conn *Connection
}

// NewTenantRepository creates a new TenantRepository.
func NewTenantRepository(conn *Connection) *TenantRepository {
	return &TenantRepository{conn: conn}
}

const tenantColumns = `
	id, name, api_key_hash, year_start_month, year_start_day,
	year_end_month, year_end_day, year_timezone, active,
	created_at, updated_at
`

// Save persists a tenant (create or update).
func (r *TenantRepository) Save(ctx context.Context, t *tenant.Tenant) error {
	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			api_key_hash = EXCLUDED.api_key_hash,
			year_start_month = EXCLUDED.year_start_month,
			year_start_day = EXCLUDED.year_start_day,
			year_end_month = EXCLUDED.year_end_month,
			year_end_day = EXCLUDED.year_end_day,
			year_timezone = EXCLUDED.year_timezone,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.QuerierFrom(ctx).Exec(ctx, query,
		t.ID.String(),
		t.Name,
		t.APIKeyHash,
		int(t.YearConfig.StartMonth),
		t.YearConfig.StartDay,
		int(t.YearConfig.EndMonth),
		t.YearConfig.EndDay,
		t.YearConfig.Timezone,
		t.Active,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}

	return nil
}

// GetByID returns a tenant by ID.
func (r *TenantRepository) GetByID(ctx context.Context, id shared.TenantID) (*tenant.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE id = $1
	`

	row := r.conn.QuerierFrom(ctx).QueryRow(ctx, query, id.String())
	t, err := scanTenant(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrTenantNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListActive returns all active tenants.
func (r *TenantRepository) ListActive(ctx context.Context) ([]*tenant.Tenant, error) {
	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE active = TRUE
		ORDER BY created_at
	`

	rows, err := r.conn.QuerierFrom(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var (
		t          tenant.Tenant
		id         string
		startMonth int
		startDay   int
		endMonth   int
		endDay     int
		timezone   string
	)

	err := row.Scan(
		&id, &t.Name, &t.APIKeyHash, &startMonth, &startDay,
		&endMonth, &endDay, &timezone, &t.Active,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}

	t.ID = shared.TenantID(id)
	t.YearConfig = journey.AcademicYearConfig{
		StartMonth: time.Month(startMonth),
		StartDay:   startDay,
		EndMonth:   time.Month(endMonth),
		EndDay:     endDay,
		Timezone:   timezone,
	}

	return &t, nil
}
