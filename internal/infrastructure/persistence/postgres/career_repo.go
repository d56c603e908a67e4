package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edugami/edugami-engine/internal/domain/career"
	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CAREER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CareerRepository implements career.Repository for PostgreSQL.
type CareerRepository struct {
	conn *Connection
}

// NewCareerRepository creates a new CareerRepository.
func NewCareerRepository(conn *Connection) *CareerRepository {
	return &CareerRepository{conn: conn}
}

const unlockColumns = `
	id, tenant_id, student_id, career_id, catalog_version, evidence, unlocked_at
`

// SaveUnlock persists an unlock. A concurrent duplicate for the same
// (student, career) hits the unique constraint and is reported as already
// present rather than as an error.
func (r *CareerRepository) SaveUnlock(ctx context.Context, u *career.Unlock) (bool, error) {
	query := `
		INSERT INTO career_unlocks (` + unlockColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	evidenceJSON, err := json.Marshal(evidenceToRows(u.Evidence))
	if err != nil {
		return false, fmt.Errorf("failed to marshal evidence: %w", err)
	}

	_, err = r.conn.QuerierFrom(ctx).Exec(ctx, query,
		u.ID,
		u.TenantID.String(),
		u.StudentID.String(),
		u.CareerID.String(),
		u.CatalogVersion,
		evidenceJSON,
		u.UnlockedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to save career unlock: %w", err)
	}

	return true, nil
}

// ListUnlocks returns all unlocks for a student, oldest first.
func (r *CareerRepository) ListUnlocks(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) ([]*career.Unlock, error) {
	query := `
		SELECT ` + unlockColumns + `
		FROM career_unlocks
		WHERE tenant_id = $1 AND student_id = $2
		ORDER BY unlocked_at
	`

	rows, err := r.conn.QuerierFrom(ctx).Query(ctx, query,
		tenantID.String(), studentID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list career unlocks: %w", err)
	}
	defer rows.Close()

	var unlocks []*career.Unlock
	for rows.Next() {
		u, err := scanUnlock(rows)
		if err != nil {
			return nil, err
		}
		unlocks = append(unlocks, u)
	}
	return unlocks, rows.Err()
}

// UnlockedSet returns the set of career IDs already unlocked for a student.
func (r *CareerRepository) UnlockedSet(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) (map[career.CareerID]bool, error) {
	query := `
		SELECT career_id
		FROM career_unlocks
		WHERE tenant_id = $1 AND student_id = $2
	`

	rows, err := r.conn.QuerierFrom(ctx).Query(ctx, query,
		tenantID.String(), studentID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query unlocked set: %w", err)
	}
	defer rows.Close()

	unlocked := make(map[career.CareerID]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan career ID: %w", err)
		}
		unlocked[career.CareerID(id)] = true
	}
	return unlocked, rows.Err()
}

// ListStudentsBelowCatalogVersion returns students whose most recent
// evaluation ran against an older catalog.
func (r *CareerRepository) ListStudentsBelowCatalogVersion(ctx context.Context, version int, limit int) ([]career.StudentCursor, error) {
	query := `
		SELECT tenant_id, student_id
		FROM career_evaluations
		WHERE catalog_version < $1
		ORDER BY evaluated_at
		LIMIT $2
	`

	rows, err := r.conn.QuerierFrom(ctx).Query(ctx, query, version, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale evaluations: %w", err)
	}
	defer rows.Close()

	var cursors []career.StudentCursor
	for rows.Next() {
		var tenantID, studentID string
		if err := rows.Scan(&tenantID, &studentID); err != nil {
			return nil, fmt.Errorf("failed to scan student cursor: %w", err)
		}
		cursors = append(cursors, career.StudentCursor{
			TenantID:  shared.TenantID(tenantID),
			StudentID: shared.StudentID(studentID),
		})
	}
	return cursors, rows.Err()
}

// MarkEvaluated records the catalog version a student was last evaluated
// against.
func (r *CareerRepository) MarkEvaluated(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, version int) error {
	query := `
		INSERT INTO career_evaluations (tenant_id, student_id, catalog_version, evaluated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, student_id) DO UPDATE SET
			catalog_version = EXCLUDED.catalog_version,
			evaluated_at = EXCLUDED.evaluated_at
	`

	_, err := r.conn.QuerierFrom(ctx).Exec(ctx, query,
		tenantID.String(), studentID.String(), version, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark evaluation: %w", err)
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Row Mapping
// ─────────────────────────────────────────────────────────────────────────────

type evidenceRow struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
	Required float64 `json:"required"`
}

func evidenceToRows(evidence []career.Evidence) []evidenceRow {
	rows := make([]evidenceRow, 0, len(evidence))
	for _, e := range evidence {
		rows = append(rows, evidenceRow{
			Category: string(e.Category),
			Score:    e.Score,
			Required: e.Required,
		})
	}
	return rows
}

func scanUnlock(row pgx.Row) (*career.Unlock, error) {
	var (
		u            career.Unlock
		tenantID     string
		studentID    string
		careerID     string
		evidenceJSON []byte
	)

	err := row.Scan(
		&u.ID, &tenantID, &studentID, &careerID,
		&u.CatalogVersion, &evidenceJSON, &u.UnlockedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCareerNotFound
		}
		return nil, fmt.Errorf("failed to scan career unlock: %w", err)
	}

	u.TenantID = shared.TenantID(tenantID)
	u.StudentID = shared.StudentID(studentID)
	u.CareerID = career.CareerID(careerID)

	var evidenceRows []evidenceRow
	if err := json.Unmarshal(evidenceJSON, &evidenceRows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evidence: %w", err)
	}
	u.Evidence = make([]career.Evidence, 0, len(evidenceRows))
	for _, e := range evidenceRows {
		u.Evidence = append(u.Evidence, career.Evidence{
			Category: shared.SkillCategory(e.Category),
			Score:    e.Score,
			Required: e.Required,
		})
	}

	return &u, nil
}
