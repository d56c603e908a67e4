package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edugami/edugami-engine/internal/domain/journey"
	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADE JOURNEY REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// JourneyRepository implements journey.Repository for PostgreSQL.
type JourneyRepository struct {
	conn *Connection
}

// NewJourneyRepository creates a new JourneyRepository.
func NewJourneyRepository(conn *Connection) *JourneyRepository {
	return &JourneyRepository{conn: conn}
}

const journeyColumns = `
	id, tenant_id, student_id, grade, status, window_start, window_end,
	completion_type, summary, started_at, completed_at
`

// ─────────────────────────────────────────────────────────────────────────────
// Write Operations
// ─────────────────────────────────────────────────────────────────────────────

// Save persists a journey (create or update). Inserting a second open or
// pending journey for the same student hits a partial unique index and maps
// to the domain conflict error.
func (r *JourneyRepository) Save(ctx context.Context, j *journey.GradeJourney) error {
	query := `
		INSERT INTO grade_journeys (` + journeyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completion_type = EXCLUDED.completion_type,
			summary = EXCLUDED.summary,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	summaryJSON, err := marshalSummary(j.Summary)
	if err != nil {
		return err
	}

	_, err = r.conn.QuerierFrom(ctx).Exec(ctx, query,
		j.ID.String(),
		j.TenantID.String(),
		j.StudentID.String(),
		int(j.Grade),
		string(j.Status),
		j.Window.Start,
		j.Window.End,
		nullableCompletionType(j.CompletionType),
		summaryJSON,
		j.StartedAt,
		j.CompletedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrJourneyAlreadyOpen
		}
		return fmt.Errorf("failed to save journey: %w", err)
	}

	return nil
}

// CloseAndActivate atomically closes the old journey and activates the
// pending one. This is the commit point of the promotion saga: either both
// transitions land or neither does, so the one-open-journey invariant holds
// under any interleaving of retries. For the terminal grade activated is nil.
func (r *JourneyRepository) CloseAndActivate(ctx context.Context, closed *journey.GradeJourney, activated *journey.GradeJourney) error {
	if tx, ok := txFrom(ctx); ok {
		return r.closeAndActivate(ctx, tx, closed, activated)
	}
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return r.closeAndActivate(ctx, tx, closed, activated)
	})
}

func (r *JourneyRepository) closeAndActivate(ctx context.Context, tx pgx.Tx, closed *journey.GradeJourney, activated *journey.GradeJourney) error {
	closeQuery := `
		UPDATE grade_journeys SET
			status = $1,
			completion_type = $2,
			summary = $3,
			completed_at = $4
		WHERE tenant_id = $5 AND id = $6 AND status = 'IN_PROGRESS'
	`

	summaryJSON, err := marshalSummary(closed.Summary)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, closeQuery,
		string(journey.StatusCompleted),
		string(closed.CompletionType),
		summaryJSON,
		closed.CompletedAt,
		closed.TenantID.String(),
		closed.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to close journey: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrJourneyAlreadyClosed
	}

	if activated == nil {
		return nil
	}

	activateQuery := `
		UPDATE grade_journeys SET
			status = $1,
			started_at = $2
		WHERE tenant_id = $3 AND id = $4 AND status = 'PENDING'
	`

	tag, err = tx.Exec(ctx, activateQuery,
		string(journey.StatusInProgress),
		activated.StartedAt,
		activated.TenantID.String(),
		activated.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to activate journey: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrJourneyNotFound
	}

	return nil
}

// SaveBadge persists a mastery badge. A duplicate for the same
// (student, grade) is benign and reported as not created.
func (r *JourneyRepository) SaveBadge(ctx context.Context, b *journey.MasteryBadge) (bool, error) {
	query := `
		INSERT INTO mastery_badges (id, tenant_id, student_id, grade, awarded_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.conn.QuerierFrom(ctx).Exec(ctx, query,
		b.ID,
		b.TenantID.String(),
		b.StudentID.String(),
		int(b.Grade),
		b.AwardedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to save badge: %w", err)
	}

	return true, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Read Operations
// ─────────────────────────────────────────────────────────────────────────────

// GetByID returns a journey by ID, scoped to a tenant.
func (r *JourneyRepository) GetByID(ctx context.Context, tenantID shared.TenantID, id journey.JourneyID) (*journey.GradeJourney, error) {
	query := `
		SELECT ` + journeyColumns + `
		FROM grade_journeys
		WHERE tenant_id = $1 AND id = $2
	`

	row := r.conn.QuerierFrom(ctx).QueryRow(ctx, query, tenantID.String(), id.String())
	j, err := scanJourney(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrJourneyNotFound
		}
		return nil, err
	}
	return j, nil
}

// GetOpenJourney returns the student's IN_PROGRESS journey.
func (r *JourneyRepository) GetOpenJourney(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) (*journey.GradeJourney, error) {
	query := `
		SELECT ` + journeyColumns + `
		FROM grade_journeys
		WHERE tenant_id = $1 AND student_id = $2 AND status = 'IN_PROGRESS'
	`

	row := r.conn.QuerierFrom(ctx).QueryRow(ctx, query,
		tenantID.String(), studentID.String())
	j, err := scanJourney(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNoOpenJourney
		}
		return nil, err
	}
	return j, nil
}

// GetPendingJourney returns the student's PENDING journey left by an
// interrupted promotion.
func (r *JourneyRepository) GetPendingJourney(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) (*journey.GradeJourney, error) {
	query := `
		SELECT ` + journeyColumns + `
		FROM grade_journeys
		WHERE tenant_id = $1 AND student_id = $2 AND status = 'PENDING'
	`

	row := r.conn.QuerierFrom(ctx).QueryRow(ctx, query,
		tenantID.String(), studentID.String())
	j, err := scanJourney(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrJourneyNotFound
		}
		return nil, err
	}
	return j, nil
}

// ListByStudent returns all journeys for a student, oldest first.
func (r *JourneyRepository) ListByStudent(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) ([]*journey.GradeJourney, error) {
	query := `
		SELECT ` + journeyColumns + `
		FROM grade_journeys
		WHERE tenant_id = $1 AND student_id = $2
		ORDER BY started_at
	`

	rows, err := r.conn.QuerierFrom(ctx).Query(ctx, query,
		tenantID.String(), studentID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list journeys: %w", err)
	}
	defer rows.Close()

	return collectJourneys(rows)
}

// ListSoftEligible returns open journeys whose window ended before now.
// Scans across tenants for the promotion sweep.
func (r *JourneyRepository) ListSoftEligible(ctx context.Context, now time.Time, limit int) ([]*journey.GradeJourney, error) {
	query := `
		SELECT ` + journeyColumns + `
		FROM grade_journeys
		WHERE status = 'IN_PROGRESS' AND window_end <= $1
		ORDER BY window_end
		LIMIT $2
	`

	rows, err := r.conn.QuerierFrom(ctx).Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list soft-eligible journeys: %w", err)
	}
	defer rows.Close()

	return collectJourneys(rows)
}

// ListBadges returns all mastery badges for a student, oldest first.
func (r *JourneyRepository) ListBadges(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) ([]*journey.MasteryBadge, error) {
	query := `
		SELECT id, tenant_id, student_id, grade, awarded_at
		FROM mastery_badges
		WHERE tenant_id = $1 AND student_id = $2
		ORDER BY awarded_at
	`

	rows, err := r.conn.QuerierFrom(ctx).Query(ctx, query,
		tenantID.String(), studentID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	defer rows.Close()

	var badges []*journey.MasteryBadge
	for rows.Next() {
		var (
			b        journey.MasteryBadge
			tenant   string
			student  string
			gradeNum int
		)
		if err := rows.Scan(&b.ID, &tenant, &student, &gradeNum, &b.AwardedAt); err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		b.TenantID = shared.TenantID(tenant)
		b.StudentID = shared.StudentID(student)
		b.Grade = shared.Grade(gradeNum)
		badges = append(badges, &b)
	}
	return badges, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Row Mapping
// ─────────────────────────────────────────────────────────────────────────────

type snapshotRow struct {
	SkillScores       map[string]float64 `json:"skill_scores"`
	TotalXP           int                `json:"total_xp"`
	AttemptsCompleted int                `json:"attempts_completed"`
	CareersUnlocked   int                `json:"careers_unlocked"`
	TakenAt           time.Time          `json:"taken_at"`
}

func marshalSummary(s *journey.Snapshot) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	scores := make(map[string]float64, len(s.SkillScores))
	for cat, score := range s.SkillScores {
		scores[string(cat)] = score
	}
	data, err := json.Marshal(snapshotRow{
		SkillScores:       scores,
		TotalXP:           s.TotalXP,
		AttemptsCompleted: s.AttemptsCompleted,
		CareersUnlocked:   s.CareersUnlocked,
		TakenAt:           s.TakenAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	return data, nil
}

func unmarshalSummary(data []byte) (*journey.Snapshot, error) {
	if data == nil {
		return nil, nil
	}
	var row snapshotRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	scores := make(map[shared.SkillCategory]float64, len(row.SkillScores))
	for cat, score := range row.SkillScores {
		scores[shared.SkillCategory(cat)] = score
	}
	return &journey.Snapshot{
		SkillScores:       scores,
		TotalXP:           row.TotalXP,
		AttemptsCompleted: row.AttemptsCompleted,
		CareersUnlocked:   row.CareersUnlocked,
		TakenAt:           row.TakenAt,
	}, nil
}

func nullableCompletionType(ct journey.CompletionType) *string {
	if ct == "" {
		return nil
	}
	s := string(ct)
	return &s
}

func scanJourney(row pgx.Row) (*journey.GradeJourney, error) {
	var (
		j              journey.GradeJourney
		id             string
		tenantID       string
		studentID      string
		grade          int
		status         string
		completionType *string
		summaryJSON    []byte
	)

	err := row.Scan(
		&id, &tenantID, &studentID, &grade, &status,
		&j.Window.Start, &j.Window.End,
		&completionType, &summaryJSON, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	j.ID = journey.JourneyID(id)
	j.TenantID = shared.TenantID(tenantID)
	j.StudentID = shared.StudentID(studentID)
	j.Grade = shared.Grade(grade)
	j.Status = journey.Status(status)
	if completionType != nil {
		j.CompletionType = journey.CompletionType(*completionType)
	}

	summary, err := unmarshalSummary(summaryJSON)
	if err != nil {
		return nil, err
	}
	j.Summary = summary

	return &j, nil
}

func collectJourneys(rows pgx.Rows) ([]*journey.GradeJourney, error) {
	var journeys []*journey.GradeJourney
	for rows.Next() {
		j, err := scanJourney(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journey: %w", err)
		}
		journeys = append(journeys, j)
	}
	return journeys, rows.Err()
}
