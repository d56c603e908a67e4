package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edugami/edugami-engine/internal/domain/shared"
	"github.com/edugami/edugami-engine/internal/domain/skill"
)

// ══════════════════════════════════════════════════════════════════════════════
// SKILL SCORE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SkillRepository implements skill.Repository for PostgreSQL.
type SkillRepository struct {
	conn *Connection
}

// NewSkillRepository creates a new SkillRepository.
func NewSkillRepository(conn *Connection) *SkillRepository {
	return &SkillRepository{conn: conn}
}

const skillColumns = `
	tenant_id, student_id, category, score, level, trend, xp, history, updated_at
`

// Save persists a skill score aggregate (create or update).
func (r *SkillRepository) Save(ctx context.Context, s *skill.SkillScore) error {
	query := `
		INSERT INTO skill_scores (` + skillColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, student_id, category) DO UPDATE SET
			score = EXCLUDED.score,
			level = EXCLUDED.level,
			trend = EXCLUDED.trend,
			xp = EXCLUDED.xp,
			history = EXCLUDED.history,
			updated_at = EXCLUDED.updated_at
	`

	historyJSON, err := json.Marshal(historyToRows(s.History))
	if err != nil {
		return fmt.Errorf("failed to marshal skill history: %w", err)
	}

	_, err = r.conn.QuerierFrom(ctx).Exec(ctx, query,
		s.TenantID.String(),
		s.StudentID.String(),
		string(s.Category),
		s.Score,
		string(s.Level),
		string(s.Trend),
		s.XP,
		historyJSON,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save skill score: %w", err)
	}

	return nil
}

// SaveAll persists multiple aggregates. Runs against the caller's transaction
// when one is bound to the context, which is how the submit pipeline keeps
// all category updates atomic with the attempt completion.
func (r *SkillRepository) SaveAll(ctx context.Context, scores []*skill.SkillScore) error {
	for _, s := range scores {
		if err := r.Save(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the aggregate for a (student, category) pair.
func (r *SkillRepository) Get(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, category shared.SkillCategory) (*skill.SkillScore, error) {
	query := `
		SELECT ` + skillColumns + `
		FROM skill_scores
		WHERE tenant_id = $1 AND student_id = $2 AND category = $3
	`

	row := r.conn.QuerierFrom(ctx).QueryRow(ctx, query,
		tenantID.String(), studentID.String(), string(category))
	return scanSkillScore(row)
}

// GetAll returns all category aggregates for a student in the catalog's
// stable category order.
func (r *SkillRepository) GetAll(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID) ([]*skill.SkillScore, error) {
	query := `
		SELECT ` + skillColumns + `
		FROM skill_scores
		WHERE tenant_id = $1 AND student_id = $2
	`

	rows, err := r.conn.QuerierFrom(ctx).Query(ctx, query,
		tenantID.String(), studentID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list skill scores: %w", err)
	}
	defer rows.Close()

	byCategory := make(map[shared.SkillCategory]*skill.SkillScore)
	for rows.Next() {
		s, err := scanSkillScore(rows)
		if err != nil {
			return nil, err
		}
		byCategory[s.Category] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reorder to the closed catalog order rather than whatever the
	// database returned.
	ordered := make([]*skill.SkillScore, 0, len(byCategory))
	for _, cat := range shared.AllSkillCategories() {
		if s, ok := byCategory[cat]; ok {
			ordered = append(ordered, s)
		}
	}
	return ordered, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Row Mapping
// ─────────────────────────────────────────────────────────────────────────────

type historyPointRow struct {
	Score      float64   `json:"score"`
	AttemptID  string    `json:"attempt_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

func historyToRows(history []skill.HistoryPoint) []historyPointRow {
	rows := make([]historyPointRow, 0, len(history))
	for _, p := range history {
		rows = append(rows, historyPointRow(p))
	}
	return rows
}

func scanSkillScore(row pgx.Row) (*skill.SkillScore, error) {
	var (
		s           skill.SkillScore
		tenantID    string
		studentID   string
		category    string
		level       string
		trend       string
		historyJSON []byte
	)

	err := row.Scan(
		&tenantID, &studentID, &category,
		&s.Score, &level, &trend, &s.XP, &historyJSON, &s.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrSkillScoreNotFound
		}
		return nil, fmt.Errorf("failed to scan skill score: %w", err)
	}

	s.TenantID = shared.TenantID(tenantID)
	s.StudentID = shared.StudentID(studentID)
	s.Category = shared.SkillCategory(category)
	s.Level = skill.Level(level)
	s.Trend = skill.Trend(trend)

	var historyRows []historyPointRow
	if err := json.Unmarshal(historyJSON, &historyRows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal skill history: %w", err)
	}
	s.History = make([]skill.HistoryPoint, 0, len(historyRows))
	for _, p := range historyRows {
		s.History = append(s.History, skill.HistoryPoint(p))
	}

	return &s, nil
}
