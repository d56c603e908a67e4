package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edugami/edugami-engine/internal/domain/attempt"
	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTEMPT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AttemptRepository implements attempt.Repository for PostgreSQL.
type AttemptRepository struct {
	conn *Connection
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(conn *Connection) *AttemptRepository {
	return &AttemptRepository{conn: conn}
}

const attemptColumns = `
	id, tenant_id, student_id, subject_id, subject_kind, attempt_number,
	status, abandoned_reason, item_set, progress, result,
	started_at, updated_at, finished_at
`

// ─────────────────────────────────────────────────────────────────────────────
// Write Operations
// ─────────────────────────────────────────────────────────────────────────────

// Save persists an attempt (create or update). Inserting a second open
// attempt for the same (student, subject) hits the partial unique index and
// maps to the domain conflict error.
func (r *AttemptRepository) Save(ctx context.Context, a *attempt.Attempt) error {
	query := `
		INSERT INTO attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			abandoned_reason = EXCLUDED.abandoned_reason,
			progress = EXCLUDED.progress,
			result = EXCLUDED.result,
			updated_at = EXCLUDED.updated_at,
			finished_at = EXCLUDED.finished_at
	`

	itemSetJSON, progressJSON, resultJSON, err := marshalAttemptJSON(a)
	if err != nil {
		return err
	}

	_, err = r.conn.QuerierFrom(ctx).Exec(ctx, query,
		a.ID.String(),
		a.TenantID.String(),
		a.StudentID.String(),
		a.SubjectID.String(),
		string(a.Kind),
		int(a.Number),
		string(a.Status),
		nullableReason(a.AbandonedReason),
		itemSetJSON,
		progressJSON,
		resultJSON,
		a.StartedAt,
		a.UpdatedAt,
		a.FinishedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAttemptAlreadyOpen
		}
		return fmt.Errorf("failed to save attempt: %w", err)
	}

	return nil
}

// CompleteIfInProgress atomically freezes the scoring result, guarded by
// status = IN_PROGRESS. This conditional update is the idempotency commit
// point of the submit pipeline: exactly one submitter wins the race.
func (r *AttemptRepository) CompleteIfInProgress(ctx context.Context, a *attempt.Attempt) (bool, error) {
	query := `
		UPDATE attempts SET
			status = $1,
			progress = $2,
			result = $3,
			updated_at = $4,
			finished_at = $5
		WHERE tenant_id = $6 AND id = $7 AND status = 'IN_PROGRESS'
	`

	_, progressJSON, resultJSON, err := marshalAttemptJSON(a)
	if err != nil {
		return false, err
	}
	if resultJSON == nil {
		return false, shared.ErrAttemptResultNotReady
	}

	tag, err := r.conn.QuerierFrom(ctx).Exec(ctx, query,
		string(attempt.StatusCompleted),
		progressJSON,
		resultJSON,
		a.UpdatedAt,
		a.FinishedAt,
		a.TenantID.String(),
		a.ID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete attempt: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// AbandonIfInProgress atomically closes the attempt as abandoned, guarded
// by status = IN_PROGRESS.
func (r *AttemptRepository) AbandonIfInProgress(ctx context.Context, tenantID shared.TenantID, id attempt.AttemptID, reason attempt.AbandonReason, at time.Time) (bool, error) {
	query := `
		UPDATE attempts SET
			status = $1,
			abandoned_reason = $2,
			updated_at = $3,
			finished_at = $3
		WHERE tenant_id = $4 AND id = $5 AND status = 'IN_PROGRESS'
	`

	tag, err := r.conn.QuerierFrom(ctx).Exec(ctx, query,
		string(attempt.StatusAbandoned),
		string(reason),
		at,
		tenantID.String(),
		id.String(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to abandon attempt: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Read Operations
// ─────────────────────────────────────────────────────────────────────────────

// GetByID returns an attempt by its ID, scoped to a tenant.
func (r *AttemptRepository) GetByID(ctx context.Context, tenantID shared.TenantID, id attempt.AttemptID) (*attempt.Attempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM attempts
		WHERE tenant_id = $1 AND id = $2
	`

	row := r.conn.QuerierFrom(ctx).QueryRow(ctx, query, tenantID.String(), id.String())
	return scanAttempt(row)
}

// GetOpenAttempt returns the single IN_PROGRESS attempt for a
// (student, subject) pair.
func (r *AttemptRepository) GetOpenAttempt(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, subjectID shared.SubjectID) (*attempt.Attempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM attempts
		WHERE tenant_id = $1 AND student_id = $2 AND subject_id = $3
		  AND status = 'IN_PROGRESS'
	`

	row := r.conn.QuerierFrom(ctx).QueryRow(ctx, query,
		tenantID.String(), studentID.String(), subjectID.String())
	return scanAttempt(row)
}

// NextAttemptNumber returns the next sequential attempt number for a
// (student, subject) pair.
func (r *AttemptRepository) NextAttemptNumber(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, subjectID shared.SubjectID) (attempt.AttemptNumber, error) {
	query := `
		SELECT COALESCE(MAX(attempt_number), 0) + 1
		FROM attempts
		WHERE tenant_id = $1 AND student_id = $2 AND subject_id = $3
	`

	var next int
	err := r.conn.QuerierFrom(ctx).QueryRow(ctx, query,
		tenantID.String(), studentID.String(), subjectID.String()).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to get next attempt number: %w", err)
	}

	return attempt.AttemptNumber(next), nil
}

// ListByStudent returns attempts for a student, most recent first.
func (r *AttemptRepository) ListByStudent(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, limit int) ([]*attempt.Attempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM attempts
		WHERE tenant_id = $1 AND student_id = $2
		ORDER BY started_at DESC
		LIMIT $3
	`

	rows, err := r.conn.QuerierFrom(ctx).Query(ctx, query,
		tenantID.String(), studentID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	return collectAttempts(rows)
}

// ListStale returns open attempts with no activity past the threshold.
// Scans across tenants for the auto-abandon sweep.
func (r *AttemptRepository) ListStale(ctx context.Context, threshold time.Duration, limit int) ([]*attempt.Attempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM attempts
		WHERE status = 'IN_PROGRESS' AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
	`

	cutoff := time.Now().UTC().Add(-threshold)
	rows, err := r.conn.QuerierFrom(ctx).Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale attempts: %w", err)
	}
	defer rows.Close()

	return collectAttempts(rows)
}

// CountCompletedInWindow returns how many attempts the student completed
// inside [from, to).
func (r *AttemptRepository) CountCompletedInWindow(ctx context.Context, tenantID shared.TenantID, studentID shared.StudentID, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM attempts
		WHERE tenant_id = $1 AND student_id = $2
		  AND status = 'COMPLETED'
		  AND finished_at >= $3 AND finished_at < $4
	`

	var count int
	err := r.conn.QuerierFrom(ctx).QueryRow(ctx, query,
		tenantID.String(), studentID.String(), from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed attempts: %w", err)
	}

	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Row Mapping
// ─────────────────────────────────────────────────────────────────────────────

// JSONB row models. The domain structs stay free of serialization tags;
// these mirrors define the stored shape explicitly.

type itemRow struct {
	ID                string   `json:"id"`
	Type              string   `json:"type"`
	Categories        []string `json:"categories"`
	CorrectChoice     int      `json:"correct_choice,omitempty"`
	CorrectSelections []int    `json:"correct_selections,omitempty"`
	AcceptedAnswers   []string `json:"accepted_answers,omitempty"`
	NumericAnswer     float64  `json:"numeric_answer,omitempty"`
	ExpectedTimeMs    int      `json:"expected_time_ms,omitempty"`
}

type itemSetRow struct {
	SubjectID      string    `json:"subject_id"`
	CatalogVersion int       `json:"catalog_version"`
	Items          []itemRow `json:"items"`
}

type answerRow struct {
	ItemID     string  `json:"item_id"`
	Type       string  `json:"type"`
	Choice     int     `json:"choice,omitempty"`
	Selections []int   `json:"selections,omitempty"`
	Text       string  `json:"text,omitempty"`
	Numeric    float64 `json:"numeric,omitempty"`
}

type telemetryRow struct {
	ItemID      string    `json:"item_id"`
	TimeSpentMs int       `json:"time_spent_ms"`
	HintsUsed   int       `json:"hints_used"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type progressRow struct {
	Answers    map[string]answerRow `json:"answers,omitempty"`
	Telemetry  []telemetryRow       `json:"telemetry,omitempty"`
	TotalHints int                  `json:"total_hints,omitempty"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

type resultRow struct {
	CorrectCount     int                `json:"correct_count"`
	TotalCount       int                `json:"total_count"`
	Accuracy         float64            `json:"accuracy"`
	NormalizedScores map[string]float64 `json:"normalized_scores"`
	XPAwarded        int                `json:"xp_awarded"`
	TimeSpentMs      int                `json:"time_spent_ms"`
	HintsUsed        int                `json:"hints_used"`
	ComputedAt       time.Time          `json:"computed_at"`
}

func marshalAttemptJSON(a *attempt.Attempt) (itemSet, progress, result []byte, err error) {
	itemSet, err = json.Marshal(itemSetToRow(a.ItemSet))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal item set: %w", err)
	}

	progress, err = json.Marshal(progressToRow(a.Progress))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal progress: %w", err)
	}

	if a.Result != nil {
		result, err = json.Marshal(resultToRow(*a.Result))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal result: %w", err)
		}
	}

	return itemSet, progress, result, nil
}

func itemSetToRow(set attempt.ItemSet) itemSetRow {
	row := itemSetRow{
		SubjectID:      set.SubjectID.String(),
		CatalogVersion: set.CatalogVersion,
		Items:          make([]itemRow, 0, len(set.Items)),
	}
	for _, it := range set.Items {
		cats := make([]string, 0, len(it.Categories))
		for _, c := range it.Categories {
			cats = append(cats, string(c))
		}
		row.Items = append(row.Items, itemRow{
			ID:                it.ID,
			Type:              string(it.Type),
			Categories:        cats,
			CorrectChoice:     it.CorrectChoice,
			CorrectSelections: it.CorrectSelections,
			AcceptedAnswers:   it.AcceptedAnswers,
			NumericAnswer:     it.NumericAnswer,
			ExpectedTimeMs:    it.ExpectedTimeMs,
		})
	}
	return row
}

func itemSetFromRow(row itemSetRow) attempt.ItemSet {
	set := attempt.ItemSet{
		SubjectID:      shared.SubjectID(row.SubjectID),
		CatalogVersion: row.CatalogVersion,
		Items:          make([]attempt.Item, 0, len(row.Items)),
	}
	for _, it := range row.Items {
		cats := make([]shared.SkillCategory, 0, len(it.Categories))
		for _, c := range it.Categories {
			cats = append(cats, shared.SkillCategory(c))
		}
		set.Items = append(set.Items, attempt.Item{
			ID:                it.ID,
			Type:              attempt.ItemType(it.Type),
			Categories:        cats,
			CorrectChoice:     it.CorrectChoice,
			CorrectSelections: it.CorrectSelections,
			AcceptedAnswers:   it.AcceptedAnswers,
			NumericAnswer:     it.NumericAnswer,
			ExpectedTimeMs:    it.ExpectedTimeMs,
		})
	}
	return set
}

func progressToRow(p attempt.ProgressState) progressRow {
	row := progressRow{
		TotalHints: p.TotalHints,
		UpdatedAt:  p.UpdatedAt,
	}
	if len(p.Answers) > 0 {
		row.Answers = make(map[string]answerRow, len(p.Answers))
		for id, a := range p.Answers {
			row.Answers[id] = answerToRow(a)
		}
	}
	for _, e := range p.Telemetry {
		row.Telemetry = append(row.Telemetry, telemetryRow(e))
	}
	return row
}

func progressFromRow(row progressRow) attempt.ProgressState {
	p := attempt.NewProgressState()
	p.TotalHints = row.TotalHints
	p.UpdatedAt = row.UpdatedAt
	for id, a := range row.Answers {
		p.Answers[id] = answerFromRow(a)
	}
	for _, e := range row.Telemetry {
		p.Telemetry = append(p.Telemetry, attempt.TelemetryEvent(e))
	}
	return p
}

func answerToRow(a attempt.Answer) answerRow {
	return answerRow{
		ItemID:     a.ItemID,
		Type:       string(a.Type),
		Choice:     a.Choice,
		Selections: a.Selections,
		Text:       a.Text,
		Numeric:    a.Numeric,
	}
}

func answerFromRow(row answerRow) attempt.Answer {
	return attempt.Answer{
		ItemID:     row.ItemID,
		Type:       attempt.ItemType(row.Type),
		Choice:     row.Choice,
		Selections: row.Selections,
		Text:       row.Text,
		Numeric:    row.Numeric,
	}
}

func resultToRow(res attempt.ScoringResult) resultRow {
	scores := make(map[string]float64, len(res.NormalizedScores))
	for cat, s := range res.NormalizedScores {
		scores[string(cat)] = s
	}
	return resultRow{
		CorrectCount:     res.CorrectCount,
		TotalCount:       res.TotalCount,
		Accuracy:         res.Accuracy,
		NormalizedScores: scores,
		XPAwarded:        res.XPAwarded,
		TimeSpentMs:      res.TimeSpentMs,
		HintsUsed:        res.HintsUsed,
		ComputedAt:       res.ComputedAt,
	}
}

func resultFromRow(row resultRow) attempt.ScoringResult {
	scores := make(map[shared.SkillCategory]float64, len(row.NormalizedScores))
	for cat, s := range row.NormalizedScores {
		scores[shared.SkillCategory(cat)] = s
	}
	return attempt.ScoringResult{
		CorrectCount:     row.CorrectCount,
		TotalCount:       row.TotalCount,
		Accuracy:         row.Accuracy,
		NormalizedScores: scores,
		XPAwarded:        row.XPAwarded,
		TimeSpentMs:      row.TimeSpentMs,
		HintsUsed:        row.HintsUsed,
		ComputedAt:       row.ComputedAt,
	}
}

func nullableReason(reason attempt.AbandonReason) *string {
	if reason == "" {
		return nil
	}
	s := string(reason)
	return &s
}

func scanAttempt(row pgx.Row) (*attempt.Attempt, error) {
	var (
		a               attempt.Attempt
		id              string
		tenantID        string
		studentID       string
		subjectID       string
		kind            string
		number          int
		status          string
		abandonedReason *string
		itemSetJSON     []byte
		progressJSON    []byte
		resultJSON      []byte
	)

	err := row.Scan(
		&id, &tenantID, &studentID, &subjectID, &kind, &number,
		&status, &abandonedReason, &itemSetJSON, &progressJSON, &resultJSON,
		&a.StartedAt, &a.UpdatedAt, &a.FinishedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to scan attempt: %w", err)
	}

	a.ID = attempt.AttemptID(id)
	a.TenantID = shared.TenantID(tenantID)
	a.StudentID = shared.StudentID(studentID)
	a.SubjectID = shared.SubjectID(subjectID)
	a.Kind = shared.SubjectKind(kind)
	a.Number = attempt.AttemptNumber(number)
	a.Status = attempt.Status(status)
	if abandonedReason != nil {
		a.AbandonedReason = attempt.AbandonReason(*abandonedReason)
	}

	var setRow itemSetRow
	if err := json.Unmarshal(itemSetJSON, &setRow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item set: %w", err)
	}
	a.ItemSet = itemSetFromRow(setRow)

	var progRow progressRow
	if err := json.Unmarshal(progressJSON, &progRow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	a.Progress = progressFromRow(progRow)

	if resultJSON != nil {
		var resRow resultRow
		if err := json.Unmarshal(resultJSON, &resRow); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		res := resultFromRow(resRow)
		a.Result = &res
	}

	return &a, nil
}

func collectAttempts(rows pgx.Rows) ([]*attempt.Attempt, error) {
	var attempts []*attempt.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
