package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const runColumns = `id, document_id, triggered_by, status, total_segments, completed_segments, failed_segments,
       error_message, error_details, learning_mode, run_metadata, created_at, started_at, completed_at`

// Create inserts a pending run. A unique violation on the active-run index
// maps to ErrRunActive.
func (r *PGRepo) Create(ctx context.Context, run Run) error {
	const query = `
INSERT INTO analysis_runs (
	id, document_id, triggered_by, status, learning_mode, run_metadata, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	metadata, err := marshalJSONB(run.RunMetadata)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		run.ID,
		run.DocumentID,
		nullableString(run.TriggeredBy),
		run.Status,
		run.LearningMode,
		metadata,
		run.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrRunActive
		}
		return err
	}
	return nil
}

// GetByID returns a run by ID.
func (r *PGRepo) GetByID(ctx context.Context, runID string) (Run, error) {
	const query = `
SELECT ` + runColumns + `
FROM analysis_runs
WHERE id = $1
LIMIT 1`
	run, err := scanRun(r.DB.QueryRowContext(ctx, query, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, err
	}
	return run, nil
}

// ActiveForDocument returns the document's pending or running run, or nil.
func (r *PGRepo) ActiveForDocument(ctx context.Context, documentID string) (*Run, error) {
	const query = `
SELECT ` + runColumns + `
FROM analysis_runs
WHERE document_id = $1 AND status IN ('pending', 'running')
LIMIT 1`
	run, err := scanRun(r.DB.QueryRowContext(ctx, query, documentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// ListRecentByDocument lists a document's runs, newest first.
func (r *PGRepo) ListRecentByDocument(ctx context.Context, documentID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	const query = `
SELECT ` + runColumns + `
FROM analysis_runs
WHERE document_id = $1
ORDER BY created_at DESC
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, documentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// MarkRunning transitions pending -> running.
func (r *PGRepo) MarkRunning(ctx context.Context, runID string, startedAt time.Time) error {
	const query = `
UPDATE analysis_runs
SET status = 'running',
    started_at = COALESCE(started_at, $1)
WHERE id = $2 AND status = 'pending'`
	res, err := r.DB.ExecContext(ctx, query, startedAt, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Finish transitions into a terminal status. A run that is already terminal
// is left untouched: the status filter keeps a redelivered job from flipping
// completed to failed.
func (r *PGRepo) Finish(ctx context.Context, runID, status string, errorMessage *string, errorDetails map[string]any, completedAt time.Time) error {
	const query = `
UPDATE analysis_runs
SET status = $1,
    error_message = COALESCE($2::text, error_message),
    error_details = COALESCE($3::jsonb, error_details),
    completed_at = COALESCE(completed_at, $4)
WHERE id = $5 AND status IN ('pending', 'running')`

	var details any
	if errorDetails != nil {
		payload, err := json.Marshal(errorDetails)
		if err != nil {
			return err
		}
		details = payload
	}
	res, err := r.DB.ExecContext(ctx, query, status, errorMessage, details, completedAt, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var current string
		err := r.DB.QueryRowContext(ctx, `SELECT status FROM analysis_runs WHERE id = $1`, runID).Scan(&current)
		if err == nil && IsTerminal(current) {
			return ErrRunTerminal
		}
		return ErrNotFound
	}
	return nil
}

// SetTotalSegments records the segment count discovered by segmentation.
func (r *PGRepo) SetTotalSegments(ctx context.Context, runID string, total int) error {
	const query = `
UPDATE analysis_runs
SET total_segments = $1
WHERE id = $2`
	res, err := r.DB.ExecContext(ctx, query, total, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCounters overwrites the segment counters.
func (r *PGRepo) UpdateCounters(ctx context.Context, runID string, total *int, completed, failed int) error {
	const query = `
UPDATE analysis_runs
SET total_segments = COALESCE($1::integer, total_segments),
    completed_segments = $2,
    failed_segments = $3
WHERE id = $4`
	res, err := r.DB.ExecContext(ctx, query, total, completed, failed, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTerminalOlderThan removes terminal runs created before cutoff.
func (r *PGRepo) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	const query = `
DELETE FROM analysis_runs
WHERE status IN ('completed', 'failed', 'cancelled') AND created_at < $1`
	res, err := r.DB.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	deleted, _ := res.RowsAffected()
	return int(deleted), nil
}

// DeleteByDocument removes every run for the document. The foreign key does
// the same on delete; calling it anyway keeps cascade wiring uniform.
func (r *PGRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	const query = `DELETE FROM analysis_runs WHERE document_id = $1`
	_, err := r.DB.ExecContext(ctx, query, documentID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var triggeredBy sql.NullString
	var total sql.NullInt64
	var errorMessage sql.NullString
	var errorDetails sql.NullString
	var metadata sql.NullString
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.DocumentID,
		&triggeredBy,
		&run.Status,
		&total,
		&run.CompletedSegments,
		&run.FailedSegments,
		&errorMessage,
		&errorDetails,
		&run.LearningMode,
		&metadata,
		&run.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return Run{}, err
	}
	if triggeredBy.Valid {
		run.TriggeredBy = triggeredBy.String
	}
	if total.Valid {
		n := int(total.Int64)
		run.TotalSegments = &n
	}
	if errorMessage.Valid {
		run.ErrorMessage = &errorMessage.String
	}
	if errorDetails.Valid {
		_ = json.Unmarshal([]byte(errorDetails.String), &run.ErrorDetails)
	}
	if metadata.Valid {
		_ = json.Unmarshal([]byte(metadata.String), &run.RunMetadata)
	}
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

func marshalJSONB(value map[string]any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

var _ Repo = (*PGRepo)(nil)
