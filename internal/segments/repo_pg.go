package segments

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const segmentColumns = `id, document_id, analysis_run_id, segment_type, start_char_index, end_char_index,
       content_preview, confidence, status, retry_count, last_error, created_at, updated_at`

// CreateBatch inserts segments inside one transaction.
func (r *PGRepo) CreateBatch(ctx context.Context, segs []Segment) error {
	if len(segs) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const query = `
INSERT INTO document_segments (
	id, document_id, analysis_run_id, segment_type, start_char_index, end_char_index,
	content_preview, confidence, status, retry_count, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`

	for _, seg := range segs {
		if _, err := tx.ExecContext(ctx, query,
			seg.ID,
			seg.DocumentID,
			nullableString(seg.AnalysisRunID),
			seg.SegmentType,
			seg.StartCharIndex,
			seg.EndCharIndex,
			nullableString(seg.ContentPreview),
			seg.Confidence,
			seg.Status,
			seg.RetryCount,
			seg.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetByID fetches one segment.
func (r *PGRepo) GetByID(ctx context.Context, segmentID string) (Segment, error) {
	const query = `
SELECT ` + segmentColumns + `
FROM document_segments
WHERE id = $1
LIMIT 1`
	seg, err := scanSegment(r.DB.QueryRowContext(ctx, query, segmentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Segment{}, ErrNotFound
		}
		return Segment{}, err
	}
	return seg, nil
}

// ListByDocument returns a document's segments in reading order.
func (r *PGRepo) ListByDocument(ctx context.Context, documentID string) ([]Segment, error) {
	const query = `
SELECT ` + segmentColumns + `
FROM document_segments
WHERE document_id = $1
ORDER BY start_char_index ASC`
	return r.list(ctx, query, documentID)
}

// ListByRun returns a run's segments in reading order.
func (r *PGRepo) ListByRun(ctx context.Context, runID string) ([]Segment, error) {
	const query = `
SELECT ` + segmentColumns + `
FROM document_segments
WHERE analysis_run_id = $1
ORDER BY start_char_index ASC`
	return r.list(ctx, query, runID)
}

// ListByRunAndStatus returns a run's segments filtered by status.
func (r *PGRepo) ListByRunAndStatus(ctx context.Context, runID, status string) ([]Segment, error) {
	const query = `
SELECT ` + segmentColumns + `
FROM document_segments
WHERE analysis_run_id = $1 AND status = $2
ORDER BY start_char_index ASC`
	return r.list(ctx, query, runID, status)
}

// UpdateStatus transitions a segment and replaces last_error.
func (r *PGRepo) UpdateStatus(ctx context.Context, segmentID, status string, lastError *string) error {
	const query = `
UPDATE document_segments
SET status = $1,
    last_error = $2,
    updated_at = now()
WHERE id = $3`
	res, err := r.DB.ExecContext(ctx, query, status, lastError, segmentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetForRetry moves a failed segment back to pending when retries remain.
func (r *PGRepo) ResetForRetry(ctx context.Context, segmentID string, maxRetries int) error {
	const query = `
UPDATE document_segments
SET status = 'pending',
    retry_count = retry_count + 1,
    last_error = NULL,
    updated_at = now()
WHERE id = $1 AND status = 'failed' AND retry_count < $2`
	res, err := r.DB.ExecContext(ctx, query, segmentID, maxRetries)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRetryExhausted
	}
	return nil
}

// StatusCountsByRun returns how many of the run's segments sit in each status.
func (r *PGRepo) StatusCountsByRun(ctx context.Context, runID string) (map[string]int, error) {
	const query = `
SELECT status, COUNT(*)
FROM document_segments
WHERE analysis_run_id = $1
GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// DeleteByDocument removes every segment of a document. Results cascade.
func (r *PGRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	const query = `DELETE FROM document_segments WHERE document_id = $1`
	_, err := r.DB.ExecContext(ctx, query, documentID)
	return err
}

func (r *PGRepo) list(ctx context.Context, query string, args ...any) ([]Segment, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSegment(row rowScanner) (Segment, error) {
	var seg Segment
	var runID sql.NullString
	var preview sql.NullString
	var confidence sql.NullFloat64
	var lastError sql.NullString
	err := row.Scan(
		&seg.ID,
		&seg.DocumentID,
		&runID,
		&seg.SegmentType,
		&seg.StartCharIndex,
		&seg.EndCharIndex,
		&preview,
		&confidence,
		&seg.Status,
		&seg.RetryCount,
		&lastError,
		&seg.CreatedAt,
		&seg.UpdatedAt,
	)
	if err != nil {
		return Segment{}, err
	}
	if runID.Valid {
		seg.AnalysisRunID = runID.String
	}
	if preview.Valid {
		seg.ContentPreview = preview.String
	}
	if confidence.Valid {
		seg.Confidence = confidence.Float64
	}
	if lastError.Valid {
		seg.LastError = lastError.String
	}
	return seg, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

var _ Repo = (*PGRepo)(nil)
