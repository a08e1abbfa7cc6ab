package segments

import (
	"context"
	"database/sql"
	"encoding/json"
)

// ResultsPGRepo implements ResultsRepo using Postgres.
type ResultsPGRepo struct {
	DB *sql.DB
}

const resultColumns = `id, segment_id, document_id, status, structured_data, error_message, processing_time_ms, created_at`

// Create inserts an extraction result.
func (r *ResultsPGRepo) Create(ctx context.Context, result Result) error {
	const query = `
INSERT INTO analysis_results (
	id, segment_id, document_id, status, structured_data, error_message, processing_time_ms, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var data any
	if len(result.StructuredData) > 0 {
		data = []byte(result.StructuredData)
	}
	_, err := r.DB.ExecContext(ctx, query,
		result.ID,
		result.SegmentID,
		result.DocumentID,
		result.Status,
		data,
		nullableString(result.ErrorMessage),
		result.ProcessingTimeMs,
		result.CreatedAt,
	)
	return err
}

// ListByDocument returns all results for a document, oldest first.
func (r *ResultsPGRepo) ListByDocument(ctx context.Context, documentID string) ([]Result, error) {
	const query = `
SELECT ` + resultColumns + `
FROM analysis_results
WHERE document_id = $1
ORDER BY created_at ASC`
	return r.list(ctx, query, documentID)
}

// ListSuccessfulByDocument returns only successful extractions.
func (r *ResultsPGRepo) ListSuccessfulByDocument(ctx context.Context, documentID string) ([]Result, error) {
	const query = `
SELECT ` + resultColumns + `
FROM analysis_results
WHERE document_id = $1 AND status = 'success'
ORDER BY created_at ASC`
	return r.list(ctx, query, documentID)
}

// HasSuccessfulForDocument reports whether any successful extraction exists.
func (r *ResultsPGRepo) HasSuccessfulForDocument(ctx context.Context, documentID string) (bool, error) {
	const query = `
SELECT EXISTS (
	SELECT 1 FROM analysis_results WHERE document_id = $1 AND status = 'success'
)`
	var exists bool
	if err := r.DB.QueryRowContext(ctx, query, documentID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// DeleteBySegment removes a segment's result, if any.
func (r *ResultsPGRepo) DeleteBySegment(ctx context.Context, segmentID string) error {
	const query = `DELETE FROM analysis_results WHERE segment_id = $1`
	_, err := r.DB.ExecContext(ctx, query, segmentID)
	return err
}

// DeleteByDocument removes every result for a document.
func (r *ResultsPGRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	const query = `DELETE FROM analysis_results WHERE document_id = $1`
	_, err := r.DB.ExecContext(ctx, query, documentID)
	return err
}

func (r *ResultsPGRepo) list(ctx context.Context, query string, args ...any) ([]Result, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var res Result
		var data sql.NullString
		var errMsg sql.NullString
		var processingMs sql.NullInt64
		if err := rows.Scan(
			&res.ID,
			&res.SegmentID,
			&res.DocumentID,
			&res.Status,
			&data,
			&errMsg,
			&processingMs,
			&res.CreatedAt,
		); err != nil {
			return nil, err
		}
		if data.Valid {
			res.StructuredData = json.RawMessage(data.String)
		}
		if errMsg.Valid {
			res.ErrorMessage = errMsg.String
		}
		if processingMs.Valid {
			res.ProcessingTimeMs = processingMs.Int64
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

var _ ResultsRepo = (*ResultsPGRepo)(nil)
