package validation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const mismatchColumns = `id, owner_id, document_id, artifact_id, mismatch_type, description,
severity, confidence, details, status, user_notes, detected_at, updated_at`

// CreateBatch inserts findings inside one transaction.
func (r *PGRepo) CreateBatch(ctx context.Context, mismatches []Mismatch) error {
	if len(mismatches) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const query = `
INSERT INTO mismatches (
	id, owner_id, document_id, artifact_id, mismatch_type, description,
	severity, confidence, details, status, detected_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`

	for _, m := range mismatches {
		details, err := json.Marshal(m.Details)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query,
			m.ID,
			m.OwnerID,
			m.DocumentID,
			m.ArtifactID,
			m.MismatchType,
			m.Description,
			m.Severity,
			m.Confidence,
			details,
			m.Status,
			m.DetectedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetByID fetches one mismatch.
func (r *PGRepo) GetByID(ctx context.Context, mismatchID string) (Mismatch, error) {
	const query = `
SELECT ` + mismatchColumns + `
FROM mismatches
WHERE id = $1
LIMIT 1`
	return scanMismatch(r.DB.QueryRowContext(ctx, query, mismatchID))
}

// ListByDocument lists a document's mismatches, newest first.
func (r *PGRepo) ListByDocument(ctx context.Context, documentID string, limit, offset int) ([]Mismatch, error) {
	const query = `
SELECT ` + mismatchColumns + `
FROM mismatches
WHERE document_id = $1
ORDER BY detected_at DESC, id
LIMIT $2 OFFSET $3`
	return r.list(ctx, query, documentID, clampLimit(limit), clampOffset(offset))
}

// ListByOwner lists every mismatch owned by a user, newest first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Mismatch, error) {
	const query = `
SELECT ` + mismatchColumns + `
FROM mismatches
WHERE owner_id = $1
ORDER BY detected_at DESC, id
LIMIT $2 OFFSET $3`
	return r.list(ctx, query, ownerID, clampLimit(limit), clampOffset(offset))
}

// DeleteByPair clears the findings for one document/artifact pairing.
func (r *PGRepo) DeleteByPair(ctx context.Context, documentID, artifactID string) error {
	const query = `DELETE FROM mismatches WHERE document_id = $1 AND artifact_id = $2`
	_, err := r.DB.ExecContext(ctx, query, documentID, artifactID)
	return err
}

// UpdateFeedback patches status and user_notes; nil leaves a field as is.
func (r *PGRepo) UpdateFeedback(ctx context.Context, mismatchID string, status, userNotes *string) error {
	const query = `
UPDATE mismatches
SET status = COALESCE($1, status),
    user_notes = COALESCE($2, user_notes),
    updated_at = $3
WHERE id = $4`

	var statusArg any
	if status != nil {
		statusArg = *status
	}
	var notesArg any
	if userNotes != nil {
		notesArg = *userNotes
	}
	res, err := r.DB.ExecContext(ctx, query, statusArg, notesArg, time.Now().UTC(), mismatchID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByDocument drops every mismatch for a document.
func (r *PGRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	const query = `DELETE FROM mismatches WHERE document_id = $1`
	_, err := r.DB.ExecContext(ctx, query, documentID)
	return err
}

// DeleteByArtifact drops every mismatch for an artifact.
func (r *PGRepo) DeleteByArtifact(ctx context.Context, artifactID string) error {
	const query = `DELETE FROM mismatches WHERE artifact_id = $1`
	_, err := r.DB.ExecContext(ctx, query, artifactID)
	return err
}

func (r *PGRepo) list(ctx context.Context, query string, args ...any) ([]Mismatch, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Mismatch
	for rows.Next() {
		m, err := scanMismatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMismatch(row rowScanner) (Mismatch, error) {
	var m Mismatch
	var details []byte
	var userNotes sql.NullString

	err := row.Scan(
		&m.ID,
		&m.OwnerID,
		&m.DocumentID,
		&m.ArtifactID,
		&m.MismatchType,
		&m.Description,
		&m.Severity,
		&m.Confidence,
		&details,
		&m.Status,
		&userNotes,
		&m.DetectedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Mismatch{}, ErrNotFound
		}
		return Mismatch{}, err
	}

	if userNotes.Valid {
		m.UserNotes = userNotes.String
	}
	if len(details) > 0 {
		// Malformed details read as empty.
		_ = json.Unmarshal(details, &m.Details)
	}
	return m, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

var _ Repo = (*PGRepo)(nil)
