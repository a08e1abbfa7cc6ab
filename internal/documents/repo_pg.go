package documents

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

const documentColumns = `id, owner_id, filename, document_type, version, storage_key, content_type,
size_bytes, raw_text, composition, composition_confidence, status, progress, created_at, updated_at`

// Create inserts a new document row.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (
    id, owner_id, filename, document_type, version, storage_key, content_type,
    size_bytes, raw_text, status, progress, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`

	version := doc.Version
	if version == "" {
		version = "1.0"
	}
	status := doc.Status
	if status == "" {
		status = StatusUploaded
	}

	_, err := r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.OwnerID,
		doc.Filename,
		doc.DocumentType,
		version,
		nullableString(doc.StorageKey),
		nullableString(doc.ContentType),
		doc.SizeBytes,
		nullableString(doc.RawText),
		status,
		doc.Progress,
		doc.CreatedAt,
	)
	return err
}

// GetByID fetches a document regardless of owner.
func (r *PGRepo) GetByID(ctx context.Context, documentID string) (Document, error) {
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE id = $1
LIMIT 1`
	return scanDocument(r.DB.QueryRowContext(ctx, query, documentID))
}

// GetForOwner fetches a document scoped to its owner.
func (r *PGRepo) GetForOwner(ctx context.Context, ownerID, documentID string) (Document, error) {
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE owner_id = $1 AND id = $2
LIMIT 1`
	return scanDocument(r.DB.QueryRowContext(ctx, query, ownerID, documentID))
}

// ListByOwner lists documents newest-first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Delete removes a document; dependent rows go with it via FK cascade.
func (r *PGRepo) Delete(ctx context.Context, ownerID, documentID string) error {
	const query = `DELETE FROM documents WHERE owner_id = $1 AND id = $2`
	res, err := r.DB.ExecContext(ctx, query, ownerID, documentID)
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

// UpdateComposition stores Pass-1 output.
func (r *PGRepo) UpdateComposition(ctx context.Context, documentID string, composition map[string]int, confidence string) error {
	const query = `
UPDATE documents
SET composition = $1, composition_confidence = $2, updated_at = $3
WHERE id = $4`

	payload, err := json.Marshal(composition)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, payload, nullableString(confidence), time.Now().UTC(), documentID)
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

// UpdateAnalysisState patches status and/or progress.
func (r *PGRepo) UpdateAnalysisState(ctx context.Context, documentID string, status *string, progress *int) error {
	const query = `
UPDATE documents
SET status = COALESCE($1, status),
    progress = COALESCE($2, progress),
    updated_at = $3
WHERE id = $4`

	var statusArg any
	if status != nil {
		statusArg = *status
	}
	var progressArg any
	if progress != nil {
		progressArg = *progress
	}
	res, err := r.DB.ExecContext(ctx, query, statusArg, progressArg, time.Now().UTC(), documentID)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var storageKey sql.NullString
	var contentType sql.NullString
	var rawText sql.NullString
	var composition []byte
	var confidence sql.NullString

	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Filename,
		&doc.DocumentType,
		&doc.Version,
		&storageKey,
		&contentType,
		&doc.SizeBytes,
		&rawText,
		&composition,
		&confidence,
		&doc.Status,
		&doc.Progress,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}

	if storageKey.Valid {
		doc.StorageKey = storageKey.String
	}
	if contentType.Valid {
		doc.ContentType = contentType.String
	}
	if rawText.Valid {
		doc.RawText = rawText.String
	}
	if len(composition) > 0 {
		parsed := map[string]int{}
		if err := json.Unmarshal(composition, &parsed); err == nil {
			doc.Composition = parsed
		}
	}
	if confidence.Valid {
		doc.CompositionConfidence = confidence.String
	}
	return doc, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

var _ Repo = (*PGRepo)(nil)
