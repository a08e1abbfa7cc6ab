package links

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a link row. A duplicate pair trips the unique index.
func (r *PGRepo) Create(ctx context.Context, link Link) error {
	const query = `
INSERT INTO document_artifact_links (id, document_id, artifact_id, created_at)
VALUES ($1, $2, $3, $4)`

	_, err := r.DB.ExecContext(ctx, query, link.ID, link.DocumentID, link.ArtifactID, link.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrAlreadyLinked
		}
		return err
	}
	return nil
}

// DeleteByPair removes the link for one document/artifact pair.
func (r *PGRepo) DeleteByPair(ctx context.Context, documentID, artifactID string) error {
	const query = `DELETE FROM document_artifact_links WHERE document_id = $1 AND artifact_id = $2`
	res, err := r.DB.ExecContext(ctx, query, documentID, artifactID)
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

// ListArtifactIDsByDocument returns artifact ids linked to a document,
// oldest link first.
func (r *PGRepo) ListArtifactIDsByDocument(ctx context.Context, documentID string) ([]string, error) {
	const query = `
SELECT artifact_id
FROM document_artifact_links
WHERE document_id = $1
ORDER BY created_at ASC`

	rows, err := r.DB.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteByDocument drops every link for a document. The foreign key does the
// same on delete; calling it anyway keeps cascade wiring uniform.
func (r *PGRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	const query = `DELETE FROM document_artifact_links WHERE document_id = $1`
	_, err := r.DB.ExecContext(ctx, query, documentID)
	return err
}

// DeleteByArtifact drops every link for an artifact.
func (r *PGRepo) DeleteByArtifact(ctx context.Context, artifactID string) error {
	const query = `DELETE FROM document_artifact_links WHERE artifact_id = $1`
	_, err := r.DB.ExecContext(ctx, query, artifactID)
	return err
}

var _ Repo = (*PGRepo)(nil)
