package artifacts

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

const artifactColumns = `id, owner_id, name, artifact_type, location, version, summary,
structured_analysis, analysis_status, created_at, updated_at`

// Create inserts a new artifact row.
func (r *PGRepo) Create(ctx context.Context, artifact Artifact) error {
	const query = `
INSERT INTO code_artifacts (
    id, owner_id, name, artifact_type, location, version, analysis_status, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`

	status := artifact.AnalysisStatus
	if status == "" {
		status = AnalysisPending
	}

	_, err := r.DB.ExecContext(
		ctx,
		query,
		artifact.ID,
		artifact.OwnerID,
		artifact.Name,
		artifact.ArtifactType,
		artifact.Location,
		nullableString(artifact.Version),
		status,
		artifact.CreatedAt,
	)
	return err
}

// GetByID fetches an artifact regardless of owner.
func (r *PGRepo) GetByID(ctx context.Context, artifactID string) (Artifact, error) {
	const query = `
SELECT ` + artifactColumns + `
FROM code_artifacts
WHERE id = $1
LIMIT 1`
	return scanArtifact(r.DB.QueryRowContext(ctx, query, artifactID))
}

// GetForOwner fetches an artifact scoped to its owner.
func (r *PGRepo) GetForOwner(ctx context.Context, ownerID, artifactID string) (Artifact, error) {
	const query = `
SELECT ` + artifactColumns + `
FROM code_artifacts
WHERE owner_id = $1 AND id = $2
LIMIT 1`
	return scanArtifact(r.DB.QueryRowContext(ctx, query, ownerID, artifactID))
}

// ListByOwner lists artifacts newest-first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Artifact, error) {
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
SELECT ` + artifactColumns + `
FROM code_artifacts
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, artifact)
	}
	return out, rows.Err()
}

// Delete removes an artifact; link rows go with it via FK cascade.
func (r *PGRepo) Delete(ctx context.Context, ownerID, artifactID string) error {
	const query = `DELETE FROM code_artifacts WHERE owner_id = $1 AND id = $2`
	res, err := r.DB.ExecContext(ctx, query, ownerID, artifactID)
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

// UpdateStatus moves the analysis status without touching results.
func (r *PGRepo) UpdateStatus(ctx context.Context, artifactID, status string) error {
	const query = `
UPDATE code_artifacts
SET analysis_status = $1, updated_at = $2
WHERE id = $3`
	res, err := r.DB.ExecContext(ctx, query, status, time.Now().UTC(), artifactID)
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

// UpdateAnalysis stores the analysis output together with its final status.
func (r *PGRepo) UpdateAnalysis(ctx context.Context, artifactID, summary string, structured map[string]any, status string) error {
	const query = `
UPDATE code_artifacts
SET summary = $1, structured_analysis = $2, analysis_status = $3, updated_at = $4
WHERE id = $5`

	payload, err := marshalJSONB(structured)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, nullableString(summary), payload, status, time.Now().UTC(), artifactID)
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

func scanArtifact(row rowScanner) (Artifact, error) {
	var artifact Artifact
	var version sql.NullString
	var summary sql.NullString
	var structured []byte

	err := row.Scan(
		&artifact.ID,
		&artifact.OwnerID,
		&artifact.Name,
		&artifact.ArtifactType,
		&artifact.Location,
		&version,
		&summary,
		&structured,
		&artifact.AnalysisStatus,
		&artifact.CreatedAt,
		&artifact.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Artifact{}, ErrNotFound
		}
		return Artifact{}, err
	}

	if version.Valid {
		artifact.Version = version.String
	}
	if summary.Valid {
		artifact.Summary = summary.String
	}
	if len(structured) > 0 {
		parsed := map[string]any{}
		if err := json.Unmarshal(structured, &parsed); err == nil {
			artifact.StructuredAnalysis = parsed
		}
	}
	return artifact, nil
}

func marshalJSONB(value map[string]any) (any, error) {
	if value == nil {
		return nil, nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

var _ Repo = (*PGRepo)(nil)
