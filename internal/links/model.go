package links

import "time"

// Link pairs a requirements document with a code artifact. Validation scans
// walk these pairs when building their pairings.
type Link struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ArtifactID string    `json:"artifact_id"`
	CreatedAt  time.Time `json:"created_at"`
}
