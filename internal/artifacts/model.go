package artifacts

import (
	"strings"
	"time"
)

// Analysis statuses for a registered artifact.
const (
	AnalysisPending    = "pending"
	AnalysisProcessing = "processing"
	AnalysisCompleted  = "completed"
	AnalysisFailed     = "failed"
)

// ArtifactTypes is the accepted vocabulary for registered code references.
var ArtifactTypes = []string{"Repository", "File", "Class", "Function"}

// Artifact is a registered reference to code living elsewhere: a repository,
// a single file, or a named class or function. Location points at fetchable
// source text.
type Artifact struct {
	ID                 string         `json:"id"`
	OwnerID            string         `json:"owner_id"`
	Name               string         `json:"name"`
	ArtifactType       string         `json:"artifact_type"`
	Location           string         `json:"location"`
	Version            string         `json:"version,omitempty"`
	Summary            string         `json:"summary,omitempty"`
	StructuredAnalysis map[string]any `json:"structured_analysis,omitempty"`
	AnalysisStatus     string         `json:"analysis_status"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// CanonicalType maps a case-insensitive type name to its canonical form.
func CanonicalType(t string) (string, bool) {
	for _, known := range ArtifactTypes {
		if strings.EqualFold(known, t) {
			return known, true
		}
	}
	return "", false
}
