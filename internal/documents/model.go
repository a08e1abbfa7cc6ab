package documents

import "time"

// Document statuses. Only the analysis pipeline moves a document past
// "uploaded"; the validation engine never touches these fields.
const (
	StatusUploaded       = "uploaded"
	StatusAnalyzing      = "analyzing"
	StatusAnalyzed       = "analyzed"
	StatusAnalysisFailed = "analysis_failed"
)

// ContentTypes is the fixed vocabulary for composition classification and
// segment typing.
var ContentTypes = []string{
	"BRD",
	"SRS",
	"API_DOCS",
	"USER_STORIES",
	"TECHNICAL_SPECS",
	"PROCESS_FLOWS",
	"DATA_MODELS",
	"SECURITY_REQUIREMENTS",
	"PERFORMANCE_REQUIREMENTS",
	"UI_UX_SPECS",
	"UNKNOWN",
}

// IsContentType reports whether t belongs to the classification vocabulary.
func IsContentType(t string) bool {
	for _, known := range ContentTypes {
		if known == t {
			return true
		}
	}
	return false
}

// Document is an uploaded specification document owned by a user. RawText is
// the extracted text and the source of truth for all segment offsets.
type Document struct {
	ID                    string         `json:"id"`
	OwnerID               string         `json:"owner_id"`
	Filename              string         `json:"filename"`
	DocumentType          string         `json:"document_type"`
	Version               string         `json:"version"`
	StorageKey            string         `json:"-"`
	ContentType           string         `json:"content_type,omitempty"`
	SizeBytes             int64          `json:"size_bytes"`
	RawText               string         `json:"-"`
	Composition           map[string]int `json:"composition,omitempty"`
	CompositionConfidence string         `json:"composition_confidence,omitempty"`
	Status                string         `json:"status"`
	Progress              int            `json:"progress"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}
