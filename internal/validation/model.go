package validation

import "time"

// Mismatch types. Scans run a fixed subset; the rest of the taxonomy stays
// valid for rows written by earlier versions.
const (
	TypeAPIEndpointMissing           = "API_Endpoint_Missing"
	TypeParameterMismatch            = "Parameter_Mismatch"
	TypeBusinessLogicMissing         = "Business_Logic_Missing"
	TypeDataFlowInconsistency        = "Data_Flow_Inconsistency"
	TypeSecurityRequirementMissing   = "Security_Requirement_Missing"
	TypePerformanceConstraintMissing = "Performance_Constraint_Missing"
	TypeConsistencyCheck             = "Consistency_Check"
)

// Mismatch statuses a user can move a finding through.
const (
	StatusOpen         = "open"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
	StatusDismissed    = "dismissed"
)

// AllowedStatuses lists the statuses accepted on feedback updates.
var AllowedStatuses = []string{StatusOpen, StatusAcknowledged, StatusResolved, StatusDismissed}

// scanChecks is the check set every pairing runs, one oracle call each.
var scanChecks = []string{TypeAPIEndpointMissing, TypeBusinessLogicMissing, TypeConsistencyCheck}

// Details carries the evidence behind a finding.
type Details struct {
	Expected         string `json:"expected,omitempty"`
	Actual           string `json:"actual,omitempty"`
	EvidenceDocument string `json:"evidence_document,omitempty"`
	EvidenceCode     string `json:"evidence_code,omitempty"`
	SuggestedAction  string `json:"suggested_action,omitempty"`
}

// Mismatch is one typed, evidenced disagreement between what a document
// states and what the linked artifact's code analysis shows. Re-scanning a
// pairing replaces its rows wholesale.
type Mismatch struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	DocumentID   string    `json:"document_id"`
	ArtifactID   string    `json:"artifact_id"`
	MismatchType string    `json:"mismatch_type"`
	Description  string    `json:"description"`
	Severity     string    `json:"severity"`
	Confidence   string    `json:"confidence"`
	Details      Details   `json:"details"`
	Status       string    `json:"status"`
	UserNotes    string    `json:"user_notes,omitempty"`
	DetectedAt   time.Time `json:"detected_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Pairing outcome statuses reported by a scan.
const (
	PairingSuccess = "success"
	PairingSkipped = "skipped"
	PairingError   = "error"
)

// PairingOutcome is the per-pairing result of one scan.
type PairingOutcome struct {
	DocumentID string `json:"document_id"`
	ArtifactID string `json:"artifact_id"`
	Status     string `json:"status"`
	Findings   int    `json:"findings"`
	Error      string `json:"error,omitempty"`
}

// ScanReport aggregates pairing outcomes for one scan.
type ScanReport struct {
	Pairings []PairingOutcome `json:"pairings"`
}

// Counts tallies the report by outcome status.
func (r ScanReport) Counts() (success, skipped, failed, findings int) {
	for _, p := range r.Pairings {
		switch p.Status {
		case PairingSuccess:
			success++
		case PairingSkipped:
			skipped++
		case PairingError:
			failed++
		}
		findings += p.Findings
	}
	return success, skipped, failed, findings
}
