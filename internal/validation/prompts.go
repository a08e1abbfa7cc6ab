package validation

import (
	_ "embed"
	"fmt"
)

//go:embed prompts/scan_v1.txt
var scanPromptV1 string

// PromptTemplate returns the prompt template for validation scans and
// whether the name was recognized.
func PromptTemplate(name string) (string, bool) {
	if name == "scan_v1" {
		return scanPromptV1, true
	}
	return "", false
}

// checkInstructions scopes one oracle call to a single validation area.
var checkInstructions = map[string]string{
	TypeAPIEndpointMissing:   "API ENDPOINTS: compare every endpoint, route, or callable operation the document promises against the functions and routes the code analysis reports. Flag documented operations with no counterpart in the code.",
	TypeBusinessLogicMissing: "BUSINESS LOGIC: compare the rules, calculations, and behavioral requirements the document states against the logic the code analysis describes. Flag required behavior the code does not implement.",
	TypeConsistencyCheck:     "GENERAL CONSISTENCY: look for clear contradictions between the two analyses, including naming, data shapes, and described behavior that cannot both be true.",
}

// finding is one entry of the oracle's response array.
type finding struct {
	MismatchType string  `json:"mismatch_type"`
	Description  string  `json:"description"`
	Severity     string  `json:"severity"`
	Confidence   string  `json:"confidence"`
	Details      Details `json:"details"`
}

func buildScanPrompt(checkType, documentType, documentJSON, codeJSON string, maxFindings int, severityThreshold string) string {
	instructions, ok := checkInstructions[checkType]
	if !ok {
		instructions = checkInstructions[TypeConsistencyCheck]
	}
	return fmt.Sprintf(scanPromptV1,
		instructions,
		checkType,
		maxFindings,
		severityThreshold,
		documentType,
		documentJSON,
		codeJSON,
	)
}
