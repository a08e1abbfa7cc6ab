package artifacts

import (
	_ "embed"
	"fmt"
)

//go:embed prompts/code_analysis_v1.txt
var codeAnalysisPromptV1 string

// PromptTemplate returns the prompt template for artifact analysis and
// whether the name was recognized.
func PromptTemplate(name string) (string, bool) {
	if name == "code_analysis_v1" {
		return codeAnalysisPromptV1, true
	}
	return "", false
}

// codeAnalysisResponse is the oracle payload for one analyzed artifact.
type codeAnalysisResponse struct {
	Summary            string         `json:"summary"`
	StructuredAnalysis map[string]any `json:"structured_analysis"`
}

func buildCodeAnalysisPrompt(code string) string {
	return fmt.Sprintf("%s\n\nCODE TO ANALYZE:\n```\n%s\n```", codeAnalysisPromptV1, code)
}
