package pipeline

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

var (
	//go:embed prompts/composition_v1.txt
	compositionPromptV1 string
	//go:embed prompts/segmentation_v1.txt
	segmentationPromptV1 string
	//go:embed prompts/extraction_v1.txt
	extractionPromptV1 string
)

// PromptTemplate returns the prompt template text for an analysis pass and
// whether the name was recognized.
func PromptTemplate(name string) (string, bool) {
	switch name {
	case "composition_v1":
		return compositionPromptV1, true
	case "segmentation_v1":
		return segmentationPromptV1, true
	case "extraction_v1":
		return extractionPromptV1, true
	default:
		return "", false
	}
}

// compositionResponse is the Pass-1 payload. Percentages are integers that
// the oracle is told to sum to 100; absent types count as zero downstream.
type compositionResponse struct {
	Composition map[string]int `json:"composition"`
	Confidence  string         `json:"confidence"`
	Reasoning   string         `json:"reasoning,omitempty"`
}

// segmentationResponse is the Pass-2 payload.
type segmentationResponse struct {
	Segments            []segmentCandidate `json:"segments"`
	TotalSegments       int                `json:"total_segments"`
	SegmentationQuality string             `json:"segmentation_quality"`
}

type segmentCandidate struct {
	SegmentType    string  `json:"segment_type"`
	StartCharIndex int     `json:"start_char_index"`
	EndCharIndex   int     `json:"end_char_index"`
	ContentPreview string  `json:"content_preview"`
	Confidence     float64 `json:"confidence"`
}

func buildCompositionPrompt(rawText string) string {
	return fmt.Sprintf("%s\n\nDOCUMENT TEXT TO ANALYZE:\n%s", compositionPromptV1, rawText)
}

func buildSegmentationPrompt(comp compositionResponse, rawText string) string {
	compJSON, err := json.MarshalIndent(comp, "", "  ")
	if err != nil {
		compJSON = []byte("{}")
	}
	return fmt.Sprintf("%s\n\nCOMPOSITION ANALYSIS:\n%s\n\nDOCUMENT TEXT:\n%s", segmentationPromptV1, compJSON, rawText)
}

func buildExtractionPrompt(segmentType, segmentText string) string {
	return fmt.Sprintf("%s\n\nSEGMENT TYPE: %s\nSEGMENT TEXT:\n%s", extractionPromptV1, segmentType, segmentText)
}
