package oracle

import "encoding/json"

// OutcomeKind tags the result of decoding model output.
type OutcomeKind int

const (
	// OutcomeSuccess means valid JSON was recovered.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeParseFailure means the text stayed unparseable after one repair pass.
	OutcomeParseFailure
)

// Outcome is the decoded form of a model response. Success carries the JSON
// payload; ParseFailure carries the original text for diagnostics. Transport
// failures are ordinary errors from Client.Generate and never reach here.
type Outcome struct {
	Kind OutcomeKind
	Data json.RawMessage
	Raw  string
}

// DecodeJSON parses model output: fence-strip then parse, and on failure one
// Repair pass then parse again. It never retries beyond that.
func DecodeJSON(raw string) Outcome {
	cleaned := StripFences(raw)
	if json.Valid([]byte(cleaned)) {
		return Outcome{Kind: OutcomeSuccess, Data: json.RawMessage(cleaned)}
	}

	repaired := Repair(raw)
	if json.Valid([]byte(repaired)) {
		return Outcome{Kind: OutcomeSuccess, Data: json.RawMessage(repaired)}
	}

	return Outcome{Kind: OutcomeParseFailure, Raw: raw}
}
