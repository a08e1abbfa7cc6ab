package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job types carried by queue messages.
const (
	JobAnalysisRun      = "analysis_run"
	JobArtifactAnalysis = "artifact_analysis"
)

const messageVersion = 1

// Message is the payload sent to downstream queue consumers. Exactly one of
// RunID and ArtifactID is set, depending on JobType.
type Message struct {
	JobType    string `json:"job_type"`
	RunID      string `json:"run_id,omitempty"`
	ArtifactID string `json:"artifact_id,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	EnqueuedAt string `json:"enqueued_at"`
	Version    int    `json:"version"`
}

// NewAnalysisRunMessage builds the message for one queued analysis run.
func NewAnalysisRunMessage(runID, requestID string) Message {
	return Message{
		JobType:    JobAnalysisRun,
		RunID:      runID,
		RequestID:  requestID,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    messageVersion,
	}
}

// NewArtifactAnalysisMessage builds the message for one queued artifact
// analysis.
func NewArtifactAnalysisMessage(artifactID, requestID string) Message {
	return Message{
		JobType:    JobArtifactAnalysis,
		ArtifactID: artifactID,
		RequestID:  requestID,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    messageVersion,
	}
}

// JobID returns the id the message's job operates on.
func (m Message) JobID() string {
	switch m.JobType {
	case JobAnalysisRun:
		return m.RunID
	case JobArtifactAnalysis:
		return m.ArtifactID
	default:
		return ""
	}
}

// Validate checks that the message names a known job and carries the id that
// job needs.
func (m Message) Validate() error {
	switch m.JobType {
	case JobAnalysisRun:
		if m.RunID == "" {
			return fmt.Errorf("%s message is missing run_id", JobAnalysisRun)
		}
	case JobArtifactAnalysis:
		if m.ArtifactID == "" {
			return fmt.Errorf("%s message is missing artifact_id", JobArtifactAnalysis)
		}
	default:
		return fmt.Errorf("unknown job_type %q", m.JobType)
	}
	return nil
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
