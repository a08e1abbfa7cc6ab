package queue

import "context"

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher adapts a Client to the enqueue interfaces the run and artifact
// services accept. One Dispatcher serves both job types.
type Dispatcher struct {
	Client Client
}

// NewDispatcher wraps a queue client.
func NewDispatcher(client Client) *Dispatcher {
	return &Dispatcher{Client: client}
}

// EnqueueAnalysisRun queues one analysis run for a worker.
func (d *Dispatcher) EnqueueAnalysisRun(ctx context.Context, runID, requestID string) error {
	return d.Client.Send(ctx, NewAnalysisRunMessage(runID, requestID))
}

// EnqueueArtifactAnalysis queues one artifact analysis for a worker.
func (d *Dispatcher) EnqueueArtifactAnalysis(ctx context.Context, artifactID, requestID string) error {
	return d.Client.Send(ctx, NewArtifactAnalysisMessage(artifactID, requestID))
}
