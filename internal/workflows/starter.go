package workflows

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
)

// Starter implements ports.WorkflowStarter on a Temporal client.
type Starter struct {
	client    client.Client
	taskQueue string
}

// NewStarter creates a Starter that schedules workflows on taskQueue.
func NewStarter(c client.Client, taskQueue string) *Starter {
	return &Starter{client: c, taskQueue: taskQueue}
}

// WorkflowID is the Temporal workflow ID used for a run. Starting the same
// run twice attaches to the existing execution.
func WorkflowID(runID string) string {
	return "detection-" + runID
}

// StartDetection starts DetectionWorkflow for runID.
func (s *Starter) StartDetection(ctx context.Context, runID string) error {
	_, err := s.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(runID),
		TaskQueue: s.taskQueue,
	}, DetectionWorkflow, DetectionInput{RunID: runID})
	if err != nil {
		return fmt.Errorf("start detection workflow %s: %w", runID, err)
	}
	return nil
}
