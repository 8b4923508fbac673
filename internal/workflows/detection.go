package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Activity names registered by DetectionActivities.
const (
	ActivityRunDetection = "RunDetection"
	ActivityMarkFailed   = "MarkFailed"
)

// Application error types the retry policy gives up on immediately.
const (
	ErrTypeInvalidInput       = "InvalidInput"
	ErrTypeAreaTooLarge       = "AreaTooLarge"
	ErrTypeNotFound           = "NotFound"
	ErrTypePredictionRejected = "PredictionRejected"
)

// DetectionInput is the input for DetectionWorkflow.
type DetectionInput struct {
	RunID string
}

// DetectionOutput summarizes a finished run.
type DetectionOutput struct {
	RunID        string
	Status       string
	FeatureCount int
}

// DetectionWorkflow executes a queued detection run. Transient failures are
// retried three times with exponential backoff; when the run still cannot be
// completed it is marked failed.
func DetectionWorkflow(ctx workflow.Context, input DetectionInput) (*DetectionOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting detection workflow", "runID", input.RunID)

	runCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
			NonRetryableErrorTypes: []string{
				ErrTypeInvalidInput,
				ErrTypeAreaTooLarge,
				ErrTypeNotFound,
				ErrTypePredictionRejected,
			},
		},
	})

	var out DetectionOutput
	err := workflow.ExecuteActivity(runCtx, ActivityRunDetection, input.RunID).Get(ctx, &out)
	if err == nil {
		logger.Info("Detection completed", "runID", input.RunID, "features", out.FeatureCount)
		return &out, nil
	}

	logger.Warn("detection failed, marking run", "runID", input.RunID, "error", err)
	markCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 5,
		},
	})
	if merr := workflow.ExecuteActivity(markCtx, ActivityMarkFailed, input.RunID, failureReason(err)).Get(ctx, nil); merr != nil {
		logger.Error("mark failed", "runID", input.RunID, "error", merr)
	}
	return nil, err
}

// failureReason unwraps the activity error down to the application message.
func failureReason(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	return err.Error()
}
