package workflows

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/geodetect/internal/core/domain"
	"github.com/samirrijal/geodetect/internal/core/usecases"
	"github.com/samirrijal/geodetect/internal/pkg/geospatial"
)

// DetectionActivities holds the activity implementations for DetectionWorkflow.
type DetectionActivities struct {
	Detections *usecases.DetectionService
}

// RunDetection executes the queued run. Errors a retry cannot fix are
// returned as non-retryable application errors.
func (a *DetectionActivities) RunDetection(ctx context.Context, runID string) (*DetectionOutput, error) {
	info := activity.GetInfo(ctx)
	activity.GetLogger(ctx).Info("running detection", "runID", runID, "attempt", info.Attempt)

	run, err := a.Detections.RunQueued(ctx, runID)
	if err != nil {
		return nil, classify(err)
	}
	return &DetectionOutput{RunID: run.ID, Status: string(run.Status), FeatureCount: run.FeatureCount}, nil
}

// MarkFailed records the final failure of a run.
func (a *DetectionActivities) MarkFailed(ctx context.Context, runID, reason string) error {
	return a.Detections.MarkFailed(ctx, runID, reason)
}

func classify(err error) error {
	var (
		inputErr *geospatial.InvalidInputError
		areaErr  *domain.AreaTooLargeError
		predErr  *domain.PredictionError
	)
	switch {
	case errors.As(err, &inputErr):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
	case errors.As(err, &areaErr):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeAreaTooLarge, err)
	case errors.Is(err, domain.ErrNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNotFound, err)
	case errors.As(err, &predErr) && !predErr.Retryable():
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypePredictionRejected, err)
	}
	return err
}
