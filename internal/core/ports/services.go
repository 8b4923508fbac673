package ports

import (
	"context"

	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/geodetect/internal/core/domain"
)

// PredictionClient calls the object-detection model service.
type PredictionClient interface {
	PredictText(ctx context.Context, req *domain.PredictionRequest) (*geojson.FeatureCollection, error)
	PredictPoints(ctx context.Context, req *domain.PredictionRequest) (*geojson.FeatureCollection, error)
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishDetectionRequested(ctx context.Context, run *domain.DetectionRun) error
	PublishDetectionCompleted(ctx context.Context, event *domain.DetectionEvent) error
	PublishDetectionFailed(ctx context.Context, event *domain.DetectionEvent) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeDetectionRequests(ctx context.Context, handler func(ctx context.Context, run *domain.DetectionRun) error) error
	SubscribeDetectionEvents(ctx context.Context, handler func(ctx context.Context, event *domain.DetectionEvent) error) error
}

// CacheService provides read-through caching and short-lived claims.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttlSeconds int) (bool, error)
	Delete(ctx context.Context, key string) error
}

// WorkflowStarter hands a queued run to the durable workflow engine.
type WorkflowStarter interface {
	StartDetection(ctx context.Context, runID string) error
}
