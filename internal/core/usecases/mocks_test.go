package usecases_test

import (
	"context"
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/geodetect/internal/core/domain"
)

// --- Mock DetectionRepository ---

type mockRunRepo struct {
	mu       sync.Mutex
	runs     map[string]domain.DetectionRun
	saves    int
	upsertFn func(ctx context.Context, run *domain.DetectionRun) error
}

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{runs: map[string]domain.DetectionRun{}}
}

func (m *mockRunRepo) Upsert(ctx context.Context, run *domain.DetectionRun) error {
	if m.upsertFn != nil {
		if err := m.upsertFn(ctx, run); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	m.saves++
	return nil
}

func (m *mockRunRepo) GetByID(ctx context.Context, id string) (*domain.DetectionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &run, nil
}

func (m *mockRunRepo) List(ctx context.Context, limit, offset int) ([]domain.DetectionRun, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DetectionRun
	for _, r := range m.runs {
		out = append(out, r)
	}
	return out, len(m.runs), nil
}

// --- Mock PredictionClient ---

type mockPredictor struct {
	textFn   func(ctx context.Context, req *domain.PredictionRequest) (*geojson.FeatureCollection, error)
	pointsFn func(ctx context.Context, req *domain.PredictionRequest) (*geojson.FeatureCollection, error)
	calls    int
	last     *domain.PredictionRequest
}

func (m *mockPredictor) PredictText(ctx context.Context, req *domain.PredictionRequest) (*geojson.FeatureCollection, error) {
	m.calls++
	m.last = req
	if m.textFn != nil {
		return m.textFn(ctx, req)
	}
	return geojson.NewFeatureCollection(), nil
}

func (m *mockPredictor) PredictPoints(ctx context.Context, req *domain.PredictionRequest) (*geojson.FeatureCollection, error) {
	m.calls++
	m.last = req
	if m.pointsFn != nil {
		return m.pointsFn(ctx, req)
	}
	return geojson.NewFeatureCollection(), nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	requested []*domain.DetectionRun
	completed []*domain.DetectionEvent
	failed    []*domain.DetectionEvent
}

func (m *mockPublisher) PublishDetectionRequested(ctx context.Context, run *domain.DetectionRun) error {
	m.requested = append(m.requested, run)
	return nil
}

func (m *mockPublisher) PublishDetectionCompleted(ctx context.Context, event *domain.DetectionEvent) error {
	m.completed = append(m.completed, event)
	return nil
}

func (m *mockPublisher) PublishDetectionFailed(ctx context.Context, event *domain.DetectionEvent) error {
	m.failed = append(m.failed, event)
	return nil
}

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{data: map[string][]byte{}}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) SetNX(ctx context.Context, key string, value []byte, ttlSeconds int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
