package workflows_test

import (
	"context"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.temporal.io/sdk/testsuite"

	"github.com/samirrijal/geodetect/internal/core/domain"
	"github.com/samirrijal/geodetect/internal/core/usecases"
	"github.com/samirrijal/geodetect/internal/pkg/geospatial"
	"github.com/samirrijal/geodetect/internal/workflows"
)

type memRepo struct {
	mu   sync.Mutex
	runs map[string]domain.DetectionRun
}

func (m *memRepo) Upsert(ctx context.Context, run *domain.DetectionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *memRepo) GetByID(ctx context.Context, id string) (*domain.DetectionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &run, nil
}

func (m *memRepo) List(ctx context.Context, limit, offset int) ([]domain.DetectionRun, int, error) {
	return nil, len(m.runs), nil
}

// scriptedPredictor returns errs in order, then a one-feature result.
type scriptedPredictor struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (p *scriptedPredictor) next() (*geojson.FeatureCollection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= len(p.errs) {
		return nil, p.errs[p.calls-1]
	}
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Polygon{{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}}))
	return fc, nil
}

func (p *scriptedPredictor) PredictText(ctx context.Context, req *domain.PredictionRequest) (*geojson.FeatureCollection, error) {
	return p.next()
}

func (p *scriptedPredictor) PredictPoints(ctx context.Context, req *domain.PredictionRequest) (*geojson.FeatureCollection, error) {
	return p.next()
}

func queuedRun(t *testing.T, predictor *scriptedPredictor) (*usecases.DetectionService, *memRepo, string) {
	t.Helper()
	repo := &memRepo{runs: map[string]domain.DetectionRun{}}
	svc := usecases.NewDetectionService(repo, predictor, nil, nil, usecases.DefaultDetectionConfig())
	run, err := svc.Submit(context.Background(), &domain.SubmitRequest{
		Kind: domain.KindText,
		Text: &domain.TextDetectionRequest{
			BoundingBox: &geospatial.BBox{West: -96.8104, South: 32.9714, East: -96.81, North: 32.9718},
			TextPrompt:  "tree",
		},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return svc, repo, run.ID
}

func runWorkflow(t *testing.T, svc *usecases.DetectionService, runID string) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(workflows.DetectionWorkflow)
	env.RegisterActivity(&workflows.DetectionActivities{Detections: svc})
	env.ExecuteWorkflow(workflows.DetectionWorkflow, workflows.DetectionInput{RunID: runID})
	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	return env
}

func TestDetectionWorkflow_Completes(t *testing.T) {
	predictor := &scriptedPredictor{}
	svc, repo, id := queuedRun(t, predictor)

	env := runWorkflow(t, svc, id)
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out workflows.DetectionOutput
	if err := env.GetWorkflowResult(&out); err != nil {
		t.Fatal(err)
	}
	if out.Status != string(domain.StatusCompleted) || out.FeatureCount != 1 {
		t.Errorf("unexpected output %+v", out)
	}
	if repo.runs[id].Status != domain.StatusCompleted {
		t.Errorf("expected stored run completed, got %s", repo.runs[id].Status)
	}
}

func TestDetectionWorkflow_RetriesTransientFailures(t *testing.T) {
	unavailable := &domain.PredictionError{StatusCode: 503, Message: "warming up"}
	predictor := &scriptedPredictor{errs: []error{unavailable, unavailable}}
	svc, repo, id := queuedRun(t, predictor)

	env := runWorkflow(t, svc, id)
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if predictor.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", predictor.calls)
	}
	if repo.runs[id].Status != domain.StatusCompleted {
		t.Errorf("expected completed, got %s", repo.runs[id].Status)
	}
}

func TestDetectionWorkflow_MarksFailedAfterRetries(t *testing.T) {
	unavailable := &domain.PredictionError{StatusCode: 503, Message: "down"}
	predictor := &scriptedPredictor{errs: []error{unavailable, unavailable, unavailable, unavailable}}
	svc, repo, id := queuedRun(t, predictor)

	env := runWorkflow(t, svc, id)
	if env.GetWorkflowError() == nil {
		t.Fatal("expected workflow error")
	}
	if predictor.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", predictor.calls)
	}
	run := repo.runs[id]
	if run.Status != domain.StatusFailed || run.Error == "" {
		t.Errorf("expected failed run with reason, got %+v", run)
	}
}

func TestDetectionWorkflow_RejectedNotRetried(t *testing.T) {
	rejected := &domain.PredictionError{StatusCode: 422, Message: "zoom_level out of range"}
	predictor := &scriptedPredictor{errs: []error{rejected}}
	svc, repo, id := queuedRun(t, predictor)

	env := runWorkflow(t, svc, id)
	if env.GetWorkflowError() == nil {
		t.Fatal("expected workflow error")
	}
	if predictor.calls != 1 {
		t.Errorf("expected a single attempt, got %d", predictor.calls)
	}
	if repo.runs[id].Status != domain.StatusFailed {
		t.Errorf("expected failed, got %s", repo.runs[id].Status)
	}
}

func TestDetectionWorkflow_UnknownRun(t *testing.T) {
	repo := &memRepo{runs: map[string]domain.DetectionRun{}}
	svc := usecases.NewDetectionService(repo, &scriptedPredictor{}, nil, nil, usecases.DefaultDetectionConfig())

	env := runWorkflow(t, svc, "missing")
	if env.GetWorkflowError() == nil {
		t.Fatal("expected workflow error for unknown run")
	}
}
