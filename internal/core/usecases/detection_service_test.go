package usecases_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/geodetect/internal/core/domain"
	"github.com/samirrijal/geodetect/internal/core/usecases"
	"github.com/samirrijal/geodetect/internal/pkg/geospatial"
)

const dallasExtent = `{"xmin":-10781864,"ymin":3856524,"xmax":-10780864,"ymax":3857524,"spatialReference":{"wkid":102100,"latestWkid":3857}}`

// boxAndSpeck answers a prediction with one polygon covering the request box
// and one polygon too small to survive an area filter.
func boxAndSpeck(ctx context.Context, req *domain.PredictionRequest) (*geojson.FeatureCollection, error) {
	b := req.BoundingBox
	fc := geojson.NewFeatureCollection()
	big := geojson.NewFeature(orb.Polygon{{
		{b.West, b.South}, {b.West, b.North}, {b.East, b.North}, {b.East, b.South}, {b.West, b.South},
	}})
	big.Properties["label"] = "tree"
	fc.Append(big)
	fc.Append(geojson.NewFeature(orb.Polygon{{
		{b.West, b.South}, {b.West, b.South + 1e-7}, {b.West + 1e-7, b.South + 1e-7}, {b.West + 1e-7, b.South}, {b.West, b.South},
	}}))
	return fc, nil
}

func textRequest() *domain.TextDetectionRequest {
	minArea := 1e-8
	return &domain.TextDetectionRequest{
		Extent:     json.RawMessage(dallasExtent),
		TextPrompt: "tree",
		Display:    domain.DisplayOptions{Mode: geospatial.DisplayCentroids, MinArea: &minArea},
	}
}

func TestDetectionService_DetectText(t *testing.T) {
	repo := newMockRunRepo()
	predictor := &mockPredictor{textFn: boxAndSpeck}
	events := &mockPublisher{}
	svc := usecases.NewDetectionService(repo, predictor, events, nil, usecases.DefaultDetectionConfig())

	run, err := svc.DetectText(context.Background(), textRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != domain.StatusCompleted {
		t.Errorf("expected completed, got %s", run.Status)
	}
	if run.FeatureCount != 1 {
		t.Errorf("expected the speck to be filtered out, got %d features", run.FeatureCount)
	}

	body := predictor.last
	if body.ZoomLevel != 20 || body.BoxThreshold != 0.24 || body.TextThreshold != 0.24 {
		t.Errorf("expected defaults 20/0.24/0.24, got %d/%v/%v", body.ZoomLevel, body.BoxThreshold, body.TextThreshold)
	}
	if math.Abs(body.BoundingBox.West-(-96.854)) > 0.01 || math.Abs(body.BoundingBox.South-32.70) > 0.02 {
		t.Errorf("expected a box near Dallas, got %v", body.BoundingBox)
	}

	fc, err := geojson.UnmarshalFeatureCollection(run.Result)
	if err != nil {
		t.Fatalf("result is not GeoJSON: %v", err)
	}
	if _, ok := fc.Features[0].Geometry.(orb.Point); !ok {
		t.Errorf("expected a centroid point, got %T", fc.Features[0].Geometry)
	}
	if fc.Features[0].Properties["label"] != "tree" {
		t.Errorf("expected properties to survive, got %v", fc.Features[0].Properties)
	}

	if _, err := repo.GetByID(context.Background(), run.ID); err != nil {
		t.Errorf("run was not persisted: %v", err)
	}
	if len(events.completed) != 1 || events.completed[0].RunID != run.ID {
		t.Errorf("expected one completion event for %s, got %v", run.ID, events.completed)
	}
}

func TestDetectionService_DetectText_Validation(t *testing.T) {
	predictor := &mockPredictor{}
	svc := usecases.NewDetectionService(newMockRunRepo(), predictor, nil, nil, usecases.DefaultDetectionConfig())
	bad := 1.5

	cases := map[string]*domain.TextDetectionRequest{
		"nil request":  nil,
		"no prompt":    {Extent: json.RawMessage(dallasExtent)},
		"no area":      {TextPrompt: "tree"},
		"bad extent":   {Extent: json.RawMessage(`{"xmin":1}`), TextPrompt: "tree"},
		"zoom too low": {Extent: json.RawMessage(dallasExtent), TextPrompt: "tree", ZoomLevel: 12},
		"threshold":    {Extent: json.RawMessage(dallasExtent), TextPrompt: "tree", BoxThreshold: &bad},
		"empty prompt": {Extent: json.RawMessage(dallasExtent), TextPrompts: []domain.TextPrompt{{Value: " "}}},
		"bad mode":     {Extent: json.RawMessage(dallasExtent), TextPrompt: "tree", Display: domain.DisplayOptions{Mode: "heatmap"}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.DetectText(context.Background(), req)
			var inputErr *geospatial.InvalidInputError
			if !errors.As(err, &inputErr) {
				t.Errorf("expected InvalidInputError, got %v", err)
			}
		})
	}
	if predictor.calls != 0 {
		t.Errorf("predictor should not be called for invalid input, got %d calls", predictor.calls)
	}
}

func TestDetectionService_DetectText_MultiPrompt(t *testing.T) {
	predictor := &mockPredictor{}
	svc := usecases.NewDetectionService(newMockRunRepo(), predictor, nil, nil, usecases.DefaultDetectionConfig())
	th := 0.3

	run, err := svc.DetectText(context.Background(), &domain.TextDetectionRequest{
		BoundingBox: &geospatial.BBox{West: -96.8104, South: 32.9714, East: -96.8100, North: 32.9718},
		TextPrompts: []domain.TextPrompt{{Value: "tree", BoxThreshold: &th}, {Value: "pool"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Prompt != "tree, pool" {
		t.Errorf("expected joined prompt, got %q", run.Prompt)
	}
	if len(predictor.last.TextPrompts) != 2 || predictor.last.TextPrompt != "" {
		t.Errorf("expected text_prompts to be forwarded, got %+v", predictor.last)
	}
}

func TestDetectionService_AreaTooLarge(t *testing.T) {
	predictor := &mockPredictor{}
	svc := usecases.NewDetectionService(newMockRunRepo(), predictor, nil, nil, usecases.DefaultDetectionConfig())

	req := textRequest()
	req.ZoomLevel = 22
	_, err := svc.DetectText(context.Background(), req)

	var areaErr *domain.AreaTooLargeError
	if !errors.As(err, &areaErr) {
		t.Fatalf("expected AreaTooLargeError, got %v", err)
	}
	if areaErr.Tiles <= 2000 || areaErr.Max != 2000 {
		t.Errorf("unexpected error details %+v", areaErr)
	}
	if predictor.calls != 0 {
		t.Error("predictor should not be called for an oversized area")
	}
}

func TestDetectionService_DuplicateSuppressed(t *testing.T) {
	predictor := &mockPredictor{}
	svc := usecases.NewDetectionService(newMockRunRepo(), predictor, nil, newMockCache(), usecases.DefaultDetectionConfig())

	if _, err := svc.DetectText(context.Background(), textRequest()); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	_, err := svc.DetectText(context.Background(), textRequest())
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
	if predictor.calls != 1 {
		t.Errorf("expected 1 prediction call, got %d", predictor.calls)
	}

	// A different prompt is not a duplicate.
	other := textRequest()
	other.TextPrompt = "pool"
	if _, err := svc.DetectText(context.Background(), other); err != nil {
		t.Errorf("expected distinct request to pass, got %v", err)
	}
}

func TestDetectionService_RetryAfterFailureNotDuplicate(t *testing.T) {
	fail := true
	predictor := &mockPredictor{
		textFn: func(ctx context.Context, req *domain.PredictionRequest) (*geojson.FeatureCollection, error) {
			if fail {
				return nil, &domain.PredictionError{StatusCode: 502, Message: "bad gateway"}
			}
			return boxAndSpeck(ctx, req)
		},
	}
	svc := usecases.NewDetectionService(newMockRunRepo(), predictor, nil, newMockCache(), usecases.DefaultDetectionConfig())

	_, err := svc.DetectText(context.Background(), textRequest())
	var predErr *domain.PredictionError
	if !errors.As(err, &predErr) {
		t.Fatalf("expected PredictionError, got %v", err)
	}

	fail = false
	if _, err := svc.DetectText(context.Background(), textRequest()); err != nil {
		t.Fatalf("retry after a failed prediction should pass, got %v", err)
	}
	_, err = svc.DetectText(context.Background(), textRequest())
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest after a success, got %v", err)
	}
	if predictor.calls != 2 {
		t.Errorf("expected 2 prediction calls, got %d", predictor.calls)
	}
}

func TestDetectionService_NoCacheNoDedup(t *testing.T) {
	predictor := &mockPredictor{}
	svc := usecases.NewDetectionService(newMockRunRepo(), predictor, nil, nil, usecases.DefaultDetectionConfig())

	for i := 0; i < 2; i++ {
		if _, err := svc.DetectText(context.Background(), textRequest()); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if predictor.calls != 2 {
		t.Errorf("expected 2 prediction calls, got %d", predictor.calls)
	}
}

func TestDetectionService_PredictionFailure(t *testing.T) {
	repo := newMockRunRepo()
	events := &mockPublisher{}
	predictor := &mockPredictor{
		textFn: func(ctx context.Context, req *domain.PredictionRequest) (*geojson.FeatureCollection, error) {
			return nil, &domain.PredictionError{StatusCode: 500, Message: "model crashed"}
		},
	}
	svc := usecases.NewDetectionService(repo, predictor, events, nil, usecases.DefaultDetectionConfig())

	_, err := svc.DetectText(context.Background(), textRequest())
	var predErr *domain.PredictionError
	if !errors.As(err, &predErr) {
		t.Fatalf("expected PredictionError, got %v", err)
	}
	if len(events.failed) != 1 {
		t.Fatalf("expected one failure event, got %d", len(events.failed))
	}
	run, err := repo.GetByID(context.Background(), events.failed[0].RunID)
	if err != nil {
		t.Fatalf("failed run was not persisted: %v", err)
	}
	if run.Status != domain.StatusFailed || run.Error == "" {
		t.Errorf("expected failed run with error, got %+v", run)
	}
}

func TestDetectionService_DetectPoints(t *testing.T) {
	predictor := &mockPredictor{pointsFn: boxAndSpeck}
	svc := usecases.NewDetectionService(newMockRunRepo(), predictor, nil, nil, usecases.DefaultDetectionConfig())

	run, err := svc.DetectPoints(context.Background(), &domain.PointDetectionRequest{
		PointsInclude: []orb.Point{{-96.8102, 32.9716}},
		PointsExclude: []orb.Point{{-96.8103, 32.9717}},
		ZoomLevel:     21,
		Display:       domain.DisplayOptions{Mode: geospatial.DisplayCorners},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Kind != domain.KindPoints || run.FeatureCount != 2 {
		t.Errorf("unexpected run %+v", run)
	}

	b := predictor.last.BoundingBox
	if math.Abs(b.West-(-96.8103-0.00025)) > 1e-9 || math.Abs(b.North-(32.9717+0.00025)) > 1e-9 {
		t.Errorf("expected points padded by the zoom 21 buffer, got %v", b)
	}
	if len(predictor.last.PointsInclude) != 1 || len(predictor.last.PointsExclude) != 1 {
		t.Errorf("expected points forwarded, got %+v", predictor.last)
	}

	_, err = svc.DetectPoints(context.Background(), &domain.PointDetectionRequest{})
	var inputErr *geospatial.InvalidInputError
	if !errors.As(err, &inputErr) {
		t.Errorf("expected InvalidInputError without points, got %v", err)
	}
}

func TestDetectionService_SubmitAndRun(t *testing.T) {
	repo := newMockRunRepo()
	predictor := &mockPredictor{textFn: boxAndSpeck}
	events := &mockPublisher{}
	svc := usecases.NewDetectionService(repo, predictor, events, nil, usecases.DefaultDetectionConfig())
	ctx := context.Background()

	queued, err := svc.Submit(ctx, &domain.SubmitRequest{Kind: domain.KindText, Text: textRequest()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if queued.Status != domain.StatusQueued || len(events.requested) != 1 {
		t.Fatalf("expected queued run and request event, got %s / %d", queued.Status, len(events.requested))
	}
	if predictor.calls != 0 {
		t.Error("submit must not call the predictor")
	}

	done, err := svc.RunQueued(ctx, queued.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if done.Status != domain.StatusCompleted || done.FeatureCount != 1 {
		t.Errorf("unexpected completed run %+v", done)
	}

	// Redelivery is a no-op.
	if _, err := svc.RunQueued(ctx, queued.ID); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if predictor.calls != 1 {
		t.Errorf("expected a single prediction call, got %d", predictor.calls)
	}
}

func TestDetectionService_SubmitUnknownKind(t *testing.T) {
	svc := usecases.NewDetectionService(newMockRunRepo(), &mockPredictor{}, nil, nil, usecases.DefaultDetectionConfig())
	_, err := svc.Submit(context.Background(), &domain.SubmitRequest{Kind: "video"})
	var inputErr *geospatial.InvalidInputError
	if !errors.As(err, &inputErr) {
		t.Errorf("expected InvalidInputError, got %v", err)
	}
}

func TestDetectionService_MarkFailed(t *testing.T) {
	repo := newMockRunRepo()
	events := &mockPublisher{}
	svc := usecases.NewDetectionService(repo, &mockPredictor{}, events, nil, usecases.DefaultDetectionConfig())
	ctx := context.Background()

	queued, err := svc.Submit(ctx, &domain.SubmitRequest{Kind: domain.KindText, Text: textRequest()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.MarkFailed(ctx, queued.ID, "upstream unavailable"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	run, _ := repo.GetByID(ctx, queued.ID)
	if run.Status != domain.StatusFailed || run.Error != "upstream unavailable" {
		t.Errorf("unexpected run %+v", run)
	}
	if len(events.failed) != 1 {
		t.Errorf("expected one failure event, got %d", len(events.failed))
	}

	if err := svc.MarkFailed(ctx, "missing", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDetectionService_GetCachesTerminalRuns(t *testing.T) {
	repo := newMockRunRepo()
	cache := newMockCache()
	svc := usecases.NewDetectionService(repo, &mockPredictor{}, nil, cache, usecases.DefaultDetectionConfig())
	ctx := context.Background()

	_ = repo.Upsert(ctx, &domain.DetectionRun{ID: "queued", Status: domain.StatusQueued})
	_ = repo.Upsert(ctx, &domain.DetectionRun{ID: "done", Status: domain.StatusCompleted})

	if _, err := svc.Get(ctx, "queued"); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Get(ctx, "detections:id:queued"); err == nil {
		t.Error("queued runs must not be cached")
	}

	if _, err := svc.Get(ctx, "done"); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Get(ctx, "detections:id:done"); err != nil {
		t.Error("expected completed run to be cached")
	}

	if _, err := svc.Get(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDetectionService_FeaturesWithin(t *testing.T) {
	repo := newMockRunRepo()
	svc := usecases.NewDetectionService(repo, &mockPredictor{}, nil, nil, usecases.DefaultDetectionConfig())
	ctx := context.Background()

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{1, 1}))
	fc.Append(geojson.NewFeature(orb.Point{5, 5}))
	result, _ := fc.MarshalJSON()
	_ = repo.Upsert(ctx, &domain.DetectionRun{ID: "r1", Status: domain.StatusCompleted, Result: result})

	got, err := svc.FeaturesWithin(ctx, "r1", geospatial.BBox{West: 0, South: 0, East: 2, North: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Features) != 1 {
		t.Errorf("expected 1 feature in view, got %d", len(got.Features))
	}

	_, err = svc.FeaturesWithin(ctx, "r1", geospatial.BBox{West: 2, South: 0, East: 0, North: 2})
	var inputErr *geospatial.InvalidInputError
	if !errors.As(err, &inputErr) {
		t.Errorf("expected InvalidInputError for inverted box, got %v", err)
	}
}

func TestDetectionService_Reduce(t *testing.T) {
	svc := usecases.NewDetectionService(newMockRunRepo(), &mockPredictor{}, nil, nil, usecases.DefaultDetectionConfig())
	ctx := context.Background()

	body := []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"label":"a"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[0,2],[2,2],[2,0],[0,0]]]}},
		{"type":"Feature","properties":{"label":"b"},"geometry":{"type":"Polygon","coordinates":[[[5,5],[5,5.5],[5.5,5.5],[5.5,5],[5,5]]]}}
	]}`)
	minArea := 1.0
	out, err := svc.Reduce(ctx, body, "", domain.DisplayOptions{Mode: geospatial.DisplayCentroids, MinArea: &minArea})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Features) != 1 || out.Features[0].Geometry.(orb.Point) != (orb.Point{1, 1}) {
		t.Errorf("unexpected reduction %v", out.Features)
	}

	_, err = svc.Reduce(ctx, []byte(`{"type":"Point"`), "", domain.DisplayOptions{})
	var inputErr *geospatial.InvalidInputError
	if !errors.As(err, &inputErr) {
		t.Errorf("expected InvalidInputError for bad upload, got %v", err)
	}
}

func TestDetectionService_Tiles(t *testing.T) {
	svc := usecases.NewDetectionService(newMockRunRepo(), &mockPredictor{}, nil, nil, usecases.DefaultDetectionConfig())

	small := geospatial.BBox{West: -96.8104, South: 32.9714, East: -96.8100, North: 32.9718}
	s, err := svc.Tiles(small, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Zoom != 20 || s.Count == 0 || len(s.Quadkeys) != s.Count {
		t.Errorf("unexpected summary %+v", s)
	}
	for _, q := range s.Quadkeys {
		if len(q) != 20 {
			t.Errorf("expected 20-digit quadkey, got %q", q)
		}
	}

	large, err := svc.Tiles(geospatial.BBox{West: -97, South: 32, East: -96, North: 33}, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if large.Count <= 2000 || len(large.Quadkeys) != 0 {
		t.Errorf("expected a large count without quadkeys, got %d / %d", large.Count, len(large.Quadkeys))
	}

	if _, err := svc.Tiles(small, 5); err == nil {
		t.Error("expected error for zoom outside the allowed range")
	}
}

func TestDetectionService_Normalize(t *testing.T) {
	svc := usecases.NewDetectionService(newMockRunRepo(), &mockPredictor{}, nil, nil, usecases.DefaultDetectionConfig())
	ctx := context.Background()

	geo, err := svc.Normalize(ctx, json.RawMessage(`{"xmin":-96.81,"ymin":32.97,"xmax":-96.80,"ymax":32.98,"spatialReference":{"wkid":4326}}`), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if geo != (geospatial.BBox{West: -96.81, South: 32.97, East: -96.80, North: 32.98}) {
		t.Errorf("expected degrees to pass through, got %v", geo)
	}

	merc, err := svc.Normalize(ctx, json.RawMessage(`{"xmin":-10781864,"ymin":3856524,"xmax":-10780864,"ymax":3857524}`), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !merc.Valid() || merc.West > -96 {
		t.Errorf("expected reprojected box, got %v", merc)
	}

	// Degrees declared through crs are not reprojected.
	if _, err := svc.Normalize(ctx, json.RawMessage(`{"xmin":-96.81,"ymin":32.97,"xmax":-96.80,"ymax":32.98}`), "EPSG:4326"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if _, err := svc.Normalize(ctx, json.RawMessage(`[1,2,3,4]`), ""); err == nil {
		t.Error("expected error for non-object extent")
	}
}
