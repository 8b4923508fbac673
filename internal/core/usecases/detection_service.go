package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/geodetect/internal/core/domain"
	"github.com/samirrijal/geodetect/internal/core/ports"
	"github.com/samirrijal/geodetect/internal/pkg/geospatial"
	"github.com/samirrijal/geodetect/internal/pkg/logging"
	"github.com/samirrijal/geodetect/internal/pkg/metrics"
	"github.com/samirrijal/geodetect/internal/pkg/spatialindex"
	"github.com/samirrijal/geodetect/internal/pkg/telemetry"
)

// defaultExtentCRS is assumed for extents that declare no spatial reference.
const defaultExtentCRS = "EPSG:3857"

// DetectionConfig bounds and defaults detection requests.
type DetectionConfig struct {
	MinZoom       int
	MaxZoom       int
	DefaultZoom   int
	MaxTiles      int
	BoxThreshold  float64
	TextThreshold float64
	// DedupWindow rejects an identical request seen within the window. Zero disables it.
	DedupWindow time.Duration
	ResultTTL   time.Duration
	// ResponseMercator reprojects prediction output from EPSG:3857.
	ResponseMercator bool
}

// DefaultDetectionConfig returns the limits used when none are configured.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		MinZoom:       19,
		MaxZoom:       22,
		DefaultZoom:   20,
		MaxTiles:      2000,
		BoxThreshold:  0.24,
		TextThreshold: 0.24,
		DedupWindow:   3 * time.Second,
		ResultTTL:     10 * time.Minute,
	}
}

// DetectionService runs object detection over map areas and keeps a record
// of every run.
type DetectionService struct {
	runs      ports.DetectionRepository
	predictor ports.PredictionClient
	events    ports.EventPublisher
	cache     ports.CacheService
	cfg       DetectionConfig

	now   func() time.Time
	newID func() string
}

// NewDetectionService creates a new DetectionService. events and cache may be nil.
func NewDetectionService(
	runs ports.DetectionRepository,
	predictor ports.PredictionClient,
	events ports.EventPublisher,
	cache ports.CacheService,
	cfg DetectionConfig,
) *DetectionService {
	return &DetectionService{
		runs:      runs,
		predictor: predictor,
		events:    events,
		cache:     cache,
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// plan is a validated detection ready to be sent to the prediction service.
type plan struct {
	kind    domain.DetectionKind
	prompt  string
	bbox    geospatial.BBox
	tiles   int
	body    *domain.PredictionRequest
	display domain.DisplayOptions
}

// DetectText runs a text-prompted detection synchronously.
func (s *DetectionService) DetectText(ctx context.Context, req *domain.TextDetectionRequest) (*domain.DetectionRun, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanDetectText)
	defer span.End()

	p, err := s.planText(ctx, req)
	if err != nil {
		return nil, s.reject(span, domain.KindText, err)
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return s.detect(ctx, span, p, raw)
}

// DetectPoints runs a point-prompted detection synchronously.
func (s *DetectionService) DetectPoints(ctx context.Context, req *domain.PointDetectionRequest) (*domain.DetectionRun, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanDetectPoints)
	defer span.End()

	p, err := s.planPoints(req)
	if err != nil {
		return nil, s.reject(span, domain.KindPoints, err)
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return s.detect(ctx, span, p, raw)
}

// Submit validates a detection and queues it for the asynchronous worker.
func (s *DetectionService) Submit(ctx context.Context, req *domain.SubmitRequest) (*domain.DetectionRun, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanSubmit)
	defer span.End()

	p, err := s.planSubmit(ctx, req)
	if err != nil {
		var kind domain.DetectionKind
		if req != nil {
			kind = req.Kind
		}
		return nil, s.reject(span, kind, err)
	}
	key, err := s.claim(ctx, p)
	if err != nil {
		return nil, s.reject(span, p.kind, err)
	}
	raw, err := json.Marshal(req)
	if err != nil {
		s.release(ctx, key)
		return nil, fmt.Errorf("encode request: %w", err)
	}

	run := s.newRun(p, raw)
	span.SetAttributes(attribute.String(telemetry.AttrRunID, run.ID))
	if err := s.runs.Upsert(ctx, run); err != nil {
		s.release(ctx, key)
		return nil, fmt.Errorf("save run: %w", err)
	}
	if s.events != nil {
		if err := s.events.PublishDetectionRequested(ctx, run); err != nil {
			s.release(ctx, key)
			return nil, fmt.Errorf("publish request: %w", err)
		}
	}
	metrics.DetectionsTotal.WithLabelValues(string(run.Kind), string(domain.StatusQueued)).Inc()
	logging.FromContext(ctx).Info("detection queued", "run_id", run.ID, "kind", run.Kind, "tiles", run.TileCount)
	return run, nil
}

// RunQueued executes a queued run. Terminal runs are returned unchanged, so
// repeated deliveries are harmless. Prediction errors are returned without
// marking the run failed; the caller decides when to give up.
func (s *DetectionService) RunQueued(ctx context.Context, id string) (*domain.DetectionRun, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanRunQueued,
		trace.WithAttributes(attribute.String(telemetry.AttrRunID, id)))
	defer span.End()

	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return run, nil
	}

	var req domain.SubmitRequest
	if err := json.Unmarshal(run.Request, &req); err != nil {
		return nil, &geospatial.InvalidInputError{Reason: "stored request is unreadable: " + err.Error()}
	}
	p, err := s.planSubmit(ctx, &req)
	if err != nil {
		return nil, err
	}

	start := s.now()
	fc, err := s.execute(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := s.complete(ctx, run, fc); err != nil {
		return nil, err
	}
	metrics.DetectionDuration.WithLabelValues(string(run.Kind)).Observe(s.now().Sub(start).Seconds())
	return run, nil
}

// MarkFailed records that a queued run could not be completed.
func (s *DetectionService) MarkFailed(ctx context.Context, id, reason string) error {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return nil
	}
	return s.fail(ctx, run, errors.New(reason))
}

// Get returns a single run. Terminal runs are served from cache when possible.
func (s *DetectionService) Get(ctx context.Context, id string) (*domain.DetectionRun, error) {
	cacheKey := runCacheKey(id)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var run domain.DetectionRun
			if err := json.Unmarshal(data, &run); err == nil {
				metrics.CacheHits.WithLabelValues("detection_run").Inc()
				return &run, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("detection_run").Inc()
	}

	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		s.cacheRun(ctx, run)
	}
	return run, nil
}

// List returns runs newest first with the total count.
func (s *DetectionService) List(ctx context.Context, limit, offset int) ([]domain.DetectionRun, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.runs.List(ctx, limit, offset)
}

// FeaturesWithin returns the features of a completed run that intersect b.
func (s *DetectionService) FeaturesWithin(ctx context.Context, id string, b geospatial.BBox) (*geojson.FeatureCollection, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanFeaturesInBox,
		trace.WithAttributes(attribute.String(telemetry.AttrRunID, id), attribute.String(telemetry.AttrBBox, b.String())))
	defer span.End()

	if !b.Valid() {
		return nil, &geospatial.InvalidInputError{Reason: "bbox is not a valid geographic box"}
	}
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(run.Result) == 0 {
		return geojson.NewFeatureCollection(), nil
	}
	fc, err := geojson.UnmarshalFeatureCollection(run.Result)
	if err != nil {
		return nil, fmt.Errorf("decode result of run %s: %w", id, err)
	}
	out := spatialindex.New(fc).Within(b)
	span.SetAttributes(attribute.Int(telemetry.AttrFeatures, len(out.Features)))
	return out, nil
}

// Reduce applies the display options to an uploaded GeoJSON result. Data in
// Web Mercator (crs EPSG:3857) is reprojected first.
func (s *DetectionService) Reduce(ctx context.Context, data []byte, crs string, opts domain.DisplayOptions) (*geojson.FeatureCollection, error) {
	_, span := telemetry.Tracer().Start(ctx, telemetry.SpanReduce)
	defer span.End()

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, &geospatial.InvalidInputError{Reason: "body is not a GeoJSON FeatureCollection"}
	}
	if geospatial.IsWebMercatorCRS(crs) {
		geospatial.ReprojectFeatureCollection(fc)
	}
	out, err := geospatial.Reduce(fc, opts.ReduceOptions())
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int(telemetry.AttrFeatures, len(out.Features)))
	return out, nil
}

// Tiles reports how many imagery tiles b needs at zoom. Quadkeys are listed
// only when the count is within the tile limit.
func (s *DetectionService) Tiles(b geospatial.BBox, zoom int) (*domain.TileSummary, error) {
	if !b.Valid() {
		return nil, &geospatial.InvalidInputError{Reason: "bbox is not a valid geographic box"}
	}
	z, err := s.zoom(zoom)
	if err != nil {
		return nil, err
	}
	r := geospatial.TilesFor(b, z)
	summary := &domain.TileSummary{BoundingBox: b, Zoom: z, Range: r, Count: r.Count()}
	if summary.Count <= s.cfg.MaxTiles {
		for _, t := range r.Tiles() {
			summary.Quadkeys = append(summary.Quadkeys, t.Quadkey())
		}
	}
	return summary, nil
}

// Normalize turns a map extent into a geographic bounding box.
func (s *DetectionService) Normalize(ctx context.Context, extent json.RawMessage, crs string) (geospatial.BBox, error) {
	_, span := telemetry.Tracer().Start(ctx, telemetry.SpanResolveBBox)
	defer span.End()
	return resolveExtent(extent, crs)
}

func (s *DetectionService) planText(ctx context.Context, req *domain.TextDetectionRequest) (*plan, error) {
	if req == nil {
		return nil, &geospatial.InvalidInputError{Reason: "request body is required"}
	}
	prompt := strings.TrimSpace(req.TextPrompt)
	if prompt == "" && len(req.TextPrompts) == 0 {
		return nil, &geospatial.InvalidInputError{Reason: "text_prompt or text_prompts is required"}
	}
	var values []string
	for i, tp := range req.TextPrompts {
		if strings.TrimSpace(tp.Value) == "" {
			return nil, &geospatial.InvalidInputError{Reason: fmt.Sprintf("text_prompts[%d].value is required", i)}
		}
		if err := checkUnit("text_prompts.text_threshold", tp.TextThreshold); err != nil {
			return nil, err
		}
		if err := checkUnit("text_prompts.box_threshold", tp.BoxThreshold); err != nil {
			return nil, err
		}
		values = append(values, tp.Value)
	}
	if prompt == "" {
		prompt = strings.Join(values, ", ")
	}

	zoom, err := s.zoom(req.ZoomLevel)
	if err != nil {
		return nil, err
	}
	box, err := threshold("box_threshold", req.BoxThreshold, s.cfg.BoxThreshold)
	if err != nil {
		return nil, err
	}
	text, err := threshold("text_threshold", req.TextThreshold, s.cfg.TextThreshold)
	if err != nil {
		return nil, err
	}
	display, err := normalizeDisplay(req.Display)
	if err != nil {
		return nil, err
	}

	var bbox geospatial.BBox
	switch {
	case len(req.Extent) > 0:
		_, span := telemetry.Tracer().Start(ctx, telemetry.SpanResolveBBox)
		bbox, err = resolveExtent(req.Extent, req.CRS)
		span.End()
		if err != nil {
			return nil, err
		}
	case req.BoundingBox != nil:
		bbox = *req.BoundingBox
		if !bbox.Valid() {
			return nil, &geospatial.InvalidInputError{Reason: "bounding_box is not a valid geographic box"}
		}
	default:
		return nil, &geospatial.InvalidInputError{Reason: "extent or bounding_box is required"}
	}

	p := &plan{
		kind:    domain.KindText,
		prompt:  prompt,
		bbox:    bbox,
		display: display,
		body: &domain.PredictionRequest{
			BoundingBox:   bbox,
			TextPrompt:    strings.TrimSpace(req.TextPrompt),
			TextPrompts:   req.TextPrompts,
			ZoomLevel:     zoom,
			BoxThreshold:  box,
			TextThreshold: text,
		},
	}
	return p, s.checkTiles(p)
}

func (s *DetectionService) planPoints(req *domain.PointDetectionRequest) (*plan, error) {
	if req == nil {
		return nil, &geospatial.InvalidInputError{Reason: "request body is required"}
	}
	if len(req.PointsInclude) == 0 {
		return nil, &geospatial.InvalidInputError{Reason: "points_include must contain at least one point"}
	}
	zoom, err := s.zoom(req.ZoomLevel)
	if err != nil {
		return nil, err
	}
	box, err := threshold("box_threshold", req.BoxThreshold, s.cfg.BoxThreshold)
	if err != nil {
		return nil, err
	}
	display, err := normalizeDisplay(req.Display)
	if err != nil {
		return nil, err
	}

	all := append(append(make([]orb.Point, 0, len(req.PointsInclude)+len(req.PointsExclude)), req.PointsInclude...), req.PointsExclude...)
	bbox, err := geospatial.BBoxFromPoints(all, geospatial.ZoomBuffer(zoom))
	if err != nil {
		return nil, err
	}
	if !bbox.Valid() {
		return nil, &geospatial.InvalidInputError{Reason: "points must be longitude/latitude pairs"}
	}

	p := &plan{
		kind:    domain.KindPoints,
		prompt:  fmt.Sprintf("%d include, %d exclude", len(req.PointsInclude), len(req.PointsExclude)),
		bbox:    bbox,
		display: display,
		body: &domain.PredictionRequest{
			BoundingBox:   bbox,
			PointsInclude: req.PointsInclude,
			PointsExclude: req.PointsExclude,
			ZoomLevel:     zoom,
			BoxThreshold:  box,
		},
	}
	return p, s.checkTiles(p)
}

func (s *DetectionService) planSubmit(ctx context.Context, req *domain.SubmitRequest) (*plan, error) {
	if req == nil {
		return nil, &geospatial.InvalidInputError{Reason: "request body is required"}
	}
	switch req.Kind {
	case domain.KindText:
		return s.planText(ctx, req.Text)
	case domain.KindPoints:
		return s.planPoints(req.Points)
	}
	return nil, &geospatial.InvalidInputError{Reason: fmt.Sprintf("unknown detection kind %q", req.Kind)}
}

func (s *DetectionService) checkTiles(p *plan) error {
	p.tiles = geospatial.CountTiles(p.bbox, p.body.ZoomLevel)
	if s.cfg.MaxTiles > 0 && p.tiles > s.cfg.MaxTiles {
		metrics.AreaRejections.WithLabelValues(string(p.kind)).Inc()
		return &domain.AreaTooLargeError{Tiles: p.tiles, Max: s.cfg.MaxTiles, Zoom: p.body.ZoomLevel}
	}
	return nil
}

// claim rejects a request whose outbound body was already seen within the
// duplicate window. The returned key is empty when no claim was taken.
func (s *DetectionService) claim(ctx context.Context, p *plan) (string, error) {
	if s.cache == nil || s.cfg.DedupWindow <= 0 {
		return "", nil
	}
	body, err := json.Marshal(p.body)
	if err != nil {
		return "", fmt.Errorf("encode prediction request: %w", err)
	}
	sum := sha256.Sum256(body)
	key := "detections:dedup:" + string(p.kind) + ":" + hex.EncodeToString(sum[:])
	ttl := int(math.Ceil(s.cfg.DedupWindow.Seconds()))

	ok, err := s.cache.SetNX(ctx, key, []byte("1"), ttl)
	if err != nil {
		// Cache outages disable the duplicate check.
		logging.FromContext(ctx).Warn("duplicate check unavailable", "error", err)
		return "", nil
	}
	if !ok {
		metrics.DuplicateRequests.WithLabelValues(string(p.kind)).Inc()
		return "", domain.ErrDuplicateRequest
	}
	return key, nil
}

// release drops a claim so a failed request can be retried at once.
func (s *DetectionService) release(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.cache.Delete(context.WithoutCancel(ctx), key); err != nil {
		logging.FromContext(ctx).Warn("release duplicate claim", "error", err)
	}
}

func (s *DetectionService) detect(ctx context.Context, span trace.Span, p *plan, raw json.RawMessage) (*domain.DetectionRun, error) {
	span.SetAttributes(
		attribute.String(telemetry.AttrKind, string(p.kind)),
		attribute.Int(telemetry.AttrZoom, p.body.ZoomLevel),
		attribute.Int(telemetry.AttrTiles, p.tiles),
		attribute.String(telemetry.AttrBBox, p.bbox.String()),
	)
	key, err := s.claim(ctx, p)
	if err != nil {
		return nil, s.reject(span, p.kind, err)
	}

	run := s.newRun(p, raw)
	span.SetAttributes(attribute.String(telemetry.AttrRunID, run.ID))
	start := s.now()

	fc, err := s.execute(ctx, p)
	if err != nil {
		s.release(ctx, key)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ferr := s.fail(ctx, run, err); ferr != nil {
			logging.FromContext(ctx).Error("record failed run", "run_id", run.ID, "error", ferr)
		}
		return nil, err
	}
	if err := s.complete(ctx, run, fc); err != nil {
		return nil, err
	}

	metrics.DetectionDuration.WithLabelValues(string(p.kind)).Observe(s.now().Sub(start).Seconds())
	span.SetAttributes(attribute.Int(telemetry.AttrFeatures, run.FeatureCount))
	return run, nil
}

// execute calls the prediction service and reduces its output.
func (s *DetectionService) execute(ctx context.Context, p *plan) (*geojson.FeatureCollection, error) {
	var (
		fc  *geojson.FeatureCollection
		err error
	)
	switch p.kind {
	case domain.KindPoints:
		fc, err = s.predictor.PredictPoints(ctx, p.body)
	default:
		fc, err = s.predictor.PredictText(ctx, p.body)
	}
	if err != nil {
		return nil, err
	}
	if s.cfg.ResponseMercator {
		geospatial.ReprojectFeatureCollection(fc)
	}

	_, span := telemetry.Tracer().Start(ctx, telemetry.SpanReduce)
	defer span.End()
	out, err := geospatial.Reduce(fc, p.display.ReduceOptions())
	if err != nil {
		return nil, fmt.Errorf("reduce prediction: %w", err)
	}
	return out, nil
}

func (s *DetectionService) newRun(p *plan, raw json.RawMessage) *domain.DetectionRun {
	return &domain.DetectionRun{
		ID:          s.newID(),
		Kind:        p.kind,
		Status:      domain.StatusQueued,
		BoundingBox: p.bbox,
		Prompt:      p.prompt,
		Request:     raw,
		TileCount:   p.tiles,
		CreatedAt:   s.now().UTC(),
	}
}

func (s *DetectionService) complete(ctx context.Context, run *domain.DetectionRun, fc *geojson.FeatureCollection) error {
	result, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	done := s.now().UTC()
	run.Status = domain.StatusCompleted
	run.Result = result
	run.FeatureCount = len(fc.Features)
	run.Error = ""
	run.CompletedAt = &done

	if err := s.runs.Upsert(ctx, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	s.cacheRun(ctx, run)

	metrics.DetectionsTotal.WithLabelValues(string(run.Kind), string(run.Status)).Inc()
	metrics.DetectionTiles.WithLabelValues(string(run.Kind)).Observe(float64(run.TileCount))
	metrics.DetectionFeatures.WithLabelValues(string(run.Kind)).Observe(float64(run.FeatureCount))
	logging.FromContext(ctx).Info("detection completed",
		"run_id", run.ID, "kind", run.Kind, "features", run.FeatureCount, "tiles", run.TileCount)

	if s.events != nil {
		event := &domain.DetectionEvent{
			RunID:        run.ID,
			Kind:         run.Kind,
			Status:       run.Status,
			FeatureCount: run.FeatureCount,
			Timestamp:    done,
		}
		if err := s.events.PublishDetectionCompleted(ctx, event); err != nil {
			logging.FromContext(ctx).Warn("publish completion", "run_id", run.ID, "error", err)
		}
	}
	return nil
}

func (s *DetectionService) fail(ctx context.Context, run *domain.DetectionRun, cause error) error {
	done := s.now().UTC()
	run.Status = domain.StatusFailed
	run.Error = cause.Error()
	run.CompletedAt = &done

	if err := s.runs.Upsert(ctx, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	s.cacheRun(ctx, run)

	metrics.DetectionsTotal.WithLabelValues(string(run.Kind), string(run.Status)).Inc()
	logging.FromContext(ctx).Warn("detection failed", "run_id", run.ID, "kind", run.Kind, "error", cause)

	if s.events != nil {
		event := &domain.DetectionEvent{
			RunID:     run.ID,
			Kind:      run.Kind,
			Status:    run.Status,
			Error:     run.Error,
			Timestamp: done,
		}
		if err := s.events.PublishDetectionFailed(ctx, event); err != nil {
			logging.FromContext(ctx).Warn("publish failure", "run_id", run.ID, "error", err)
		}
	}
	return nil
}

func (s *DetectionService) cacheRun(ctx context.Context, run *domain.DetectionRun) {
	if s.cache == nil || s.cfg.ResultTTL <= 0 {
		return
	}
	if data, err := json.Marshal(run); err == nil {
		_ = s.cache.Set(ctx, runCacheKey(run.ID), data, int(s.cfg.ResultTTL.Seconds()))
	}
}

func (s *DetectionService) reject(span trace.Span, kind domain.DetectionKind, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if kind != "" {
		metrics.DetectionsTotal.WithLabelValues(string(kind), "rejected").Inc()
	}
	return err
}

func (s *DetectionService) zoom(z int) (int, error) {
	if z == 0 {
		return s.cfg.DefaultZoom, nil
	}
	if z < s.cfg.MinZoom || z > s.cfg.MaxZoom {
		return 0, &geospatial.InvalidInputError{
			Reason: fmt.Sprintf("zoom_level must be between %d and %d, got %d", s.cfg.MinZoom, s.cfg.MaxZoom, z),
		}
	}
	return z, nil
}

func runCacheKey(id string) string {
	return "detections:id:" + id
}

// resolveExtent normalizes an extent and reprojects it when it is Web
// Mercator: either by its own spatial reference or, lacking one, by crs
// (EPSG:3857 when empty).
func resolveExtent(extent json.RawMessage, crs string) (geospatial.BBox, error) {
	b, err := geospatial.NormalizeExtent(extent)
	if err != nil {
		return geospatial.BBox{}, err
	}

	mercator := geospatial.ExtentIsWebMercator(extent)
	if geospatial.ExtentWKID(extent) == 0 {
		if crs == "" {
			crs = defaultExtentCRS
		}
		mercator = geospatial.IsWebMercatorCRS(crs)
	}
	if mercator {
		b = geospatial.BBoxToGeographic(b)
	}
	if !b.Valid() {
		return geospatial.BBox{}, &geospatial.InvalidInputError{Reason: fmt.Sprintf("extent resolves to an invalid geographic box %s", b)}
	}
	return b, nil
}

func normalizeDisplay(d domain.DisplayOptions) (domain.DisplayOptions, error) {
	mode, err := geospatial.ParseDisplayMode(string(d.Mode))
	if err != nil {
		return d, err
	}
	corner, err := geospatial.ParseCorner(string(d.Corner))
	if err != nil {
		return d, err
	}
	if d.MinArea != nil && *d.MinArea < 0 {
		return d, &geospatial.InvalidInputError{Reason: "min_area must not be negative"}
	}
	return domain.DisplayOptions{Mode: mode, Corner: corner, MinArea: d.MinArea}, nil
}

func threshold(name string, v *float64, def float64) (float64, error) {
	if v == nil {
		return def, nil
	}
	if err := checkUnit(name, v); err != nil {
		return 0, err
	}
	return *v, nil
}

func checkUnit(name string, v *float64) error {
	if v != nil && (*v < 0 || *v > 1 || math.IsNaN(*v)) {
		return &geospatial.InvalidInputError{Reason: fmt.Sprintf("%s must be within [0,1]", name)}
	}
	return nil
}
