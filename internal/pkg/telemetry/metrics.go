package telemetry

// Span names used by the detection use cases and adapters.
const (
	SpanDetectText    = "detection.text"
	SpanDetectPoints  = "detection.points"
	SpanSubmit        = "detection.submit"
	SpanRunQueued     = "detection.run_queued"
	SpanResolveBBox   = "detection.resolve_bbox"
	SpanPredict       = "predict.call"
	SpanReduce        = "geospatial.reduce"
	SpanFeaturesInBox = "detection.features_within"
)

// Span attribute keys.
const (
	AttrKind     = "detection.kind"
	AttrRunID    = "detection.run_id"
	AttrZoom     = "detection.zoom"
	AttrTiles    = "detection.tiles"
	AttrFeatures = "detection.features"
	AttrEndpoint = "predict.endpoint"
	AttrAttempt  = "predict.attempt"
	AttrBBox     = "geo.bbox"
)
