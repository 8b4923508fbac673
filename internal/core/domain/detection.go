package domain

import (
	"encoding/json"
	"time"

	"github.com/paulmach/orb"

	"github.com/samirrijal/geodetect/internal/pkg/geospatial"
)

// DetectionKind says how a detection was prompted.
type DetectionKind string

const (
	KindText   DetectionKind = "text"
	KindPoints DetectionKind = "points"
)

// RunStatus is the lifecycle state of a detection run.
type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Terminal reports whether the run will not change any more.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DetectionRun is one object-detection request and its outcome.
type DetectionRun struct {
	ID           string          `json:"id"`
	Kind         DetectionKind   `json:"kind"`
	Status       RunStatus       `json:"status"`
	BoundingBox  geospatial.BBox `json:"bounding_box"`
	Prompt       string          `json:"prompt,omitempty"`
	Request      json.RawMessage `json:"request,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	FeatureCount int             `json:"feature_count"`
	TileCount    int             `json:"tile_count"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// TextPrompt is one entry of a multi-prompt text detection.
type TextPrompt struct {
	Value         string   `json:"value"`
	TextThreshold *float64 `json:"text_threshold,omitempty"`
	BoxThreshold  *float64 `json:"box_threshold,omitempty"`
}

// DisplayOptions controls how the raw prediction is reduced before it is returned.
type DisplayOptions struct {
	Mode    geospatial.DisplayMode `json:"mode,omitempty"`
	Corner  geospatial.Corner      `json:"corner,omitempty"`
	MinArea *float64               `json:"min_area,omitempty"`
}

// ReduceOptions converts the display options for geospatial.Reduce.
func (d DisplayOptions) ReduceOptions() geospatial.ReduceOptions {
	return geospatial.ReduceOptions{Mode: d.Mode, Corner: d.Corner, MinArea: d.MinArea}
}

// TextDetectionRequest asks for objects matching one or more text prompts
// inside a map extent or bounding box.
type TextDetectionRequest struct {
	Extent        json.RawMessage  `json:"extent,omitempty"`
	BoundingBox   *geospatial.BBox `json:"bounding_box,omitempty"`
	CRS           string           `json:"crs,omitempty"`
	TextPrompt    string           `json:"text_prompt,omitempty"`
	TextPrompts   []TextPrompt     `json:"text_prompts,omitempty"`
	ZoomLevel     int              `json:"zoom_level,omitempty"`
	BoxThreshold  *float64         `json:"box_threshold,omitempty"`
	TextThreshold *float64         `json:"text_threshold,omitempty"`
	Display       DisplayOptions   `json:"display"`
}

// PointDetectionRequest asks for the objects under a set of prompt points.
type PointDetectionRequest struct {
	PointsInclude []orb.Point    `json:"points_include"`
	PointsExclude []orb.Point    `json:"points_exclude,omitempty"`
	ZoomLevel     int            `json:"zoom_level,omitempty"`
	BoxThreshold  *float64       `json:"box_threshold,omitempty"`
	Display       DisplayOptions `json:"display"`
}

// PredictionRequest is the body sent to the prediction service.
type PredictionRequest struct {
	BoundingBox   geospatial.BBox `json:"bounding_box"`
	TextPrompt    string          `json:"text_prompt,omitempty"`
	TextPrompts   []TextPrompt    `json:"text_prompts,omitempty"`
	PointsInclude []orb.Point     `json:"points_include,omitempty"`
	PointsExclude []orb.Point     `json:"points_exclude,omitempty"`
	ZoomLevel     int             `json:"zoom_level"`
	BoxThreshold  float64         `json:"box_threshold"`
	TextThreshold float64         `json:"text_threshold,omitempty"`
}

// SubmitRequest queues a detection for the asynchronous worker.
type SubmitRequest struct {
	Kind   DetectionKind          `json:"kind"`
	Text   *TextDetectionRequest  `json:"text,omitempty"`
	Points *PointDetectionRequest `json:"points,omitempty"`
}

// DetectionEvent is published when a run changes state.
type DetectionEvent struct {
	RunID        string        `json:"run_id"`
	Kind         DetectionKind `json:"kind"`
	Status       RunStatus     `json:"status"`
	FeatureCount int           `json:"feature_count,omitempty"`
	Error        string        `json:"error,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// TileSummary describes the imagery tiles a bounding box needs at one zoom.
type TileSummary struct {
	BoundingBox geospatial.BBox      `json:"bounding_box"`
	Zoom        int                  `json:"zoom"`
	Range       geospatial.TileRange `json:"range"`
	Count       int                  `json:"count"`
	Quadkeys    []string             `json:"quadkeys,omitempty"`
}
