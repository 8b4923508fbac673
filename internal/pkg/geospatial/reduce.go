package geospatial

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DisplayMode selects how a detection result is reduced for rendering.
type DisplayMode string

const (
	DisplaySegments  DisplayMode = "segments"
	DisplayCentroids DisplayMode = "centroids"
	DisplayCorners   DisplayMode = "corners"
)

// Corner picks which bounds corner a feature collapses to in DisplayCorners.
type Corner string

const (
	CornerTopRight    Corner = "top-right"
	CornerTopLeft     Corner = "top-left"
	CornerBottomLeft  Corner = "bottom-left"
	CornerBottomRight Corner = "bottom-right"
)

// ParseDisplayMode maps a query or JSON value to a DisplayMode. Empty means segments.
func ParseDisplayMode(s string) (DisplayMode, error) {
	switch DisplayMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DisplaySegments:
		return DisplaySegments, nil
	case DisplayCentroids:
		return DisplayCentroids, nil
	case DisplayCorners:
		return DisplayCorners, nil
	}
	return "", &InvalidInputError{Reason: fmt.Sprintf("unknown display mode %q", s)}
}

// ParseCorner maps a query or JSON value to a Corner. Empty means bottom-right.
func ParseCorner(s string) (Corner, error) {
	switch Corner(strings.ToLower(strings.TrimSpace(s))) {
	case "", CornerBottomRight:
		return CornerBottomRight, nil
	case CornerTopRight:
		return CornerTopRight, nil
	case CornerTopLeft:
		return CornerTopLeft, nil
	case CornerBottomLeft:
		return CornerBottomLeft, nil
	}
	return "", &InvalidInputError{Reason: fmt.Sprintf("unknown corner %q", s)}
}

// ReduceOptions configures Reduce. A nil MinArea disables area filtering.
type ReduceOptions struct {
	Mode    DisplayMode `json:"display_mode,omitempty"`
	Corner  Corner      `json:"corner,omitempty"`
	MinArea *float64    `json:"min_area,omitempty"`
}

// FilterByArea keeps polygonal features whose outer ring area is >= minArea.
// Non-polygonal features are kept. Input features are not modified.
func FilterByArea(fc *geojson.FeatureCollection, minArea float64) (*geojson.FeatureCollection, error) {
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out, nil
	}
	for i, f := range fc.Features {
		if f == nil {
			continue
		}
		area, ok, err := PolygonArea(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		if ok && area < minArea {
			continue
		}
		out.Append(f)
	}
	return out, nil
}

// Reduce filters and collapses a detection result for rendering. Output
// features carry objectid = index+1 plus a copy of the input properties.
func Reduce(fc *geojson.FeatureCollection, opts ReduceOptions) (*geojson.FeatureCollection, error) {
	src := fc
	if src == nil {
		src = geojson.NewFeatureCollection()
	}
	if opts.MinArea != nil {
		filtered, err := FilterByArea(src, *opts.MinArea)
		if err != nil {
			return nil, err
		}
		src = filtered
	}

	mode := opts.Mode
	if mode == "" {
		mode = DisplaySegments
	}
	corner := opts.Corner
	if corner == "" {
		corner = CornerBottomRight
	}

	out := geojson.NewFeatureCollection()
	for i, f := range src.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		geom := f.Geometry
		switch mode {
		case DisplayCentroids:
			ring, ok, err := outerRing(f.Geometry)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			if ok {
				c, err := Centroid(ring)
				if err != nil {
					return nil, fmt.Errorf("feature %d: %w", i, err)
				}
				geom = c
			}
		case DisplayCorners:
			geom = cornerPoint(f.Geometry.Bound(), corner)
		}

		nf := geojson.NewFeature(geom)
		nf.ID = f.ID
		nf.Properties = f.Properties.Clone()
		if nf.Properties == nil {
			nf.Properties = geojson.Properties{}
		}
		nf.Properties["objectid"] = len(out.Features) + 1
		out.Append(nf)
	}
	return out, nil
}

func cornerPoint(b orb.Bound, c Corner) orb.Point {
	switch c {
	case CornerTopRight:
		return orb.Point{b.Max[0], b.Max[1]}
	case CornerTopLeft:
		return orb.Point{b.Min[0], b.Max[1]}
	case CornerBottomLeft:
		return orb.Point{b.Min[0], b.Min[1]}
	default:
		return orb.Point{b.Max[0], b.Min[1]}
	}
}
