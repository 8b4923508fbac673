package geospatial

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// SpatialReference identifies the coordinate system of an Extent.
type SpatialReference struct {
	WKID       int `json:"wkid"`
	LatestWKID int `json:"latestWkid,omitempty"`
}

// Extent is the xmin/ymin/xmax/ymax rectangle produced by ArcGIS sketch tools.
type Extent struct {
	XMin             float64           `json:"xmin"`
	YMin             float64           `json:"ymin"`
	XMax             float64           `json:"xmax"`
	YMax             float64           `json:"ymax"`
	SpatialReference *SpatialReference `json:"spatialReference,omitempty"`
}

// Bounds is satisfied by bounds objects exposing edge accessors, such as a
// Leaflet LatLngBounds mirrored into Go.
type Bounds interface {
	GetWest() float64
	GetSouth() float64
	GetEast() float64
	GetNorth() float64
}

var extentFields = [4]string{"xmin", "ymin", "xmax", "ymax"}

// webMercatorWKIDs are the well-known IDs ArcGIS reports for spherical Web Mercator.
var webMercatorWKIDs = map[int]bool{3857: true, 102100: true, 102113: true, 900913: true}

// NormalizeExtent turns a rectangle descriptor into a BBox with
// west=xmin, south=ymin, east=xmax, north=ymax. No reprojection happens here.
//
// Accepted inputs are Extent, *Extent, Bounds, a decoded JSON object
// (map[string]any) and raw JSON bytes. Anything else, or an object missing
// one of the four fields, yields *InvalidInputError.
func NormalizeExtent(v any) (BBox, error) {
	switch e := v.(type) {
	case nil:
		return BBox{}, &InvalidInputError{Reason: "extent is missing"}
	case Extent:
		return BBox{West: e.XMin, South: e.YMin, East: e.XMax, North: e.YMax}, nil
	case *Extent:
		if e == nil {
			return BBox{}, &InvalidInputError{Reason: "extent is missing"}
		}
		return NormalizeExtent(*e)
	case Bounds:
		if isNilPointer(e) {
			return BBox{}, &InvalidInputError{Reason: "extent is missing"}
		}
		return BBox{West: e.GetWest(), South: e.GetSouth(), East: e.GetEast(), North: e.GetNorth()}, nil
	case map[string]any:
		return normalizeMap(e)
	case json.RawMessage:
		return normalizeJSON(e)
	case []byte:
		return normalizeJSON(e)
	default:
		return BBox{}, &InvalidInputError{Reason: fmt.Sprintf("extent must be an object, got %T", v)}
	}
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// ExtentIsWebMercator reports whether a raw extent declares a Web Mercator
// spatial reference. Extents without one are reported as false.
func ExtentIsWebMercator(v any) bool {
	sr := extentRef(v)
	return sr != nil && isWebMercatorRef(*sr)
}

// ExtentWKID returns the well-known ID an extent declares, preferring
// latestWkid, or 0 when it carries no spatial reference.
func ExtentWKID(v any) int {
	sr := extentRef(v)
	switch {
	case sr == nil:
		return 0
	case sr.LatestWKID != 0:
		return sr.LatestWKID
	}
	return sr.WKID
}

func extentRef(v any) *SpatialReference {
	switch e := v.(type) {
	case Extent:
		return e.SpatialReference
	case *Extent:
		if e == nil {
			return nil
		}
		return e.SpatialReference
	case json.RawMessage:
		return decodeRef(e)
	case []byte:
		return decodeRef(e)
	case map[string]any:
		raw, err := json.Marshal(e)
		if err != nil {
			return nil
		}
		return decodeRef(raw)
	}
	return nil
}

func decodeRef(data []byte) *SpatialReference {
	var ext Extent
	if err := json.Unmarshal(data, &ext); err != nil {
		return nil
	}
	return ext.SpatialReference
}

func isWebMercatorRef(sr SpatialReference) bool {
	return webMercatorWKIDs[sr.WKID] || webMercatorWKIDs[sr.LatestWKID]
}

func normalizeJSON(data []byte) (BBox, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return BBox{}, &InvalidInputError{Reason: "extent is missing"}
	}
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return BBox{}, &InvalidInputError{Reason: "extent is not valid JSON"}
	}
	m, ok := decoded.(map[string]any)
	if !ok {
		return BBox{}, &InvalidInputError{Reason: "extent must be an object"}
	}
	return normalizeMap(m)
}

func normalizeMap(m map[string]any) (BBox, error) {
	if m == nil {
		return BBox{}, &InvalidInputError{Reason: "extent is missing"}
	}
	var vals [4]float64
	for i, field := range extentFields {
		raw, ok := m[field]
		if !ok {
			return BBox{}, &InvalidInputError{Reason: "extent object missing required property " + field}
		}
		f, ok := toFloat(raw)
		if !ok {
			return BBox{}, &InvalidInputError{Reason: fmt.Sprintf("extent property %s must be a number", field)}
		}
		vals[i] = f
	}
	return BBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
