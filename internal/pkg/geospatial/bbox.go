package geospatial

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// BBox is a geographic bounding box in decimal degrees.
// On the wire it is the array [west, south, east, north].
type BBox struct {
	West  float64
	South float64
	East  float64
	North float64
}

// Array returns the box in [west, south, east, north] order.
func (b BBox) Array() [4]float64 {
	return [4]float64{b.West, b.South, b.East, b.North}
}

// Valid reports whether the corners are ordered and inside WGS 84 ranges.
func (b BBox) Valid() bool {
	return b.West <= b.East && b.South <= b.North &&
		b.West >= -180 && b.East <= 180 &&
		b.South >= -90 && b.North <= 90
}

// Bound converts the box to an orb.Bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.West, b.South}, Max: orb.Point{b.East, b.North}}
}

func (b BBox) String() string {
	return fmt.Sprintf("%.7f,%.7f,%.7f,%.7f", b.West, b.South, b.East, b.North)
}

func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Array())
}

func (b *BBox) UnmarshalJSON(data []byte) error {
	var vals []float64
	if err := json.Unmarshal(data, &vals); err != nil {
		return &InvalidInputError{Reason: "bounding box must be an array of 4 numbers"}
	}
	if len(vals) != 4 {
		return &InvalidInputError{Reason: fmt.Sprintf("bounding box must contain exactly 4 coordinates, got %d", len(vals))}
	}
	*b = BBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}
	return nil
}

// ParseBBox parses "west,south,east,north" as found in query strings.
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, &InvalidInputError{Reason: "bbox must be west,south,east,north"}
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, &InvalidInputError{Reason: fmt.Sprintf("bbox value %q is not a number", p)}
		}
		vals[i] = v
	}
	return BBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}, nil
}
