package geospatial

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/stat"
)

// Centroid returns the vertex mean of a closed ring, leaving out the closing
// duplicate. It is not the area-weighted centroid; callers depend on the
// simpler average.
func Centroid(ring orb.Ring) (orb.Point, error) {
	n := len(ring) - 1
	if n <= 0 {
		return orb.Point{}, &InvalidGeometryError{Reason: fmt.Sprintf("ring has %d points, need at least 2", len(ring))}
	}
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		xs[i] = ring[i][0]
		ys[i] = ring[i][1]
	}
	return orb.Point{stat.Mean(xs, nil), stat.Mean(ys, nil)}, nil
}

// Area is the unsigned shoelace area of a closed ring, in the squared units
// of its coordinates. Degree rings give square degrees.
func Area(ring orb.Ring) (float64, error) {
	if len(ring) < 2 {
		return 0, &InvalidGeometryError{Reason: fmt.Sprintf("ring has %d points, need at least 2", len(ring))}
	}
	var sum float64
	for i := 0; i < len(ring)-1; i++ {
		sum += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return math.Abs(sum) / 2, nil
}

// outerRing returns the ring a polygonal geometry is measured and reduced by:
// the first ring of a Polygon, or of the first member of a MultiPolygon.
// ok is false for non-polygonal geometries.
func outerRing(g orb.Geometry) (ring orb.Ring, ok bool, err error) {
	switch geom := g.(type) {
	case orb.Polygon:
		if len(geom) == 0 {
			return nil, true, &InvalidGeometryError{Reason: "polygon has no rings"}
		}
		return geom[0], true, nil
	case orb.MultiPolygon:
		if len(geom) == 0 || len(geom[0]) == 0 {
			return nil, true, &InvalidGeometryError{Reason: "multipolygon has no rings"}
		}
		return geom[0][0], true, nil
	}
	return nil, false, nil
}

// PolygonArea measures the outer ring of a Polygon, or the sum of the outer
// rings of a MultiPolygon. ok is false for other geometry types.
func PolygonArea(g orb.Geometry) (area float64, ok bool, err error) {
	switch geom := g.(type) {
	case orb.Polygon:
		ring, _, err := outerRing(geom)
		if err != nil {
			return 0, true, err
		}
		a, err := Area(ring)
		return a, true, err
	case orb.MultiPolygon:
		if len(geom) == 0 {
			return 0, true, &InvalidGeometryError{Reason: "multipolygon has no rings"}
		}
		for _, poly := range geom {
			ring, _, err := outerRing(poly)
			if err != nil {
				return 0, true, err
			}
			a, err := Area(ring)
			if err != nil {
				return 0, true, err
			}
			area += a
		}
		return area, true, nil
	}
	return 0, false, nil
}
