package geospatial

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// DefaultEpsilon is the per-axis tolerance used when removing prompt points.
const DefaultEpsilon = 1e-7

// PointKind says whether a prompt point marks the object or the background.
type PointKind string

const (
	PointInclude PointKind = "include"
	PointExclude PointKind = "exclude"
)

// PointPromptSet holds the include/exclude points of a point prompt.
// Order within each slice carries no meaning.
type PointPromptSet struct {
	Include []orb.Point `json:"include"`
	Exclude []orb.Point `json:"exclude"`
}

// Add appends p to the collection for kind. Duplicates are allowed.
func (s *PointPromptSet) Add(p orb.Point, kind PointKind) error {
	switch kind {
	case PointInclude:
		s.Include = append(s.Include, p)
	case PointExclude:
		s.Exclude = append(s.Exclude, p)
	default:
		return &InvalidInputError{Reason: fmt.Sprintf("unknown point kind %q", kind)}
	}
	return nil
}

// RemoveNear drops every point in either collection lying within epsilon of
// p on both axes (a square window, not a radius). A non-positive epsilon
// means DefaultEpsilon. It returns how many points were removed.
func (s *PointPromptSet) RemoveNear(p orb.Point, epsilon float64) int {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	var removed int
	s.Include, removed = withoutNear(s.Include, p, epsilon)
	var n int
	s.Exclude, n = withoutNear(s.Exclude, p, epsilon)
	return removed + n
}

// Len is the total number of points held.
func (s PointPromptSet) Len() int {
	return len(s.Include) + len(s.Exclude)
}

func withoutNear(points []orb.Point, p orb.Point, epsilon float64) ([]orb.Point, int) {
	kept := make([]orb.Point, 0, len(points))
	for _, q := range points {
		if math.Abs(q[0]-p[0]) <= epsilon && math.Abs(q[1]-p[1]) <= epsilon {
			continue
		}
		kept = append(kept, q)
	}
	return kept, len(points) - len(kept)
}

// ZoomBuffer is the padding in degrees put around prompt points before
// imagery is fetched: 0.001° at zoom 19, halving with each level above it.
func ZoomBuffer(zoom int) float64 {
	return 0.001 / math.Pow(2, float64(zoom-19))
}

// BBoxFromPoints returns the box enclosing points, padded by buffer degrees.
func BBoxFromPoints(points []orb.Point, buffer float64) (BBox, error) {
	if len(points) == 0 {
		return BBox{}, &InvalidInputError{Reason: "at least one point is required"}
	}
	b := orb.MultiPoint(points).Bound()
	return BBox{
		West:  b.Min[0] - buffer,
		South: b.Min[1] - buffer,
		East:  b.Max[0] + buffer,
		North: b.Max[1] + buffer,
	}, nil
}
