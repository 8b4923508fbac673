// Package spatialindex answers viewport queries over detection results.
package spatialindex

import (
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/geodetect/internal/pkg/geospatial"
)

// pointTolerance gives zero-area bounds (points, axis-aligned lines) a
// non-degenerate rectangle, which rtreego requires.
const pointTolerance = 1e-9

type entry struct {
	pos     int
	feature *geojson.Feature
	rect    rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect { return e.rect }

// Index is an R-tree over the features of one collection. It is read-only
// after construction and safe for concurrent queries.
type Index struct {
	tree *rtreego.Rtree
	size int
}

// New indexes every feature of fc that has a geometry.
func New(fc *geojson.FeatureCollection) *Index {
	idx := &Index{tree: rtreego.NewTree(2, 25, 50)}
	if fc == nil {
		return idx
	}
	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		rect, err := rectFor(f.Geometry.Bound())
		if err != nil {
			continue
		}
		idx.tree.Insert(&entry{pos: i, feature: f, rect: rect})
		idx.size++
	}
	return idx
}

// Len is the number of indexed features.
func (idx *Index) Len() int { return idx.size }

// Within returns the features whose bounds intersect b, in collection order.
func (idx *Index) Within(b geospatial.BBox) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	query, err := rectFor(b.Bound())
	if err != nil {
		return out
	}
	hits := idx.tree.SearchIntersect(query)
	found := make([]*entry, 0, len(hits))
	for _, h := range hits {
		found = append(found, h.(*entry))
	}
	sort.Slice(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	for _, e := range found {
		out.Append(e.feature)
	}
	return out
}

func rectFor(b orb.Bound) (rtreego.Rect, error) {
	lengths := []float64{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1]}
	for i := range lengths {
		if lengths[i] <= 0 {
			lengths[i] = pointTolerance
		}
	}
	return rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, lengths)
}
