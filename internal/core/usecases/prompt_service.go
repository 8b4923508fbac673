package usecases

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/samirrijal/geodetect/internal/pkg/geospatial"
)

// PromptService edits point-prompt sets. The set travels with each request,
// so the service holds no per-user state.
type PromptService struct {
	epsilon float64
}

// NewPromptService creates a PromptService. A non-positive epsilon means
// geospatial.DefaultEpsilon.
func NewPromptService(epsilon float64) *PromptService {
	if epsilon <= 0 {
		epsilon = geospatial.DefaultEpsilon
	}
	return &PromptService{epsilon: epsilon}
}

// AddPoint returns a copy of set with p appended to the collection for kind.
func (s *PromptService) AddPoint(set geospatial.PointPromptSet, p orb.Point, kind geospatial.PointKind) (geospatial.PointPromptSet, error) {
	if err := checkLonLat(p); err != nil {
		return set, err
	}
	out := clonePromptSet(set)
	if err := out.Add(p, kind); err != nil {
		return set, err
	}
	return out, nil
}

// RemovePoint returns a copy of set without the points within epsilon of p,
// and how many were removed.
func (s *PromptService) RemovePoint(set geospatial.PointPromptSet, p orb.Point) (geospatial.PointPromptSet, int) {
	out := clonePromptSet(set)
	n := out.RemoveNear(p, s.epsilon)
	return out, n
}

func clonePromptSet(set geospatial.PointPromptSet) geospatial.PointPromptSet {
	return geospatial.PointPromptSet{
		Include: append([]orb.Point{}, set.Include...),
		Exclude: append([]orb.Point{}, set.Exclude...),
	}
}

func checkLonLat(p orb.Point) error {
	if p[0] < -180 || p[0] > 180 || p[1] < -90 || p[1] > 90 {
		return &geospatial.InvalidInputError{Reason: fmt.Sprintf("point %v is not a longitude/latitude pair", p)}
	}
	return nil
}
