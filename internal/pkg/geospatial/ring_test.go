package geospatial_test

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"

	"github.com/samirrijal/geodetect/internal/pkg/geospatial"
)

var square = orb.Ring{{0, 0}, {0, 2}, {2, 2}, {2, 0}, {0, 0}}

func TestCentroid_Square(t *testing.T) {
	c, err := geospatial.Centroid(square)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != (orb.Point{1, 1}) {
		t.Errorf("expected (1,1), got %v", c)
	}
}

func TestCentroid_VertexMean(t *testing.T) {
	// Extra vertices on one edge pull the vertex mean away from the area centroid.
	ring := orb.Ring{{0, 0}, {1, 0}, {2, 0}, {3, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}
	c, err := geospatial.Centroid(ring)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := orb.Point{14.0 / 7.0, 8.0 / 7.0}
	if c != want {
		t.Errorf("expected %v, got %v", want, c)
	}
}

func TestCentroid_Degenerate(t *testing.T) {
	for _, ring := range []orb.Ring{nil, {{1, 1}}} {
		_, err := geospatial.Centroid(ring)
		var geomErr *geospatial.InvalidGeometryError
		if !errors.As(err, &geomErr) {
			t.Errorf("ring %v: expected InvalidGeometryError, got %v", ring, err)
		}
	}
}

func TestArea_Square(t *testing.T) {
	a, err := geospatial.Area(square)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != 4 {
		t.Errorf("expected 4, got %v", a)
	}
}

func TestArea_OrientationIndependent(t *testing.T) {
	reversed := orb.Ring{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}
	a, err := geospatial.Area(reversed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != 4 {
		t.Errorf("expected 4, got %v", a)
	}
}

func TestArea_Degenerate(t *testing.T) {
	_, err := geospatial.Area(orb.Ring{{1, 1}})
	var geomErr *geospatial.InvalidGeometryError
	if !errors.As(err, &geomErr) {
		t.Errorf("expected InvalidGeometryError, got %v", err)
	}
}

func TestPolygonArea(t *testing.T) {
	mp := orb.MultiPolygon{{square}, {orb.Ring{{10, 10}, {10, 11}, {11, 11}, {11, 10}, {10, 10}}}}
	a, ok, err := geospatial.PolygonArea(mp)
	if err != nil || !ok {
		t.Fatalf("unexpected result ok=%v err=%v", ok, err)
	}
	if a != 5 {
		t.Errorf("expected 5, got %v", a)
	}

	_, ok, err = geospatial.PolygonArea(orb.Point{1, 1})
	if ok || err != nil {
		t.Errorf("expected point to be non-polygonal, got ok=%v err=%v", ok, err)
	}
}
