package geospatial

import (
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// EarthRadius is the spherical Web Mercator radius in meters. It is the WGS 84
// semi-major axis used as a sphere, so results drift slightly at high latitudes.
const EarthRadius = 6378137.0

// MercatorToGeographic converts spherical Web Mercator meters to degrees.
// Latitude approaches ±90 asymptotically as |y| grows; no clamping is done.
// The input must be planar: feeding it degrees gives nonsense.
func MercatorToGeographic(x, y float64) (lon, lat float64) {
	lon = (x / EarthRadius) * (180 / math.Pi)
	lat = (math.Pi/2 - 2*math.Atan(math.Exp(-y/EarthRadius))) * (180 / math.Pi)
	return lon, lat
}

// GeographicToMercator is the inverse of MercatorToGeographic.
func GeographicToMercator(lon, lat float64) (x, y float64) {
	x = lon * math.Pi / 180 * EarthRadius
	y = EarthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

// BBoxToGeographic reprojects a Web Mercator box corner by corner:
// west/south from the southwest corner, east/north from the northeast one.
func BBoxToGeographic(b BBox) BBox {
	west, south := MercatorToGeographic(b.West, b.South)
	east, north := MercatorToGeographic(b.East, b.North)
	return BBox{West: west, South: south, East: east, North: north}
}

// IsWebMercatorCRS reports whether crs names spherical Web Mercator.
func IsWebMercatorCRS(crs string) bool {
	switch strings.ToUpper(strings.TrimSpace(crs)) {
	case "EPSG:3857", "EPSG:900913", "EPSG:102100", "ESRI:102100":
		return true
	}
	return false
}

// ReprojectFeatureCollection rewrites every feature geometry of fc from
// EPSG:3857 to EPSG:4326 in place.
func ReprojectFeatureCollection(fc *geojson.FeatureCollection) {
	if fc == nil {
		return
	}
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		f.Geometry = reprojectGeometry(f.Geometry)
	}
}

func reprojectPoint(p orb.Point) orb.Point {
	lon, lat := MercatorToGeographic(p[0], p[1])
	return orb.Point{lon, lat}
}

func reprojectPoints(ps []orb.Point) {
	for i := range ps {
		ps[i] = reprojectPoint(ps[i])
	}
}

func reprojectGeometry(g orb.Geometry) orb.Geometry {
	switch geom := g.(type) {
	case orb.Point:
		return reprojectPoint(geom)
	case orb.MultiPoint:
		reprojectPoints(geom)
	case orb.LineString:
		reprojectPoints(geom)
	case orb.Ring:
		reprojectPoints(geom)
	case orb.MultiLineString:
		for _, ls := range geom {
			reprojectPoints(ls)
		}
	case orb.Polygon:
		for _, r := range geom {
			reprojectPoints(r)
		}
	case orb.MultiPolygon:
		for _, poly := range geom {
			for _, r := range poly {
				reprojectPoints(r)
			}
		}
	case orb.Collection:
		for i := range geom {
			geom[i] = reprojectGeometry(geom[i])
		}
	}
	return g
}
