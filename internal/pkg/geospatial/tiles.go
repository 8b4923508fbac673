package geospatial

import (
	"math"
	"strings"
)

// Tile is a slippy-map tile address.
type Tile struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Quadkey returns the Bing Maps quadkey of the tile.
func (t Tile) Quadkey() string {
	var sb strings.Builder
	for i := t.Z; i > 0; i-- {
		digit := byte('0')
		mask := 1 << (i - 1)
		if t.X&mask != 0 {
			digit++
		}
		if t.Y&mask != 0 {
			digit += 2
		}
		sb.WriteByte(digit)
	}
	return sb.String()
}

// TileRange is the half-open block of tiles [MinX,MaxX) x [MinY,MaxY) at Zoom.
type TileRange struct {
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
	Zoom int `json:"zoom"`
}

// Count is the number of tiles in the range.
func (r TileRange) Count() int {
	w := r.MaxX - r.MinX
	h := r.MaxY - r.MinY
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Tiles enumerates the range column by column.
func (r TileRange) Tiles() []Tile {
	tiles := make([]Tile, 0, r.Count())
	for x := r.MinX; x < r.MaxX; x++ {
		for y := r.MinY; y < r.MaxY; y++ {
			tiles = append(tiles, Tile{X: x, Y: y, Z: r.Zoom})
		}
	}
	return tiles
}

// TilesFor returns the tiles needed to cover b at zoom.
func TilesFor(b BBox, zoom int) TileRange {
	x0, y0 := deg2num(b.South, b.West, zoom)
	x1, y1 := deg2num(b.North, b.East, zoom)
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return TileRange{
		MinX: int(math.Floor(x0)),
		MinY: int(math.Floor(y0)),
		MaxX: int(math.Ceil(x1)),
		MaxY: int(math.Ceil(y1)),
		Zoom: zoom,
	}
}

// CountTiles is shorthand for TilesFor(b, zoom).Count().
func CountTiles(b BBox, zoom int) int {
	return TilesFor(b, zoom).Count()
}

func deg2num(lat, lon float64, zoom int) (x, y float64) {
	latR := lat * math.Pi / 180
	n := math.Pow(2, float64(zoom))
	x = (lon + 180) / 360 * n
	y = (1 - math.Log(math.Tan(latR)+1/math.Cos(latR))/math.Pi) / 2 * n
	return x, y
}
