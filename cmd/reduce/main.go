// Command reduce applies the display reductions to a GeoJSON prediction file
// offline, writing the reduced FeatureCollection to stdout.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/geodetect/internal/pkg/geospatial"
)

func main() {
	mode := flag.String("mode", "", "display mode: segments, centroids or corners")
	corner := flag.String("corner", "", "corner for corners mode: top-left, top-right, bottom-left or bottom-right")
	minArea := flag.Float64("min-area", -1, "drop polygons smaller than this area; negative disables")
	crs := flag.String("crs", "EPSG:4326", "CRS of the input geometries")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: reduce [flags] [in.geojson|-] [mode] [min_area]")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() > 1 {
		*mode = flag.Arg(1)
	}
	if flag.NArg() > 2 {
		v, err := strconv.ParseFloat(flag.Arg(2), 64)
		if err != nil {
			log.Fatalf("min_area: %v", err)
		}
		*minArea = v
	}

	data, err := readInput(flag.Arg(0))
	if err != nil {
		log.Fatalf("read: %v", err)
	}

	opts, err := options(*mode, *corner, *minArea)
	if err != nil {
		log.Fatal(err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		log.Fatalf("input is not a GeoJSON FeatureCollection: %v", err)
	}
	if geospatial.IsWebMercatorCRS(*crs) {
		geospatial.ReprojectFeatureCollection(fc)
	}

	out, err := geospatial.Reduce(fc, opts)
	if err != nil {
		log.Fatal(err)
	}
	body, err := out.MarshalJSON()
	if err != nil {
		log.Fatalf("encode: %v", err)
	}
	if _, err := os.Stdout.Write(append(body, '\n')); err != nil {
		log.Fatalf("write: %v", err)
	}
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func options(mode, corner string, minArea float64) (geospatial.ReduceOptions, error) {
	var opts geospatial.ReduceOptions
	m, err := geospatial.ParseDisplayMode(mode)
	if err != nil {
		return opts, err
	}
	opts.Mode = m
	if m == geospatial.DisplayCorners {
		c, err := geospatial.ParseCorner(corner)
		if err != nil {
			return opts, err
		}
		opts.Corner = c
	}
	if minArea >= 0 {
		opts.MinArea = &minArea
	}
	return opts, nil
}
