package render

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/marblecutter-go/tilecutter/catalog"
	"github.com/marblecutter-go/tilecutter/format"
	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/mosaic"
)

// halfArcSecond is half of 1/3600 of a degree, the fringe skadi.py's _bbox
// adds on every side of a 1x1 degree SRTMHGT cell so adjacent tiles share an
// overlapping edge pixel.
const halfArcSecond = (1.0 / 3600.0) * 0.5

// SkadiShape is the canonical SRTM void-filled cell size: 3601x3601 samples
// at 1 arc-second, per skadi.py's SHAPE.
var SkadiShape = geom.Shape{Height: 3601, Width: 3601}

var skadiNamePattern = regexp.MustCompile(`^([NS])([0-9]{2})([EW])([0-9]{3})$`)

// ParseSkadiTileName parses an SRTMHGT filename stem ("N37W123") into its
// lower-left WGS84 corner (lon, lat), per skadi.py's _parse_skadi_tile.
func ParseSkadiTileName(name string) (lon, lat int, err error) {
	m := skadiNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, fmt.Errorf("render: %q is not a valid skadi tile name", name)
	}
	latAbs, _ := strconv.Atoi(m[2])
	lonAbs, _ := strconv.Atoi(m[4])
	lat = latAbs
	if m[1] == "S" {
		lat = -latAbs
	}
	lon = lonAbs
	if m[3] == "W" {
		lon = -lonAbs
	}
	return lon, lat, nil
}

// SkadiBounds computes the WGS84 bounds of a 1x1 degree SRTMHGT cell,
// including the half-arc-second fringe on every side, per skadi.py's _bbox.
func SkadiBounds(lon, lat int) geom.Bounds {
	minX := float64(lon) - halfArcSecond
	minY := float64(lat) - halfArcSecond
	maxX := float64(lon+1) + halfArcSecond
	maxY := float64(lat+1) + halfArcSecond
	return geom.NewBounds(minX, minY, maxX, maxY, geom.WGS84)
}

// RenderSkadi renders the named SRTMHGT cell ("N37W123") as gzipped int16
// elevation data, per skadi.py's render_tile.
func RenderSkadi(ctx context.Context, log *zap.SugaredLogger, reader mosaic.WindowReader, tileName string, cat catalog.Catalog, sources []catalog.Source) (*Result, error) {
	lon, lat, err := ParseSkadiTileName(tileName)
	if err != nil {
		return nil, err
	}
	bounds := SkadiBounds(lon, lat)

	req := Request{
		Bounds:    bounds,
		Shape:     SkadiShape,
		TargetCRS: geom.WGS84,
		Catalog:   cat,
		Sources:   sources,
		Format:    format.Skadi{},
		Bands:     1,
	}
	return Render(ctx, log, reader, req)
}
