// Package geom provides the bounds, resolution and CRS primitives the rest of
// the render pipeline is built on. It generalizes the point/bound math the
// teacher package embedded directly in its COG reader (geometry.go,
// mercatorToWGS84/wgs84ToMercator in cog.go) into a CRS-aware type that every
// other package shares.
package geom

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Well-known CRS identifiers supported at the render boundary. Source rasters
// may carry any other CRS string; they are warped to one of these on read.
const (
	WebMercator = "EPSG:3857"
	WGS84       = "EPSG:4326"
)

// mercatorExtent is the half-extent of the EPSG:3857 square in meters.
const mercatorExtent = 20037508.342789244

// Bounds is a bounding box paired with the CRS it is expressed in. Equality
// between two Bounds requires identical coordinates and canonical CRS codes;
// there is no implicit reprojection.
type Bounds struct {
	Min, Max orb.Point
	CRS      string
}

// NewBounds builds a Bounds from raw ordinates, matching the spec's
// (minx, miny, maxx, maxy) tuple convention.
func NewBounds(minx, miny, maxx, maxy float64, crs string) Bounds {
	return Bounds{Min: orb.Point{minx, miny}, Max: orb.Point{maxx, maxy}, CRS: crs}
}

// Bound converts to an orb.Bound, discarding the CRS tag.
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{Min: b.Min, Max: b.Max}
}

// IsEmpty reports whether the bounds enclose no area.
func (b Bounds) IsEmpty() bool {
	return b.Min[0] >= b.Max[0] || b.Min[1] >= b.Max[1]
}

// Intersects reports whether two same-CRS bounds overlap.
func (b Bounds) Intersects(other Bounds) bool {
	if b.CRS != other.CRS {
		panic("geom: Intersects called on bounds with differing CRS")
	}
	return b.Min[0] < other.Max[0] && b.Max[0] > other.Min[0] &&
		b.Min[1] < other.Max[1] && b.Max[1] > other.Min[1]
}

// Intersection returns the overlapping region of b and other. The second
// return value is false when the bounds do not intersect.
func (b Bounds) Intersection(other Bounds) (Bounds, bool) {
	if b.CRS != other.CRS {
		panic("geom: Intersection called on bounds with differing CRS")
	}
	minx := math.Max(b.Min[0], other.Min[0])
	miny := math.Max(b.Min[1], other.Min[1])
	maxx := math.Min(b.Max[0], other.Max[0])
	maxy := math.Min(b.Max[1], other.Max[1])
	out := NewBounds(minx, miny, maxx, maxy, b.CRS)
	return out, !out.IsEmpty()
}

// Centroid returns the midpoint of the bounds.
func (b Bounds) Centroid() orb.Point {
	return orb.Point{(b.Min[0] + b.Max[0]) / 2, (b.Min[1] + b.Max[1]) / 2}
}

// Area returns the planar area in the bounds' own CRS units. This is only
// meaningful for projected CRSes; callers needing true ground area should
// reproject to Mercator/WGS84 first and use resolutionInMeters-style math.
func (b Bounds) Area() float64 {
	if b.IsEmpty() {
		return 0
	}
	return (b.Max[0] - b.Min[0]) * (b.Max[1] - b.Min[1])
}

// In reprojects the bounds into targetCRS. Only the two CRSes the render
// boundary supports (spherical Mercator and WGS84) are handled; anything else
// returns an error, matching spec.md's "Supported CRSes at the boundary"
// restriction in §4.1.
func (b Bounds) In(targetCRS string) (Bounds, error) {
	if b.CRS == targetCRS {
		return b, nil
	}
	switch {
	case b.CRS == WGS84 && targetCRS == WebMercator:
		return wgs84ToMercator(b), nil
	case b.CRS == WebMercator && targetCRS == WGS84:
		return mercatorToWGS84(b), nil
	default:
		return Bounds{}, fmt.Errorf("geom: unsupported reprojection %s -> %s", b.CRS, targetCRS)
	}
}

func wgs84ToMercator(b Bounds) Bounds {
	lonToX := func(lon float64) float64 { return lon / 180.0 * mercatorExtent }
	latToY := func(lat float64) float64 {
		return math.Log(math.Tan((90.0+lat)*math.Pi/360.0)) / math.Pi * mercatorExtent
	}
	return Bounds{
		Min: orb.Point{lonToX(b.Min[0]), latToY(b.Min[1])},
		Max: orb.Point{lonToX(b.Max[0]), latToY(b.Max[1])},
		CRS: WebMercator,
	}
}

func mercatorToWGS84(b Bounds) Bounds {
	xToLon := func(x float64) float64 { return x / mercatorExtent * 180.0 }
	yToLat := func(y float64) float64 {
		return math.Atan(math.Exp(y*math.Pi/mercatorExtent))*360.0/math.Pi - 90.0
	}
	return Bounds{
		Min: orb.Point{xToLon(b.Min[0]), yToLat(b.Min[1])},
		Max: orb.Point{xToLon(b.Max[0]), yToLat(b.Max[1])},
		CRS: WGS84,
	}
}

// Extent returns the global extent of a supported CRS: the full Web Mercator
// square, or the full WGS84 lat/lon range.
func Extent(crs string) (Bounds, error) {
	switch crs {
	case WebMercator:
		return NewBounds(-mercatorExtent, -mercatorExtent, mercatorExtent, mercatorExtent, WebMercator), nil
	case WGS84:
		return NewBounds(-180, -90, 180, 90, WGS84), nil
	default:
		return Bounds{}, fmt.Errorf("geom: no global extent known for CRS %s", crs)
	}
}

// Shape is a (height, width) pixel shape, matching the spec's (height, width)
// ordering for numpy-style arrays.
type Shape struct {
	Height, Width int
}
