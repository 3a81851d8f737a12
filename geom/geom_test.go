package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundsIntersectionOverlap(t *testing.T) {
	a := NewBounds(0, 0, 10, 10, WGS84)
	b := NewBounds(5, 5, 15, 15, WGS84)

	got, ok := a.Intersection(b)
	require.True(t, ok)
	assert.Equal(t, NewBounds(5, 5, 10, 10, WGS84), got)
}

func TestBoundsIntersectionDisjoint(t *testing.T) {
	a := NewBounds(0, 0, 1, 1, WGS84)
	b := NewBounds(5, 5, 6, 6, WGS84)

	_, ok := a.Intersection(b)
	assert.False(t, ok)
}

func TestBoundsInSameCRSIsNoop(t *testing.T) {
	b := NewBounds(1, 2, 3, 4, WGS84)
	got, err := b.In(WGS84)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestBoundsInRejectsUnsupportedCRS(t *testing.T) {
	b := NewBounds(1, 2, 3, 4, "EPSG:2263")
	_, err := b.In(WGS84)
	assert.Error(t, err)
}

func TestBoundsInRoundTripsWGS84AndMercator(t *testing.T) {
	wgs := NewBounds(-122.5, 37.0, -122.0, 37.8, WGS84)

	merc, err := wgs.In(WebMercator)
	require.NoError(t, err)
	assert.Equal(t, WebMercator, merc.CRS)

	back, err := merc.In(WGS84)
	require.NoError(t, err)
	assert.InDelta(t, wgs.Min[0], back.Min[0], 1e-6)
	assert.InDelta(t, wgs.Min[1], back.Min[1], 1e-6)
	assert.InDelta(t, wgs.Max[0], back.Max[0], 1e-6)
	assert.InDelta(t, wgs.Max[1], back.Max[1], 1e-6)
}

func TestExtentWGS84CoversFullLatitudeRange(t *testing.T) {
	e, err := Extent(WGS84)
	require.NoError(t, err)
	assert.Equal(t, -90.0, e.Min[1])
	assert.Equal(t, 90.0, e.Max[1])
	assert.Equal(t, -180.0, e.Min[0])
	assert.Equal(t, 180.0, e.Max[0])
}

func TestExtentWebMercatorIsSquare(t *testing.T) {
	e, err := Extent(WebMercator)
	require.NoError(t, err)
	assert.InDelta(t, e.Max[0]-e.Min[0], e.Max[1]-e.Min[1], 1e-6)
}

func TestExtentRejectsUnknownCRS(t *testing.T) {
	_, err := Extent("EPSG:9999")
	assert.Error(t, err)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, NewBounds(5, 5, 5, 5, WGS84).IsEmpty())
	assert.False(t, NewBounds(0, 0, 1, 1, WGS84).IsEmpty())
}

func TestResolutionDividesExtentByShape(t *testing.T) {
	b := NewBounds(0, 0, 256, 256, WebMercator)
	dx, dy := Resolution(b, Shape{Height: 256, Width: 256})
	assert.Equal(t, 1.0, dx)
	assert.Equal(t, 1.0, dy)
}

func TestResolutionInMetersScalesByLatitudeForWGS84(t *testing.T) {
	equator := NewBounds(-1, -0.5, 1, 0.5, WGS84)
	highLat := NewBounds(-1, 59.5, 1, 60.5, WGS84)

	dxEq, _ := ResolutionInMeters(equator, Shape{Height: 256, Width: 256})
	dxHigh, _ := ResolutionInMeters(highLat, Shape{Height: 256, Width: 256})

	assert.Less(t, dxHigh, dxEq)
}

func TestZoomForResolutionIsMonotoneNonIncreasing(t *testing.T) {
	zCoarse := ZoomForResolution(1000, RoundNearest)
	zFine := ZoomForResolution(1, RoundNearest)
	assert.LessOrEqual(t, zCoarse, zFine)
}

func TestZoomForResolutionClampsToRange(t *testing.T) {
	assert.Equal(t, 0, ZoomForResolution(1e12, RoundNearest))
	assert.Equal(t, maxZoom, ZoomForResolution(1e-6, RoundNearest))
}

func TestResolutionForZoomIsInverseOfZoomForResolution(t *testing.T) {
	for z := 0; z <= 20; z++ {
		res := ResolutionForZoom(z)
		got := ZoomForResolution(res, RoundNearest)
		assert.InDelta(t, z, got, 1)
	}
}

func TestResolutionForZoomDecreasesWithZoom(t *testing.T) {
	assert.Greater(t, ResolutionForZoom(0), ResolutionForZoom(10))
}

func TestCentroidIsMidpoint(t *testing.T) {
	b := NewBounds(0, 0, 10, 20, WGS84)
	c := b.Centroid()
	assert.Equal(t, 5.0, c[0])
	assert.Equal(t, 10.0, c[1])
}

func TestAreaOfEmptyBoundsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, NewBounds(5, 5, 5, 5, WGS84).Area())
}

func TestIntersectsPanicsOnCRSMismatch(t *testing.T) {
	a := NewBounds(0, 0, 1, 1, WGS84)
	b := NewBounds(0, 0, 1, 1, WebMercator)
	assert.Panics(t, func() { a.Intersects(b) })
}

func TestMercatorLatitudeIsWithinValidRange(t *testing.T) {
	lat := mercatorLatitude(0)
	assert.InDelta(t, 0.0, lat, 1e-9)
	assert.True(t, math.Abs(mercatorLatitude(mercatorExtent)) < 90)
}
