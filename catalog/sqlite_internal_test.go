package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marblecutter-go/tilecutter/geom"
)

func TestShrinkUncoveredClipsFullWidthStrip(t *testing.T) {
	uncovered := geom.NewBounds(0, 0, 10, 10, geom.WGS84)
	covering := geom.NewBounds(-1, 0, 11, 4, geom.WGS84)

	got, ok := shrinkUncovered(uncovered, covering)
	require.True(t, ok)
	assert.InDelta(t, 4, got.Min[1], 1e-9)
	assert.InDelta(t, 10, got.Max[1], 1e-9)
}

func TestShrinkUncoveredClipsFullHeightStrip(t *testing.T) {
	uncovered := geom.NewBounds(0, 0, 10, 10, geom.WGS84)
	covering := geom.NewBounds(0, -1, 3, 11, geom.WGS84)

	got, ok := shrinkUncovered(uncovered, covering)
	require.True(t, ok)
	assert.InDelta(t, 3, got.Min[0], 1e-9)
	assert.InDelta(t, 10, got.Max[0], 1e-9)
}

func TestShrinkUncoveredFullyConsumedReportsFalse(t *testing.T) {
	uncovered := geom.NewBounds(0, 0, 10, 10, geom.WGS84)
	covering := geom.NewBounds(-1, -1, 11, 11, geom.WGS84)

	_, ok := shrinkUncovered(uncovered, covering)
	assert.False(t, ok)
}

func TestShrinkUncoveredNonAlignedOverlapShrinksArea(t *testing.T) {
	uncovered := geom.NewBounds(0, 0, 10, 10, geom.WGS84)
	covering := geom.NewBounds(4, 4, 7, 7, geom.WGS84)

	got, ok := shrinkUncovered(uncovered, covering)
	require.True(t, ok)
	assert.Less(t, got.Area(), uncovered.Area())
}

func TestShrinkUncoveredNoOverlapIsNoop(t *testing.T) {
	uncovered := geom.NewBounds(0, 0, 10, 10, geom.WGS84)
	covering := geom.NewBounds(20, 20, 21, 21, geom.WGS84)

	got, ok := shrinkUncovered(uncovered, covering)
	assert.True(t, ok)
	assert.Equal(t, uncovered, got)
}

func TestBoundsPolygonIsClosedRing(t *testing.T) {
	p := boundsPolygon(0, 0, 1, 1)
	require.Len(t, *p, 1)
	ring := (*p)[0]
	assert.Equal(t, ring[0], ring[len(ring)-1])
}
