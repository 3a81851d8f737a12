package catalog

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marblecutter-go/tilecutter/geom"
)

func boxSource(name string, minx, miny, maxx, maxy, priority, resolution float64) Source {
	poly := orb.Polygon{orb.Ring{
		{minx, miny}, {maxx, miny}, {maxx, maxy}, {minx, maxy}, {minx, miny},
	}}
	return Source{
		Name:       name,
		URL:        "file://" + name,
		Geom:       &poly,
		Priority:   priority,
		Resolution: resolution,
		Enabled:    true,
		MinZoom:    0,
		MaxZoom:    22,
	}
}

func TestValidateZXYRejectsOutOfRangeZoom(t *testing.T) {
	assert.Error(t, ValidateZXY(-1, 0, 0))
	assert.Error(t, ValidateZXY(23, 0, 0))
}

func TestValidateZXYRejectsOutOfRangeTile(t *testing.T) {
	assert.Error(t, ValidateZXY(1, 2, 0))
	assert.NoError(t, ValidateZXY(1, 1, 1))
}

func TestInMemoryCatalogValidateRespectsDeclaredZoomRange(t *testing.T) {
	world := geom.NewBounds(-180, -90, 180, 90, geom.WGS84)
	cat := NewInMemoryCatalog(nil, world, 2, 10)

	assert.NoError(t, cat.Validate(5, 1, 1))
	assert.Error(t, cat.Validate(15, 1, 1))
}

func TestGetSourcesSkipsDisabledSources(t *testing.T) {
	s := boxSource("a", 0, 0, 1, 1, 1, 1)
	s.Enabled = false
	world := geom.NewBounds(-180, -90, 180, 90, geom.WGS84)
	cat := NewInMemoryCatalog([]Source{s}, world, 0, 22)

	bounds := geom.NewBounds(0, 0, 1, 1, geom.WGS84)
	got, err := cat.GetSources(bounds, 1, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetSourcesSkipsNonIntersectingSources(t *testing.T) {
	s := boxSource("far", 50, 50, 51, 51, 1, 1)
	world := geom.NewBounds(-180, -90, 180, 90, geom.WGS84)
	cat := NewInMemoryCatalog([]Source{s}, world, 0, 22)

	bounds := geom.NewBounds(0, 0, 1, 1, geom.WGS84)
	got, err := cat.GetSources(bounds, 1, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetSourcesRangeModeOrdersByPriorityThenResolution(t *testing.T) {
	low := boxSource("low", 0, 0, 1, 1, 1, 10)
	high := boxSource("high", 0, 0, 1, 1, 5, 10)
	world := geom.NewBounds(-180, -90, 180, 90, geom.WGS84)
	cat := NewInMemoryCatalog([]Source{low, high}, world, 0, 22)

	minZoom, maxZoom := 0, 22
	bounds := geom.NewBounds(0, 0, 1, 1, geom.WGS84)
	got, err := cat.GetSources(bounds, 1, &minZoom, &maxZoom)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "high", got[0].Name)
	assert.Equal(t, "low", got[1].Name)
}

func TestGetSourcesRangeModeDedupsByURL(t *testing.T) {
	a := boxSource("a", 0, 0, 1, 1, 1, 10)
	dup := a
	dup.Name = "a-dup"
	world := geom.NewBounds(-180, -90, 180, 90, geom.WGS84)
	cat := NewInMemoryCatalog([]Source{a, dup}, world, 0, 22)

	minZoom, maxZoom := 0, 22
	bounds := geom.NewBounds(0, 0, 1, 1, geom.WGS84)
	got, err := cat.GetSources(bounds, 1, &minZoom, &maxZoom)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestGetSourcesCoverageModePrefersHigherPriority(t *testing.T) {
	low := boxSource("low", 0, 0, 1, 1, 1, 10)
	high := boxSource("high", 0, 0, 1, 1, 5, 10)
	world := geom.NewBounds(-180, -90, 180, 90, geom.WGS84)
	cat := NewInMemoryCatalog([]Source{low, high}, world, 0, 22)

	bounds := geom.NewBounds(0, 0, 1, 1, geom.WGS84)
	got, err := cat.GetSources(bounds, 1, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "high", got[0].Name)
}

func TestGetSourcesCoverageModeAddsSecondSourceWhenFirstDoesNotFullyCover(t *testing.T) {
	left := boxSource("left", 0, 0, 0.5, 1, 5, 10)
	right := boxSource("right", 0.5, 0, 1, 1, 3, 10)
	world := geom.NewBounds(-180, -90, 180, 90, geom.WGS84)
	cat := NewInMemoryCatalog([]Source{left, right}, world, 0, 22)

	bounds := geom.NewBounds(0, 0, 1, 1, geom.WGS84)
	got, err := cat.GetSources(bounds, 1, nil, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSourceFootprintFallsBackToEmptyPolygon(t *testing.T) {
	s := Source{}
	assert.Equal(t, orb.Polygon{}, s.Footprint())
}
