package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marblecutter-go/tilecutter/catalog"
	"github.com/marblecutter-go/tilecutter/format"
	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
)

type fakeReader struct {
	pc *raster.PixelCollection
}

func (f *fakeReader) Read(ctx context.Context, src catalog.Source, bounds geom.Bounds, shape geom.Shape) (*raster.PixelCollection, error) {
	out := raster.NewPixelCollection(1, shape.Height, shape.Width, bounds)
	for i := range out.Data {
		out.Data[i] = f.pc.Data[0]
		out.Mask[i] = false
	}
	return out, nil
}

func testLogger() *zap.SugaredLogger {
	l, _ := zap.NewDevelopment()
	return l.Sugar()
}

func TestRenderRejectsMissingCatalogAndSources(t *testing.T) {
	_, err := Render(context.Background(), testLogger(), &fakeReader{}, Request{
		Bounds: geom.NewBounds(0, 0, 1, 1, geom.WGS84),
		Shape:  geom.Shape{Height: 4, Width: 4},
	})
	assert.Error(t, err)
}

func TestRenderEncodesCompositedSources(t *testing.T) {
	bounds := geom.NewBounds(0, 0, 1, 1, geom.WGS84)
	seed := raster.NewPixelCollection(1, 1, 1, bounds)
	seed.Data[0] = 42

	sources := []catalog.Source{{URL: "mem://a", Name: "a", Enabled: true}}
	req := Request{
		Bounds:  bounds,
		Shape:   geom.Shape{Height: 4, Width: 4},
		Sources: sources,
		Format:  format.NewGeoTIFF(),
		Bands:   1,
	}

	result, err := Render(context.Background(), testLogger(), &fakeReader{pc: seed}, req)
	require.NoError(t, err)
	assert.Equal(t, "image/tiff", result.Headers["Content-Type"])
	assert.Contains(t, result.Headers["X-Source-Names"], "a")
	assert.NotEmpty(t, result.Payload)
}

func TestTileBoundsCoversFullMercatorExtentAtZoomZero(t *testing.T) {
	bounds, err := TileBounds(0, 0, 0)
	require.NoError(t, err)
	extent, err := geom.Extent(geom.WebMercator)
	require.NoError(t, err)
	assert.InDelta(t, extent.Min[0], bounds.Min[0], 1e-6)
	assert.InDelta(t, extent.Max[1], bounds.Max[1], 1e-6)
}

func TestTileBoundsQuadrantsAtZoomOne(t *testing.T) {
	nw, err := TileBounds(1, 0, 0)
	require.NoError(t, err)
	se, err := TileBounds(1, 1, 1)
	require.NoError(t, err)
	assert.Less(t, nw.Min[0], se.Min[0])
	assert.Greater(t, nw.Max[1], se.Max[1])
}

func TestParseSkadiTileNameHandlesAllQuadrants(t *testing.T) {
	lon, lat, err := ParseSkadiTileName("N37W123")
	require.NoError(t, err)
	assert.Equal(t, -123, lon)
	assert.Equal(t, 37, lat)

	lon, lat, err = ParseSkadiTileName("S01E005")
	require.NoError(t, err)
	assert.Equal(t, 5, lon)
	assert.Equal(t, -1, lat)
}

func TestParseSkadiTileNameRejectsMalformedInput(t *testing.T) {
	_, _, err := ParseSkadiTileName("bogus")
	assert.Error(t, err)
}

func TestSkadiBoundsIncludesHalfArcSecondFringe(t *testing.T) {
	b := SkadiBounds(-123, 37)
	assert.Less(t, b.Min[0], -123.0)
	assert.Greater(t, b.Max[0], -122.0)
}

func TestServerTimingFormatsStages(t *testing.T) {
	s := NewStats()
	timer := s.Start("composite")
	timer.Stop()
	out := s.ServerTiming()
	assert.Contains(t, out, "op0")
	assert.Contains(t, out, "composite")
}
