package mosaic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marblecutter-go/tilecutter/catalog"
	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
)

type fakeReader struct {
	windows map[string]*raster.PixelCollection
	err     map[string]error
}

func (f *fakeReader) Read(_ context.Context, src catalog.Source, _ geom.Bounds, _ geom.Shape) (*raster.PixelCollection, error) {
	if err, ok := f.err[src.URL]; ok {
		return nil, err
	}
	return f.windows[src.URL], nil
}

func testBounds() geom.Bounds {
	return geom.NewBounds(0, 0, 4, 4, geom.WebMercator)
}

func testShape() geom.Shape { return geom.Shape{Height: 2, Width: 2} }

func solidWindow(value float32) *raster.PixelCollection {
	pc := raster.NewPixelCollection(1, 2, 2, testBounds())
	for i := range pc.Data {
		pc.Data[i] = value
		pc.Mask[i] = false
	}
	return pc
}

func TestCompositePastesFirstSourceThatCoversAndStopsEarly(t *testing.T) {
	reader := &fakeReader{windows: map[string]*raster.PixelCollection{
		"a": solidWindow(1),
		"b": solidWindow(2),
	}}
	sources := []catalog.Source{{Name: "a", URL: "a"}, {Name: "b", URL: "b"}}

	used, canvas, err := Composite(context.Background(), zap.NewNop().Sugar(), reader, sources, testBounds(), testShape(), 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a"}, used)
	assert.False(t, canvas.AnyMasked())
	for _, v := range canvas.Data {
		assert.Equal(t, float32(1), v)
	}
}

func TestCompositeFallsThroughToSecondSourceWhenFirstFails(t *testing.T) {
	reader := &fakeReader{
		windows: map[string]*raster.PixelCollection{"b": solidWindow(5)},
		err:     map[string]error{"a": assert.AnError},
	}
	sources := []catalog.Source{{Name: "a", URL: "a"}, {Name: "b", URL: "b"}}

	used, canvas, err := Composite(context.Background(), zap.NewNop().Sugar(), reader, sources, testBounds(), testShape(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, used)
	assert.False(t, canvas.AnyMasked())
}

func TestCompositeLeavesCanvasMaskedWhenNoSourceCovers(t *testing.T) {
	partial := raster.NewPixelCollection(1, 2, 2, testBounds())
	partial.Data[0] = 9
	partial.Mask[0] = false // only one of four pixels covered

	reader := &fakeReader{windows: map[string]*raster.PixelCollection{"a": partial}}
	sources := []catalog.Source{{Name: "a", URL: "a"}}

	used, canvas, err := Composite(context.Background(), zap.NewNop().Sugar(), reader, sources, testBounds(), testShape(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, used)
	assert.True(t, canvas.AnyMasked())
	assert.Equal(t, float32(9), canvas.Data[0])
}

func TestPasteRejectsShapeMismatch(t *testing.T) {
	canvas := raster.NewPixelCollection(1, 2, 2, testBounds())
	mismatched := raster.NewPixelCollection(1, 3, 3, testBounds())

	err := raster.CheckCompatible(canvas, mismatched)
	assert.Error(t, err)
}

func TestPasteFillsSingleCanvasBandWhenSourceBandSet(t *testing.T) {
	canvas := raster.NewPixelCollection(3, 2, 2, testBounds())
	window := solidWindow(7)
	band := 1

	wrote := paste(canvas, window, &band)
	assert.True(t, wrote)
	for _, v := range canvas.BandData(1) {
		assert.Equal(t, float32(7), v)
	}
	for _, m := range canvas.BandMask(0) {
		assert.True(t, m)
	}
}
