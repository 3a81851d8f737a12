package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marblecutter-go/tilecutter/catalog"
	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
)

func landsatSource(sceneURL string) catalog.Source {
	return catalog.Source{
		URL:      sceneURL,
		Recipes:  map[string]any{"landsat8": true},
		BandInfo: map[string]string{"r": "4", "g": "3", "b": "2"},
	}
}

func TestPreprocessExpandsLandsat8SourceIntoPerBandSources(t *testing.T) {
	src := landsatSource("scene_B{band}.TIF")
	out := Preprocess([]catalog.Source{src})

	require.Len(t, out, 3)
	for _, s := range out {
		require.NotNil(t, s.Band)
		assert.NotContains(t, s.URL, "{band}")
	}
}

func TestPreprocessPassesThroughNonLandsatSources(t *testing.T) {
	src := catalog.Source{URL: "plain.tif"}
	out := Preprocess([]catalog.Source{src})
	require.Len(t, out, 1)
	assert.Equal(t, "plain.tif", out[0].URL)
}

func TestPreprocessCapsAtMaxSources(t *testing.T) {
	var sources []catalog.Source
	for i := 0; i < maxPreprocessedSources+5; i++ {
		sources = append(sources, catalog.Source{URL: "plain.tif"})
	}
	out := Preprocess(sources)
	assert.Len(t, out, maxPreprocessedSources)
}

func TestSceneIDStripsBandSuffix(t *testing.T) {
	assert.Equal(t, "LC08_scene", sceneID("LC08_scene_B4.TIF"))
	assert.Equal(t, "no-suffix.tif", sceneID("no-suffix.tif"))
}

func windowFor(band int, value float32, bounds geom.Bounds) Windowed {
	pc := raster.NewPixelCollection(1, 2, 2, bounds)
	for i := range pc.Data {
		pc.Data[i] = value
		pc.Mask[i] = false
	}
	b := band
	return Windowed{
		Source: catalog.Source{URL: "scene_B0.TIF", Recipes: map[string]any{"landsat8": true}, Band: &b},
		Pixels: pc,
	}
}

func TestPostprocessMergesBandWindowsIntoOneRGBScene(t *testing.T) {
	bounds := geom.NewBounds(0, 0, 1, 1, geom.WGS84)
	windows := []Windowed{
		windowFor(0, 10, bounds),
		windowFor(1, 20, bounds),
		windowFor(2, 30, bounds),
	}

	out := Postprocess(windows)
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].Pixels.Bands)

	r, _ := out[0].Pixels.At(0, 0, 0)
	g, _ := out[0].Pixels.At(1, 0, 0)
	b, _ := out[0].Pixels.At(2, 0, 0)
	assert.Equal(t, float32(10), r)
	assert.Equal(t, float32(20), g)
	assert.Equal(t, float32(30), b)
}

func TestPostprocessPassesThroughNonLandsatWindows(t *testing.T) {
	bounds := geom.NewBounds(0, 0, 1, 1, geom.WGS84)
	pc := raster.NewPixelCollection(1, 1, 1, bounds)
	w := Windowed{Source: catalog.Source{URL: "plain.tif"}, Pixels: pc}

	out := Postprocess([]Windowed{w})
	require.Len(t, out, 1)
	assert.Equal(t, "plain.tif", out[0].Source.URL)
}

func TestPostprocessPansharpensWhenPanBandPresent(t *testing.T) {
	bounds := geom.NewBounds(0, 0, 1, 1, geom.WGS84)
	rgbWindows := []Windowed{
		windowFor(0, 10, bounds),
		windowFor(1, 10, bounds),
		windowFor(2, 10, bounds),
	}
	pan := windowFor(8, 20, bounds)
	windows := append(rgbWindows, pan)

	out := Postprocess(windows)
	require.Len(t, out, 1)

	r, valid := out[0].Pixels.At(0, 0, 0)
	assert.True(t, valid)
	assert.InDelta(t, 20, r, 1e-4)
}

func TestBroveyPansharpenIsNoopWhenPanTooSmall(t *testing.T) {
	bounds := geom.NewBounds(0, 0, 1, 1, geom.WGS84)
	rgb := raster.NewPixelCollection(3, 2, 2, bounds)
	pan := raster.NewPixelCollection(1, 1, 1, bounds)
	assert.NotPanics(t, func() { broveyPansharpen(rgb, pan) })
}
