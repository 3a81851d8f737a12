package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marblecutter-go/tilecutter/catalog"
	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
)

func testLogger() *zap.SugaredLogger {
	l, _ := zap.NewDevelopment()
	return l.Sugar()
}

func singleBandCollection(values ...float32) *raster.PixelCollection {
	pc := raster.NewPixelCollection(1, 1, len(values), geom.NewBounds(0, 0, 1, 1, geom.WGS84))
	for x, v := range values {
		pc.Set(0, 0, x, v)
	}
	return pc
}

func TestApplyNoopWithoutRecipes(t *testing.T) {
	pc := singleBandCollection(1, 2, 3)
	src := catalog.Source{URL: "u"}
	got := Apply(testLogger(), src, pc)
	assert.Same(t, pc, got)
}

func TestApplyNodataDirectiveMasksMatchingValue(t *testing.T) {
	pc := singleBandCollection(-9999, 5)
	src := catalog.Source{URL: "u", Recipes: map[string]any{"nodata": float64(-9999)}}
	Apply(testLogger(), src, pc)

	_, v0 := pc.At(0, 0, 0)
	_, v1 := pc.At(0, 0, 1)
	assert.False(t, v0)
	assert.True(t, v1)
}

func TestApplyLinearStretchGlobalFillsUnitRange(t *testing.T) {
	pc := singleBandCollection(0, 50, 100)
	src := catalog.Source{URL: "u", Recipes: map[string]any{"linear_stretch": "global"}}
	Apply(testLogger(), src, pc)

	v0, _ := pc.At(0, 0, 0)
	v2, _ := pc.At(0, 0, 2)
	assert.Equal(t, float32(0), v0)
	assert.Equal(t, float32(1), v2)
}

func TestApplyMaskOutliersFlagsExtremeSample(t *testing.T) {
	values := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 1000000}
	pc := singleBandCollection(values...)
	src := catalog.Source{URL: "u", Recipes: map[string]any{"mask_outliers": true}}
	Apply(testLogger(), src, pc)

	_, valid := pc.At(0, 0, len(values)-1)
	assert.False(t, valid)
	_, stillValid := pc.At(0, 0, 0)
	assert.True(t, stillValid)
}

func TestApplyExprDirectiveRunsThroughImageryBranch(t *testing.T) {
	pc := singleBandCollection(10, 20)
	pc.Bands = 1
	src := catalog.Source{URL: "u", Recipes: map[string]any{
		"imagery": true,
		"expr":    "b1*2",
	}}
	Apply(testLogger(), src, pc)
	assert.Equal(t, 1, pc.Bands)

	// imagery divides by 255 first, then expr doubles b1.
	v, valid := pc.At(0, 0, 0)
	assert.True(t, valid)
	assert.InDelta(t, 2*10.0/255.0, float64(v), 1e-6)
}

func TestApplyUnknownDirectiveIsIgnoredNotFatal(t *testing.T) {
	pc := singleBandCollection(1, 2)
	src := catalog.Source{URL: "u", Recipes: map[string]any{"totally_unknown": true}}
	assert.NotPanics(t, func() { Apply(testLogger(), src, pc) })
}

func TestSelectBandsReordersAndSubsets(t *testing.T) {
	pc := raster.NewPixelCollection(3, 1, 1, geom.NewBounds(0, 0, 1, 1, geom.WGS84))
	pc.Set(0, 0, 0, 1)
	pc.Set(1, 0, 0, 2)
	pc.Set(2, 0, 0, 3)

	selectBands(pc, []int{2, 0})

	require.Equal(t, 2, pc.Bands)
	v0, _ := pc.At(0, 0, 0)
	v1, _ := pc.At(1, 0, 0)
	assert.Equal(t, float32(3), v0)
	assert.Equal(t, float32(1), v1)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-1))
	assert.Equal(t, 1.0, clamp01(2))
	assert.Equal(t, 0.5, clamp01(0.5))
}

func TestTruthy(t *testing.T) {
	assert.True(t, truthy(true))
	assert.False(t, truthy(false))
	assert.False(t, truthy(nil))
	assert.True(t, truthy("x"))
}

func TestToFloatHandlesNumericTypes(t *testing.T) {
	v, ok := toFloat(float64(1.5))
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)

	_, ok = toFloat("not a number")
	assert.False(t, ok)
}

func TestPercentileRangeEmptyIsFalse(t *testing.T) {
	pc := raster.NewPixelCollection(1, 1, 1, geom.NewBounds(0, 0, 1, 1, geom.WGS84))
	_, _, ok := percentileRange(pc, 2, 98)
	assert.False(t, ok)
}
