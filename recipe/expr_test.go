package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
)

func twoBandCollection(b1, b2 float32) *raster.PixelCollection {
	pc := raster.NewPixelCollection(2, 1, 1, geom.NewBounds(0, 0, 1, 1, geom.WGS84))
	pc.Set(0, 0, 0, b1)
	pc.Set(1, 0, 0, b2)
	return pc
}

func TestApplyExprAddsBands(t *testing.T) {
	pc := twoBandCollection(2, 3)
	require.NoError(t, applyExpr(pc, "b1+b2"))
	assert.Equal(t, 1, pc.Bands)
	v, valid := pc.At(0, 0, 0)
	assert.True(t, valid)
	assert.Equal(t, float32(5), v)
}

func TestApplyExprHandlesMultipleOutputs(t *testing.T) {
	pc := twoBandCollection(10, 4)
	require.NoError(t, applyExpr(pc, "b1-b2, b1*b2"))
	assert.Equal(t, 2, pc.Bands)

	v0, _ := pc.At(0, 0, 0)
	v1, _ := pc.At(1, 0, 0)
	assert.Equal(t, float32(6), v0)
	assert.Equal(t, float32(40), v1)
}

func TestApplyExprRespectsOperatorPrecedenceAndParens(t *testing.T) {
	pc := twoBandCollection(2, 3)
	require.NoError(t, applyExpr(pc, "(b1+b2)*2"))
	v, _ := pc.At(0, 0, 0)
	assert.Equal(t, float32(10), v)
}

func TestApplyExprDivisionByZeroMasksPixel(t *testing.T) {
	pc := twoBandCollection(5, 0)
	require.NoError(t, applyExpr(pc, "b1/b2"))
	_, valid := pc.At(0, 0, 0)
	assert.False(t, valid)
}

func TestApplyExprUnaryMinus(t *testing.T) {
	pc := twoBandCollection(5, 0)
	require.NoError(t, applyExpr(pc, "-b1"))
	v, _ := pc.At(0, 0, 0)
	assert.Equal(t, float32(-5), v)
}

func TestApplyExprOutOfRangeBandMasksPixel(t *testing.T) {
	pc := twoBandCollection(1, 1)
	require.NoError(t, applyExpr(pc, "b5"))
	_, valid := pc.At(0, 0, 0)
	assert.False(t, valid)
}

func TestApplyExprRejectsMalformedExpression(t *testing.T) {
	pc := twoBandCollection(1, 1)
	assert.Error(t, applyExpr(pc, "b1 +"))
	assert.Error(t, applyExpr(pc, "(b1+b2"))
	assert.Error(t, applyExpr(pc, "b1 b2"))
}

func TestSplitTopLevelIgnoresCommasInsideParens(t *testing.T) {
	parts := splitTopLevel("f(a,b), c", ',')
	require.Len(t, parts, 2)
	assert.Equal(t, "f(a,b)", parts[0])
	assert.Equal(t, " c", parts[1])
}
