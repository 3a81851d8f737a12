package transform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
)

func elevationBounds() geom.Bounds {
	return geom.NewBounds(-10, -10, 10, 10, geom.WGS84)
}

func elevationCollection(height float64) *raster.PixelCollection {
	pc := raster.NewPixelCollection(1, 4, 4, elevationBounds())
	for i := range pc.Data {
		pc.Data[i] = float32(height)
		pc.Mask[i] = false
	}
	return pc
}

func terrariumDecode(r, g, b float64) float64 {
	u := r*256 + g + b/256
	return u - 32768.0
}

func TestTerrariumRoundTripsIntegerHeights(t *testing.T) {
	tr := &Terrarium{}
	for _, h := range []float64{-32768, -1000, 0, 1000, 32767} {
		pc := elevationCollection(h)
		out, format := tr.Transform(pc)
		require.Equal(t, FormatRGB, format)
		r := float64(out.Data[0])
		g := float64(out.Data[out.Height*out.Width])
		b := float64(out.Data[2*out.Height*out.Width])
		decoded := terrariumDecode(r, g, b)
		assert.InDelta(t, h, decoded, 0.01)
	}
}

func TestTerrariumRoundTripsFractionalHeights(t *testing.T) {
	tr := &Terrarium{}
	for _, h := range []float64{100.25, -500.5, 2048.75} {
		pc := elevationCollection(h)
		out, _ := tr.Transform(pc)
		r := float64(out.Data[0])
		g := float64(out.Data[out.Height*out.Width])
		b := float64(out.Data[2*out.Height*out.Width])
		decoded := terrariumDecode(r, g, b)
		assert.InDelta(t, h, decoded, 0.5/256.0+0.01)
	}
}

func TestNormalChannelsStayInByteRange(t *testing.T) {
	n := &Normal{}
	pc := raster.NewPixelCollection(1, 4, 4, elevationBounds())
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			pc.Data[y*4+x] = float32((y*4 + x) * 137 % 5000)
		}
	}
	out, format := n.Transform(pc)
	require.Equal(t, FormatRGBA, format)
	for _, v := range out.Data {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(255))
	}
}

func TestHypsometricIndexMatchesBisectConvention(t *testing.T) {
	assert.Equal(t, uint8(255), hypsometricIndex(-20000))
	assert.Less(t, hypsometricIndex(0), hypsometricIndex(-20000))
	assert.Greater(t, hypsometricIndex(8000), uint8(0))
}

func TestZoomForResolutionIsMonotoneNonIncreasing(t *testing.T) {
	prev := geom.ZoomForResolution(1, geom.RoundNearest)
	for _, res := range []float64{2, 5, 10, 50, 100, 1000, 10000} {
		z := geom.ZoomForResolution(res, geom.RoundNearest)
		assert.LessOrEqual(t, z, prev)
		prev = z
	}
}

func TestResolutionInMetersScalesWithLatitude(t *testing.T) {
	equator := geom.NewBounds(-1, -0.5, 1, 0.5, geom.WGS84)
	midLat := geom.NewBounds(-1, 59.5, 1, 60.5, geom.WGS84)
	shape := geom.Shape{Height: 100, Width: 100}

	dxEq, _ := geom.ResolutionInMeters(equator, shape)
	dxMid, _ := geom.ResolutionInMeters(midLat, shape)

	assert.InDelta(t, dxEq*math.Cos(60*math.Pi/180), dxMid, dxEq*0.05)
}

func TestImageBroadcastsSingleBandAndSynthesizesAlpha(t *testing.T) {
	im := &Image{}
	pc := raster.NewPixelCollection(1, 2, 2, elevationBounds())
	pc.Data[0] = 42
	pc.Mask[0] = false
	pc.Mask[1] = true

	out, format := im.Transform(pc)
	require.Equal(t, FormatRGBA, format)
	assert.Equal(t, 4, out.Bands)
	plane := out.Height * out.Width
	assert.Equal(t, float32(255), out.Data[3*plane+0])
	assert.Equal(t, float32(0), out.Data[3*plane+1])
}

func TestBufferPostprocessDoesNotCrop(t *testing.T) {
	b := NewBuffer(4)
	pc := raster.NewPixelCollection(1, 10, 10, elevationBounds())
	result := b.Postprocess(pc, FormatRaw, CropOffsets{Left: 4, Right: 4, Bottom: 4, Top: 4})
	assert.Same(t, pc, result)
}
