package format

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"image/jpeg"
	"image/png"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
	"github.com/marblecutter-go/tilecutter/transform"
)

func rgbaCollection(alpha float32) *raster.PixelCollection {
	bounds := geom.NewBounds(-10, -10, 10, 10, geom.WGS84)
	pc := raster.NewPixelCollection(4, 2, 2, bounds)
	plane := pc.Height * pc.Width
	for i := 0; i < plane; i++ {
		pc.Data[0*plane+i] = 10
		pc.Data[1*plane+i] = 20
		pc.Data[2*plane+i] = 30
		pc.Data[3*plane+i] = alpha
	}
	return pc
}

func TestPNGEncodesRGBA(t *testing.T) {
	pc := rgbaCollection(255)
	contentType, payload, err := PNG{}.Encode(pc, transform.FormatRGBA)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	img, err := png.Decode(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
}

func TestOptimalPicksJPEGWhenFullyOpaque(t *testing.T) {
	pc := rgbaCollection(255)
	contentType, payload, err := Optimal{}.Encode(pc, transform.FormatRGBA)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
	_, err = jpeg.Decode(bytes.NewReader(payload))
	assert.NoError(t, err)
}

func TestOptimalPicksPNGWhenTransparent(t *testing.T) {
	pc := rgbaCollection(0)
	contentType, payload, err := Optimal{}.Encode(pc, transform.FormatRGBA)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	_, err = png.Decode(bytes.NewReader(payload))
	assert.NoError(t, err)
}

func TestColorRampEncodesSingleBandWithMaskedAlpha(t *testing.T) {
	bounds := geom.NewBounds(-10, -10, 10, 10, geom.WGS84)
	pc := raster.NewPixelCollection(1, 2, 2, bounds)
	pc.Data[0] = 0
	pc.Data[1] = 255
	pc.Mask[2] = true
	contentType, payload, err := NewColorRamp().Encode(pc, transform.FormatRaw)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	img, err := png.Decode(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dy())
}

func elevationCollectionWGS(height float32, resDeg float64) *raster.PixelCollection {
	bounds := geom.NewBounds(-resDeg*2, -resDeg*2, resDeg*2, resDeg*2, geom.WGS84)
	pc := raster.NewPixelCollection(1, 4, 4, bounds)
	for i := range pc.Data {
		pc.Data[i] = height
	}
	return pc
}

func TestGeoTIFFDowncastsCoarseElevationToInt16(t *testing.T) {
	// ~4 degrees wide over 4 px is a very coarse resolution, well over 10m/px.
	pc := elevationCollectionWGS(1234, 1.0)
	contentType, payload, err := NewGeoTIFF().Encode(pc, transform.FormatRaw)
	require.NoError(t, err)
	assert.Equal(t, "image/tiff", contentType)
	assert.Equal(t, byte('I'), payload[0])
	assert.Equal(t, byte('I'), payload[1])

	// The single strip starts right after the 8-byte header: 16 int16 samples.
	r, err := zlib.NewReader(bytes.NewReader(payload[8:]))
	require.NoError(t, err)
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, 4*4*2, len(raw))
}

func TestGeoTIFFKeepsFloatForFinePixelData(t *testing.T) {
	bounds := geom.NewBounds(0, 0, 0.00001, 0.00001, geom.WGS84)
	pc := raster.NewPixelCollection(1, 2, 2, bounds)
	for i := range pc.Data {
		pc.Data[i] = 500.5
	}
	_, payload, err := NewGeoTIFF().Encode(pc, transform.FormatRaw)
	require.NoError(t, err)
	assert.NotEmpty(t, payload)

	// The single strip starts right after the 8-byte header: 4 float32 samples.
	r, err := zlib.NewReader(bytes.NewReader(payload[8:]))
	require.NoError(t, err)
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, 2*2*4, len(raw))
}

func TestGeoTIFFRejectsNonRawFormat(t *testing.T) {
	pc := rgbaCollection(255)
	_, _, err := NewGeoTIFF().Encode(pc, transform.FormatRGBA)
	assert.Error(t, err)
}

func TestHorizontalDifferencePredictRoundTrips(t *testing.T) {
	vals := []int16{10, 12, 9, 50}
	// little-endian packing for the predictor helper under test
	le := make([]byte, 8)
	for i, v := range vals {
		le[i*2] = byte(uint16(v))
		le[i*2+1] = byte(uint16(v) >> 8)
	}
	horizontalDifferencePredict16(le, 1, 1, 4)

	// undo the prediction manually and confirm round trip
	got := make([]int16, 4)
	var prev int16
	for x := 0; x < 4; x++ {
		d := int16(uint16(le[x*2]) | uint16(le[x*2+1])<<8)
		if x == 0 {
			prev = d
		} else {
			prev = prev + d
		}
		got[x] = prev
	}
	for i, v := range vals {
		assert.Equal(t, v, got[i])
	}
}

func TestDeflateCompressIsZlibFramed(t *testing.T) {
	payload, err := deflateCompress([]byte("hello hello hello"))
	require.NoError(t, err)
	r, err := zlib.NewReader(bytes.NewReader(payload))
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello hello hello", string(out))
}

func TestSkadiEncodesGzippedInt16Grid(t *testing.T) {
	bounds := geom.NewBounds(-123, 37, -122, 38, geom.WGS84)
	pc := raster.NewPixelCollection(1, 4, 4, bounds)
	for i := range pc.Data {
		pc.Data[i] = 1500
	}
	pc.Mask[0] = true

	contentType, payload, err := Skadi{}.Encode(pc, transform.FormatRaw)
	require.NoError(t, err)
	assert.Equal(t, "application/gzip", contentType)

	r, err := gzip.NewReader(bytes.NewReader(payload))
	require.NoError(t, err)
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, 4*4*2, len(raw))

	v := int16(uint16(raw[2])<<8 | uint16(raw[3]))
	assert.Equal(t, int16(1500), v)
}

func TestSkadiRejectsMultiBandData(t *testing.T) {
	pc := rgbaCollection(255)
	_, _, err := Skadi{}.Encode(pc, transform.FormatRaw)
	assert.Error(t, err)
}

func TestSkadiFilenameFollowsNSEWConvention(t *testing.T) {
	assert.Equal(t, "N37W123.hgt", SkadiFilename(-122.6, 37.4))
	assert.Equal(t, "S01E005.hgt", SkadiFilename(5.2, -0.9))
}
