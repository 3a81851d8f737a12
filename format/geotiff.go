package format

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
	"github.com/marblecutter-go/tilecutter/source"
	"github.com/marblecutter-go/tilecutter/transform"
)

const (
	geotiffContentType = "image/tiff"

	// tiffTagStripOffsets etc. reuse the tag-ID naming convention from
	// source/container.go, mirrored here for the write side.
	tagImageWidth                = 256
	tagImageLength                = 257
	tagBitsPerSample              = 258
	tagCompression                = 259
	tagPhotometricInterpretation  = 262
	tagStripOffsets               = 273
	tagSamplesPerPixel            = 277
	tagRowsPerStrip               = 278
	tagStripByteCounts            = 279
	tagPlanarConfiguration        = 284
	tagPredictor                  = 317
	tagExtraSamples               = 338
	tagSampleFormat               = 339
	tagGDALMetadata               = 42112
	tagGDALNoData                 = 42113

	compressionDeflate = 8
	predictorNone      = 1
	predictorHorizontal = 2

	sampleFormatUnsignedInt = 1
	sampleFormatSignedInt   = 2
	sampleFormatFloat       = 3

	photometricBlackIsZero = 1
	photometricRGB         = 2

	demDowncastResolutionM = 10.0
)

// GeoTIFF encodes raw (non-image) pixel data to a single-strip, Deflate
// compressed GeoTIFF: RowsPerStrip equals the image height, so the whole
// image is one strip and the output is not tiled (a documented
// simplification of geotiff.py's tiled output).
// Single-band float elevation data coarser than 10 m/px ground resolution is
// downcast to int16 with nodata at type-min, per spec.md §4.7.
type GeoTIFF struct {
	AreaOrPoint string // "Area" (default) or "Point"
}

func NewGeoTIFF() GeoTIFF { return GeoTIFF{AreaOrPoint: "Area"} }

func (g GeoTIFF) Encode(pc *raster.PixelCollection, dataFormat transform.DataFormat) (string, []byte, error) {
	if dataFormat != transform.FormatRaw {
		return "", nil, fmt.Errorf("format: geotiff requires raw data, got %q", dataFormat)
	}

	downcast := false
	if pc.Bands == 1 {
		dx, dy := geom.ResolutionInMeters(pc.Bounds, geom.Shape{Height: pc.Height, Width: pc.Width})
		if math.Max(dx, dy) > demDowncastResolutionM {
			downcast = true
		}
	}

	var sampleFormat uint16
	var bitsPerSample uint16
	var predictor uint16
	var rawSamples []byte
	var nodata float64

	plane := pc.Height * pc.Width
	total := pc.Bands * plane

	if downcast {
		nodata = raster.DefaultNodata(true, 16, true)
		sampleFormat = sampleFormatSignedInt
		bitsPerSample = 16
		predictor = predictorHorizontal
		rawSamples = make([]byte, total*2)
		for i := 0; i < total; i++ {
			v := pc.Data[i]
			var iv int16
			if pc.Mask[i] {
				iv = int16(nodata)
			} else {
				iv = int16(clampInt16(float64(v)))
			}
			binary.LittleEndian.PutUint16(rawSamples[i*2:], uint16(iv))
		}
		horizontalDifferencePredict16(rawSamples, pc.Bands, pc.Height, pc.Width)
	} else {
		nodata = raster.DefaultNodata(false, 32, true)
		sampleFormat = sampleFormatFloat
		bitsPerSample = 32
		predictor = predictorNone
		rawSamples = make([]byte, total*4)
		for i := 0; i < total; i++ {
			v := pc.Data[i]
			if pc.Mask[i] {
				v = float32(nodata)
			}
			binary.LittleEndian.PutUint32(rawSamples[i*4:], math.Float32bits(v))
		}
	}

	compressed, err := deflateCompress(rawSamples)
	if err != nil {
		return "", nil, fmt.Errorf("format: geotiff deflate: %w", err)
	}

	photometric := uint16(photometricBlackIsZero)
	if pc.Bands >= 3 {
		photometric = photometricRGB
	}

	areaOrPoint := g.AreaOrPoint
	if areaOrPoint == "" {
		areaOrPoint = "Area"
	}

	buf, err := writeTiff(tiffWriteParams{
		width:         pc.Width,
		height:        pc.Height,
		bands:         pc.Bands,
		bitsPerSample: bitsPerSample,
		sampleFormat:  sampleFormat,
		photometric:   photometric,
		predictor:     predictor,
		compressed:    compressed,
		bounds:        pc.Bounds,
		areaOrPoint:   areaOrPoint,
		nodata:        nodata,
	})
	if err != nil {
		return "", nil, err
	}
	return geotiffContentType, buf, nil
}

func clampInt16(v float64) float64 {
	if v < math.MinInt16+1 {
		return math.MinInt16 + 1
	}
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	return v
}

func deflateCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// horizontalDifferencePredict16 applies TIFF predictor=2 to int16 samples in
// place, row-by-row, per band: each sample becomes the difference from its
// left neighbor (first column unchanged).
func horizontalDifferencePredict16(data []byte, bands, height, width int) {
	stride := width * 2
	for b := 0; b < bands; b++ {
		base := b * height * stride
		for y := 0; y < height; y++ {
			row := data[base+y*stride : base+(y+1)*stride]
			prev := int16(binary.LittleEndian.Uint16(row[0:2]))
			for x := 1; x < width; x++ {
				cur := int16(binary.LittleEndian.Uint16(row[x*2 : x*2+2]))
				diff := cur - prev
				binary.LittleEndian.PutUint16(row[x*2:x*2+2], uint16(diff))
				prev = cur
			}
		}
	}
}

type tiffWriteParams struct {
	width, height int
	bands         int
	bitsPerSample uint16
	sampleFormat  uint16
	photometric   uint16
	predictor     uint16
	compressed    []byte
	bounds        geom.Bounds
	areaOrPoint   string
	nodata        float64
}

// writeTiff assembles a minimal, valid little-endian TIFF/GeoTIFF: header,
// one IFD, georeferencing tags (ModelPixelScale/ModelTiepoint), a
// GeoKeyDirectory tag identifying the CRS, and a GDAL_METADATA tag carrying
// AREA_OR_POINT -- the tag IDs are the same ones source/container.go reads.
func writeTiff(p tiffWriteParams) ([]byte, error) {
	var buf bytes.Buffer

	// Header: byte order, magic, offset to first IFD (filled below).
	buf.Write([]byte{'I', 'I', 42, 0})
	ifdOffsetPos := buf.Len()
	binary.Write(&buf, binary.LittleEndian, uint32(0))

	// Pixel data goes right after the header.
	dataOffset := uint32(buf.Len())
	buf.Write(p.compressed)

	gdalMetaXML := fmt.Sprintf(`<GDALMetadata><Item name="AREA_OR_POINT">%s</Item></GDALMetadata>`, p.areaOrPoint)
	gdalMetaBytes := append([]byte(gdalMetaXML), 0)

	dx := (p.bounds.Max[0] - p.bounds.Min[0]) / float64(p.width)
	dy := (p.bounds.Max[1] - p.bounds.Min[1]) / float64(p.height)
	pixelScale := []float64{dx, dy, 0}
	tiePoint := []float64{0, 0, 0, p.bounds.Min[0], p.bounds.Max[1], 0}

	geoKeys := buildGeoKeys(p.bounds.CRS)

	type entry struct {
		tag      uint16
		typ      uint16
		count    uint32
		value    uint32 // inline value or offset into extraData
		extra    []byte // non-nil when the value lives out-of-line
	}

	var extraData bytes.Buffer
	extraBase := uint32(0) // patched after IFD size is known

	addExtra := func(b []byte) uint32 {
		off := extraBase + uint32(extraData.Len())
		extraData.Write(b)
		if extraData.Len()%2 == 1 {
			extraData.WriteByte(0)
		}
		return off
	}

	var entries []entry
	entries = append(entries, entry{tagImageWidth, 4, 1, uint32(p.width), nil})
	entries = append(entries, entry{tagImageLength, 4, 1, uint32(p.height), nil})

	bps := make([]byte, 2*p.bands)
	for i := 0; i < p.bands; i++ {
		binary.LittleEndian.PutUint16(bps[i*2:], p.bitsPerSample)
	}
	entries = append(entries, entry{tagBitsPerSample, 3, uint32(p.bands), 0, bps})

	entries = append(entries, entry{tagCompression, 3, 1, compressionDeflate, nil})
	entries = append(entries, entry{tagPhotometricInterpretation, 3, 1, uint32(p.photometric), nil})
	entries = append(entries, entry{tagStripOffsets, 4, 1, dataOffset, nil})
	entries = append(entries, entry{tagSamplesPerPixel, 3, 1, uint32(p.bands), nil})
	entries = append(entries, entry{tagRowsPerStrip, 4, 1, uint32(p.height), nil})
	entries = append(entries, entry{tagStripByteCounts, 4, 1, uint32(len(p.compressed)), nil})
	entries = append(entries, entry{tagPlanarConfiguration, 3, 1, 1, nil})
	entries = append(entries, entry{tagPredictor, 3, 1, uint32(p.predictor), nil})

	if p.bands == 4 {
		extra := make([]byte, 2)
		binary.LittleEndian.PutUint16(extra, 2) // unassociated alpha
		entries = append(entries, entry{tagExtraSamples, 3, 1, 0, extra})
	}

	sf := make([]byte, 2*p.bands)
	for i := 0; i < p.bands; i++ {
		binary.LittleEndian.PutUint16(sf[i*2:], p.sampleFormat)
	}
	entries = append(entries, entry{tagSampleFormat, 3, uint32(p.bands), 0, sf})

	pixelScaleBytes := make([]byte, 24)
	for i, v := range pixelScale {
		binary.LittleEndian.PutUint64(pixelScaleBytes[i*8:], math.Float64bits(v))
	}
	entries = append(entries, entry{source.TagModelPixelScale, 12, 3, 0, pixelScaleBytes})

	tiePointBytes := make([]byte, 48)
	for i, v := range tiePoint {
		binary.LittleEndian.PutUint64(tiePointBytes[i*8:], math.Float64bits(v))
	}
	entries = append(entries, entry{source.TagModelTiepoint, 12, 6, 0, tiePointBytes})

	geoKeyBytes := make([]byte, 2*len(geoKeys))
	for i, v := range geoKeys {
		binary.LittleEndian.PutUint16(geoKeyBytes[i*2:], v)
	}
	entries = append(entries, entry{source.TagGeoKeyDirectory, 3, uint32(len(geoKeys)), 0, geoKeyBytes})

	entries = append(entries, entry{tagGDALMetadata, 2, uint32(len(gdalMetaBytes)), 0, gdalMetaBytes})

	nodataStr := append([]byte(fmt.Sprintf("%g", p.nodata)), 0)
	entries = append(entries, entry{tagGDALNoData, 2, uint32(len(nodataStr)), 0, nodataStr})

	// IFD layout: count(2) + entries(12 each) + next-IFD-offset(4).
	ifdOffset := uint32(buf.Len())
	ifdSize := 2 + 12*len(entries) + 4
	extraBase = ifdOffset + uint32(ifdSize)

	binary.Write(&buf, binary.LittleEndian, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, e.tag)
		binary.Write(&buf, binary.LittleEndian, e.typ)
		binary.Write(&buf, binary.LittleEndian, e.count)
		switch {
		case e.extra == nil:
			binary.Write(&buf, binary.LittleEndian, e.value)
		case len(e.extra) <= 4:
			// Fits inline in the value field (little-endian byte order
			// matches the in-line packing TIFF readers expect).
			inline := make([]byte, 4)
			copy(inline, e.extra)
			buf.Write(inline)
		default:
			off := addExtra(e.extra)
			binary.Write(&buf, binary.LittleEndian, off)
		}
	}
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // no next IFD

	buf.Write(extraData.Bytes())

	out := buf.Bytes()
	binary.LittleEndian.PutUint32(out[ifdOffsetPos:], ifdOffset)
	return out, nil
}

// buildGeoKeys assembles a minimal GeoKeyDirectory identifying crs as either
// geographic WGS84 or projected Web Mercator -- the two CRSes the render
// boundary supports (geom.Extent's domain).
func buildGeoKeys(crs string) []uint16 {
	type key struct{ id, location, count, value uint16 }
	var keys []key
	if crs == geom.WebMercator {
		keys = []key{
			{source.GTModelTypeGeoKey, 0, 1, source.GTModelTypeProjected},
			{source.GTRasterTypeGeoKey, 0, 1, source.GTRasterTypePixelIsArea},
			{source.ProjectedCSTypeGeoKey, 0, 1, 3857},
		}
	} else {
		keys = []key{
			{source.GTModelTypeGeoKey, 0, 1, source.GTModelTypeGeographic},
			{source.GTRasterTypeGeoKey, 0, 1, source.GTRasterTypePixelIsArea},
			{source.GeographicTypeGeoKey, 0, 1, 4326},
		}
	}

	header := []uint16{1, 1, 0, uint16(len(keys))}
	out := append([]uint16(nil), header...)
	for _, k := range keys {
		out = append(out, k.id, k.location, k.count, k.value)
	}
	return out
}
