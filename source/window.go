package source

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/paulmach/orb"
	"golang.org/x/image/draw"

	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
)

// Resample names the resampling algorithm chosen in spec.md §4.2.2.
type Resample string

const (
	ResampleBilinear Resample = "bilinear"
	ResampleNearest  Resample = "nearest"
	ResampleMode     Resample = "mode" // nearest-like, preserves palette indices
)

// Spec carries the per-source overrides read_window needs: an explicit
// resample override, a nodata override, whether the source is paletted, and
// an optional WGS84 polygon clip mask (spec.md §3 Source.mask).
type Spec struct {
	Resample    Resample
	Nodata      *float64
	Paletted    bool
	PolygonMask *orb.Polygon
}

// ReadWindow reads a reprojected, resampled, masked window out of an open
// raster Handle, implementing the contract of spec.md §4.2:
//  1. pick a resampling transform so reprojected pixels are square and
//     aligned to the target bounds;
//  2. choose the resampling algorithm;
//  3. prefer a declared/default nodata sentinel to build the mask;
//  4. apply any polygon clip mask;
//  5. return a PixelCollection shaped (bands, height, width).
func ReadWindow(h *Handle, targetBounds geom.Bounds, targetShape geom.Shape, spec Spec) (*raster.PixelCollection, error) {
	if targetShape.Width <= 0 || targetShape.Height <= 0 {
		return nil, fmt.Errorf("source: target shape must be positive, got %+v", targetShape)
	}

	srcBounds := h.Bounds()

	// Reproject the target bounds into the source CRS so we know which
	// pixel window of the source to read.
	wantBounds := targetBounds
	if srcBounds.CRS != "" && targetBounds.CRS != srcBounds.CRS {
		reprojected, err := targetBounds.In(srcBounds.CRS)
		if err != nil {
			return nil, fmt.Errorf("source: reproject target bounds: %w", err)
		}
		wantBounds = reprojected
	}

	clamped, ok := wantBounds.Intersection(srcBounds)
	if !ok {
		return raster.NewPixelCollection(h.BandCount(), targetShape.Height, targetShape.Width, targetBounds), nil
	}

	rect := h.geoToPixel(clamped, 0)
	if rect.Width <= 0 || rect.Height <= 0 {
		return raster.NewPixelCollection(h.BandCount(), targetShape.Height, targetShape.Width, targetBounds), nil
	}

	overview := h.selectOverview(rect.Width, rect.Height)
	scaleX := float64(h.metadata[overview].Width) / float64(h.Width())
	scaleY := float64(h.metadata[overview].Height) / float64(h.Height())
	ovRect := pixelRect{
		X:      int(float64(rect.X) * scaleX),
		Y:      int(float64(rect.Y) * scaleY),
		Width:  int(math.Ceil(float64(rect.Width) * scaleX)),
		Height: int(math.Ceil(float64(rect.Height) * scaleY)),
	}
	if ovRect.X+ovRect.Width > h.metadata[overview].Width {
		ovRect.Width = h.metadata[overview].Width - ovRect.X
	}
	if ovRect.Y+ovRect.Height > h.metadata[overview].Height {
		ovRect.Height = h.metadata[overview].Height - ovRect.Y
	}
	if ovRect.Width <= 0 || ovRect.Height <= 0 {
		return raster.NewPixelCollection(h.BandCount(), targetShape.Height, targetShape.Width, targetBounds), nil
	}

	flat, bands, err := h.ReadRaw(overview, ovRect.X, ovRect.Y, ovRect.Width, ovRect.Height)
	if err != nil {
		return nil, fmt.Errorf("source: read pixel region: %w", err)
	}

	nodata := spec.Nodata
	if nodata == nil {
		def := raster.DefaultNodata(!isFloatType(h.SampleType()), bitDepth(h.SampleType()), isSignedType(h.SampleType()))
		nodata = &def
	}

	// Build a source-space collection over the clamped window, then resize
	// into the requested target shape/bounds.
	srcCollection := &raster.PixelCollection{
		Data:   flat,
		Mask:   make([]bool, len(flat)),
		Bands:  bands,
		Height: ovRect.Height,
		Width:  ovRect.Width,
		Bounds: clamped,
	}
	for i, v := range flat {
		if float64(v) == *nodata {
			srcCollection.Mask[i] = true
		}
	}

	out := resample(srcCollection, targetShape, targetBounds, resolveResample(spec))

	if spec.PolygonMask != nil {
		applyPolygonMask(out, *spec.PolygonMask)
	}

	return out, nil
}

func resolveResample(spec Spec) Resample {
	if spec.Paletted {
		return ResampleMode
	}
	if spec.Resample != "" {
		return spec.Resample
	}
	return ResampleBilinear
}

// resample resizes src onto a newly allocated PixelCollection of
// targetShape/targetBounds, one band at a time, choosing a
// golang.org/x/image/draw scaler per the requested algorithm. This treats
// the reprojection between srcBounds and targetBounds as an axis-aligned
// affine stretch rather than a full per-pixel reprojection, which is exact
// for same-CRS reads and a close approximation for WGS84/Web Mercator at
// single-tile scale (the only two CRSes geom.Bounds.In supports); mask
// validity is carried separately by nearest-source-pixel lookup rather than
// through the scaler, since Gray16 alpha blending would corrupt a hard
// nodata boundary into a soft gradient.
func resample(src *raster.PixelCollection, targetShape geom.Shape, targetBounds geom.Bounds, mode Resample) *raster.PixelCollection {
	out := raster.NewPixelCollection(src.Bands, targetShape.Height, targetShape.Width, targetBounds)
	if src.Width == 0 || src.Height == 0 {
		return out
	}

	var scaler draw.Scaler
	switch mode {
	case ResampleNearest, ResampleMode:
		scaler = draw.NearestNeighbor
	default:
		scaler = draw.BiLinear
	}

	for b := 0; b < src.Bands; b++ {
		srcData := src.BandData(b)
		lo, hi := bandRange(srcData)
		srcPlane := &floatPlane{data: srcData, w: src.Width, h: src.Height, lo: lo, hi: hi}
		dstPlane := &floatPlane{data: out.BandData(b), w: out.Width, h: out.Height, lo: lo, hi: hi}
		scaler.Scale(dstPlane, dstPlane.Bounds(), srcPlane, srcPlane.Bounds(), draw.Src, nil)
	}

	srcMask := make([]bool, src.Width*src.Height)
	for b := 0; b < src.Bands; b++ {
		bm := src.BandMask(b)
		for i, m := range bm {
			if m {
				srcMask[i] = true
			}
		}
	}
	outMask := out.Mask
	for y := 0; y < out.Height; y++ {
		sy := y * src.Height / out.Height
		if sy >= src.Height {
			sy = src.Height - 1
		}
		for x := 0; x < out.Width; x++ {
			sx := x * src.Width / out.Width
			if sx >= src.Width {
				sx = src.Width - 1
			}
			masked := srcMask[sy*src.Width+sx]
			for b := 0; b < out.Bands; b++ {
				outMask[out.Index(b, y, x)] = masked
			}
		}
	}
	return out
}

// bandRange returns the min/max of xs, or (0, 1) if xs is empty, used to
// scale float32 samples into floatPlane's fixed-point Gray16 encoding.
func bandRange(xs []float32) (float32, float32) {
	if len(xs) == 0 {
		return 0, 1
	}
	lo, hi := xs[0], xs[0]
	for _, v := range xs {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		hi = lo + 1
	}
	return lo, hi
}

// floatPlane adapts one band of float32 samples to image.Image/draw.Image so
// golang.org/x/image/draw's resampling kernels can run directly over the
// pipeline's native PixelCollection storage rather than an intermediate
// 8-bit copy. Samples are quantized to Gray16 over [lo, hi]; lo/hi must
// match between the source and destination plane of one Scale call so
// encode/decode round-trip without attenuation.
type floatPlane struct {
	data   []float32
	w, h   int
	lo, hi float32
}

func (p *floatPlane) ColorModel() color.Model { return color.Gray16Model }
func (p *floatPlane) Bounds() image.Rectangle { return image.Rect(0, 0, p.w, p.h) }
func (p *floatPlane) span() float32           { return p.hi - p.lo }

func (p *floatPlane) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= p.w || y >= p.h {
		return color.Gray16{}
	}
	v := p.data[y*p.w+x]
	scaled := (v - p.lo) / p.span()
	if scaled < 0 {
		scaled = 0
	}
	if scaled > 1 {
		scaled = 1
	}
	return color.Gray16{Y: uint16(scaled * 65535)}
}

func (p *floatPlane) Set(x, y int, c color.Color) {
	if x < 0 || y < 0 || x >= p.w || y >= p.h {
		return
	}
	g := color.Gray16Model.Convert(c).(color.Gray16)
	p.data[y*p.w+x] = p.lo + (float32(g.Y)/65535)*p.span()
}

func applyPolygonMask(pc *raster.PixelCollection, poly orb.Polygon) {
	dx := (pc.Bounds.Max[0] - pc.Bounds.Min[0]) / float64(pc.Width)
	dy := (pc.Bounds.Max[1] - pc.Bounds.Min[1]) / float64(pc.Height)
	for y := 0; y < pc.Height; y++ {
		geoY := pc.Bounds.Max[1] - (float64(y)+0.5)*dy
		for x := 0; x < pc.Width; x++ {
			geoX := pc.Bounds.Min[0] + (float64(x)+0.5)*dx
			if !polygonContains(poly, orb.Point{geoX, geoY}) {
				for b := 0; b < pc.Bands; b++ {
					pc.Mask[pc.Index(b, y, x)] = true
				}
			}
		}
	}
}

// polygonContains implements the even-odd ray-casting rule against a
// polygon's outer ring and subtracts its holes, matching the winding-order
// independent point-in-polygon test GIS clients commonly use for vector
// masks. Orb's Polygon is a slice of Rings (outer first, holes after); each
// Ring is a closed slice of Points.
func polygonContains(poly orb.Polygon, pt orb.Point) bool {
	if len(poly) == 0 || !ringContains(poly[0], pt) {
		return false
	}
	for _, hole := range poly[1:] {
		if ringContains(hole, pt) {
			return false
		}
	}
	return true
}

func ringContains(ring orb.Ring, pt orb.Point) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := ring[i], ring[j]
		if (pi[1] > pt[1]) != (pj[1] > pt[1]) {
			xIntersect := (pj[0]-pi[0])*(pt[1]-pi[1])/(pj[1]-pi[1]) + pi[0]
			if pt[0] < xIntersect {
				inside = !inside
			}
		}
	}
	return inside
}

func isFloatType(dt SampleType) bool { return dt == SampleFloat32 || dt == SampleFloat64 }
func isSignedType(dt SampleType) bool {
	switch dt {
	case SampleInt8, SampleInt16, SampleInt32, SampleFloat32, SampleFloat64:
		return true
	default:
		return false
	}
}
func bitDepth(dt SampleType) int {
	switch dt {
	case SampleUint8, SampleASCII, SampleInt8, SampleUndefined:
		return 8
	case SampleUint16, SampleInt16:
		return 16
	case SampleUint32, SampleInt32, SampleFloat32:
		return 32
	default:
		return 16
	}
}
