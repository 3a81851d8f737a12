package transform

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
)

// hillshadeExaggeration is "from http://www.shadedrelief.com/web_relief/",
// ported verbatim from
// original_source/marblecutter/transformations/hillshade.py's EXAGGERATION.
var hillshadeExaggeration = map[int]float64{
	0: 45.0, 1: 29.0, 2: 20.0, 3: 14.0, 4: 9.5, 5: 6.5, 6: 5.0, 7: 3.6,
	8: 2.7, 9: 2.1, 10: 1.7, 11: 1.4, 12: 1.3, 13: 1.2, 14: 1.1,
}

// hillshadeResampleFactor is the same file's RESAMPLING table: Tom
// Paterson's chart of generalization factors at mid-zooms.
var hillshadeResampleFactor = map[int]float64{
	5: 0.9, 6: 0.8, 7: 0.8, 8: 0.7, 9: 0.7, 10: 0.7, 11: 0.8, 12: 0.8, 13: 0.9,
}

const (
	hillshadeAzimuthDeg = 315.0
	hillshadeAltitudeDeg = 45.0
)

// Hillshade converts a 1-band elevation canvas into a 1-band, uint8-valued
// illumination map: azimuth 315°, altitude 45°, zoom-indexed vertical
// exaggeration, optionally multiplied by a slopeshade term and
// generalized at mid-zooms by resampling down then back up per Paterson's
// chart, exactly as hillshade.py's Hillshade.transform does.
type Hillshade struct {
	Resample      bool
	AddSlopeshade bool
}

func NewHillshade() *Hillshade {
	return &Hillshade{Resample: true, AddSlopeshade: true}
}

func (h *Hillshade) Buffer() int { return 4 }

func (h *Hillshade) Expand(bounds geom.Bounds, shape geom.Shape, collar int) (geom.Bounds, geom.Shape, CropOffsets) {
	return expandBounds(bounds, shape, h.Buffer()+collar)
}

func (h *Hillshade) Transform(pc *raster.PixelCollection) (*raster.PixelCollection, DataFormat) {
	if pc.Bands != 1 {
		panic("transform: hillshade requires single-band elevation input")
	}

	dx, dy := geom.ResolutionInMeters(pc.Bounds, geom.Shape{Height: pc.Height, Width: pc.Width})
	zoom := geom.ZoomForResolution(math.Max(dx, dy), geom.RoundNearest)
	dy = -dy

	elevation := latitudeAdjust(pc)
	exag := hillshadeExaggeration[14]
	if v, ok := hillshadeExaggeration[zoom]; ok {
		exag = v
	}

	var intensity []float64
	resampleFactor, hasFactor := hillshadeResampleFactor[zoom]
	if h.Resample && hasFactor && resampleFactor != 1.0 {
		intensity = hillshadeGeneralized(elevation, pc.Height, pc.Width, dx, dy, exag, resampleFactor, h.AddSlopeshade)
	} else {
		intensity = hillshadeDirect(elevation, pc.Height, pc.Width, dx, dy, exag, h.AddSlopeshade)
	}

	out := raster.NewPixelCollection(1, pc.Height, pc.Width, pc.Bounds)
	for i, v := range intensity {
		out.Data[i] = float32(clampByte(255.0 * v))
		out.Mask[i] = pc.Mask[i]
	}
	return out, FormatRaw
}

func (h *Hillshade) Postprocess(pc *raster.PixelCollection, _ DataFormat, offsets CropOffsets) *raster.PixelCollection {
	return crop(pc, offsets)
}

// hillshadeDirect computes hillshade (and optional slopeshade) at native
// resolution, the non-generalized branch of hillshade.py.
func hillshadeDirect(elevation []float32, height, width int, dx, dy, vertExag float64, addSlopeshade bool) []float64 {
	gy, gx := gradient2D(elevation, height, width, dx, dy, vertExag)
	out := make([]float64, height*width)
	for i := range out {
		hs := illuminate(gx[i], gy[i])
		if addSlopeshade {
			hs *= slopeFraction(gx[i], gy[i])
		}
		out[i] = hs
	}
	return out
}

// hillshadeGeneralized downsamples elevation by resampleFactor, computes
// hillshade at the coarser resolution, then upsamples the result back to
// native size -- hillshade.py's "resample according to Tom Paterson's
// chart" branch, realized with golang.org/x/image/draw's bilinear scaler
// via scalarPlane, this package's copy of the Gray16-quantized float plane
// adapter source.ReadWindow uses.
func hillshadeGeneralized(elevation []float32, height, width int, dx, dy, vertExag, factor float64, addSlopeshade bool) []float64 {
	rh := int(math.Round(float64(height) * factor))
	rw := int(math.Round(float64(width) * factor))
	if rh < 1 || rw < 1 {
		return hillshadeDirect(elevation, height, width, dx, dy, vertExag, addSlopeshade)
	}

	lo, hi := rangeOf(elevation)
	srcPlane := &scalarPlane{data: elevation, w: width, h: height, lo: lo, hi: hi}
	resampledData := make([]float32, rh*rw)
	dstPlane := &scalarPlane{data: resampledData, w: rw, h: rh, lo: lo, hi: hi}
	draw.BiLinear.Scale(dstPlane, dstPlane.Bounds(), srcPlane, srcPlane.Bounds(), draw.Src, nil)

	rdx := dx * float64(width) / float64(rw)
	rdy := dy * float64(height) / float64(rh)
	hs := hillshadeDirect(resampledData, rh, rw, rdx, rdy, vertExag, addSlopeshade)

	hsData := make([]float32, rh*rw)
	for i, v := range hs {
		hsData[i] = float32(v)
	}

	upData := make([]float32, height*width)
	srcHs := &scalarPlane{data: hsData, w: rw, h: rh, lo: 0, hi: 1}
	dstHs := &scalarPlane{data: upData, w: width, h: height, lo: 0, hi: 1}
	draw.BiLinear.Scale(dstHs, dstHs.Bounds(), srcHs, srcHs.Bounds(), draw.Src, nil)

	out := make([]float64, height*width)
	for i, v := range upData {
		out[i] = float64(v)
	}
	return out
}

// gradient2D computes the central-difference gradient of elevation scaled
// by vertExag, mirroring np.gradient(vert_exag * elevation, dy, dx).
func gradient2D(elevation []float32, height, width int, dx, dy, vertExag float64) (gy, gx []float64) {
	gy = make([]float64, height*width)
	gx = make([]float64, height*width)
	at := func(y, x int) float64 {
		if y < 0 {
			y = 0
		}
		if y >= height {
			y = height - 1
		}
		if x < 0 {
			x = 0
		}
		if x >= width {
			x = width - 1
		}
		return float64(elevation[y*width+x]) * vertExag
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gy[y*width+x] = (at(y+1, x) - at(y-1, x)) / (2 * dy)
			gx[y*width+x] = (at(y, x+1) - at(y, x-1)) / (2 * dx)
		}
	}
	return gy, gx
}

// illuminate implements matplotlib.colors.LightSource.hillshade (minus its
// contrast stretch), fixed at azimuth 315°/altitude 45°.
func illuminate(gx, gy float64) float64 {
	az := (90 - hillshadeAzimuthDeg) * math.Pi / 180
	alt := hillshadeAltitudeDeg * math.Pi / 180
	aspect := math.Atan2(-gy, -gx)
	slope := 0.5*math.Pi - math.Atan(math.Hypot(gx, gy))
	v := math.Sin(alt)*math.Sin(slope) + math.Cos(alt)*math.Cos(slope)*math.Cos(az-aspect)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func slopeFraction(gx, gy float64) float64 {
	slope := 0.5*math.Pi - math.Atan(math.Hypot(gx, gy))
	return slope / (math.Pi / 2)
}

func rangeOf(xs []float32) (float32, float32) {
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

// scalarPlane is transform's analogue of source.floatPlane: a float32 plane
// quantized to Gray16 over [lo, hi] so golang.org/x/image/draw's resampling
// kernels can run directly on elevation/intensity data without an 8-bit
// intermediate copy.
type scalarPlane struct {
	data   []float32
	w, h   int
	lo, hi float32
}

func (p *scalarPlane) ColorModel() color.Model { return color.Gray16Model }
func (p *scalarPlane) Bounds() image.Rectangle { return image.Rect(0, 0, p.w, p.h) }
func (p *scalarPlane) span() float32           { return p.hi - p.lo }

func (p *scalarPlane) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= p.w || y >= p.h {
		return color.Gray16{}
	}
	scaled := (p.data[y*p.w+x] - p.lo) / p.span()
	if scaled < 0 {
		scaled = 0
	}
	if scaled > 1 {
		scaled = 1
	}
	return color.Gray16{Y: uint16(scaled * 65535)}
}

func (p *scalarPlane) Set(x, y int, c color.Color) {
	if x < 0 || y < 0 || x >= p.w || y >= p.h {
		return
	}
	g := color.Gray16Model.Convert(c).(color.Gray16)
	p.data[y*p.w+x] = p.lo + (float32(g.Y)/65535)*p.span()
}
