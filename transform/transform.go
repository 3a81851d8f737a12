// Package transform implements the pixel transformations of spec.md §4.6:
// Hillshade, Normal, Terrarium, Image, Colormap, Greyscale and Buffer. Each
// transformation expands the read window by an intrinsic buffer (plus an
// optional caller-supplied collar) before compositing, transforms the
// composited canvas into a display representation, then crops the buffer
// back off. Grounded on
// original_source/marblecutter/transformations/{__init__,utils}.py's
// TransformationBase.expand()/crop() and the teacher's resampling code in
// source/window.go for the one place a transformation itself resamples
// (Hillshade's Paterson-factor downsample/upsample).
package transform

import (
	"math"

	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
)

// DataFormat names the pixel representation a Transform step hands to the
// format encoders: "raw" float32 samples, or a fixed-channel uint8-valued
// image (still stored as float32 per PixelCollection's convention, with
// values already integral in [0,255]).
type DataFormat string

const (
	FormatRaw  DataFormat = "raw"
	FormatRGB  DataFormat = "RGB"
	FormatRGBA DataFormat = "RGBA"
)

// CropOffsets is the (left, right, bottom, top) pixel margin to remove in
// Postprocess, in that order to match spec.md §3's buffer-tuple convention.
type CropOffsets struct {
	Left, Right, Bottom, Top int
}

// Transformation is the interface every §4.6 transform implements.
type Transformation interface {
	// Buffer returns the transformation's intrinsic buffer size, in pixels,
	// added on every side before compositing (0 for transforms that need no
	// extra context beyond the requested tile).
	Buffer() int
	// Expand computes the widened bounds/shape to composite into, and the
	// crop offsets Postprocess must later remove.
	Expand(bounds geom.Bounds, shape geom.Shape, collar int) (geom.Bounds, geom.Shape, CropOffsets)
	// Transform converts composited raw pixels into the transformation's
	// display representation.
	Transform(pc *raster.PixelCollection) (*raster.PixelCollection, DataFormat)
	// Postprocess removes the buffer added by Expand, unless the
	// transformation declines to (Buffer's no-op override).
	Postprocess(pc *raster.PixelCollection, format DataFormat, offsets CropOffsets) *raster.PixelCollection
}

// expandBounds widens bounds by buffer pixels on every side, clamping back to
// the target CRS's global extent at whichever edges it would otherwise
// overrun -- mirroring __init__.py's render() buffer/extent-clamp logic,
// generalized from the single render() call site into a reusable helper
// every transformation's Expand calls.
func expandBounds(bounds geom.Bounds, shape geom.Shape, buffer int) (geom.Bounds, geom.Shape, CropOffsets) {
	if buffer <= 0 {
		return bounds, shape, CropOffsets{}
	}

	dx, dy := geom.Resolution(bounds, shape)
	expanded := geom.NewBounds(
		bounds.Min[0]-float64(buffer)*dx,
		bounds.Min[1]-float64(buffer)*dy,
		bounds.Max[0]+float64(buffer)*dx,
		bounds.Max[1]+float64(buffer)*dy,
		bounds.CRS,
	)
	newShape := geom.Shape{
		Height: shape.Height + 2*buffer,
		Width:  shape.Width + 2*buffer,
	}
	offsets := CropOffsets{Left: buffer, Right: buffer, Bottom: buffer, Top: buffer}

	extent, err := geom.Extent(bounds.CRS)
	if err != nil {
		return expanded, newShape, offsets
	}

	if expanded.Min[0] < extent.Min[0] {
		newShape.Width -= buffer
		expanded.Min[0] = bounds.Min[0]
		offsets.Left = 0
	}
	if expanded.Max[0] > extent.Max[0] {
		newShape.Width -= buffer
		expanded.Max[0] = bounds.Max[0]
		offsets.Right = 0
	}
	if expanded.Min[1] < extent.Min[1] {
		newShape.Height -= buffer
		expanded.Min[1] = bounds.Min[1]
		offsets.Bottom = 0
	}
	if expanded.Max[1] > extent.Max[1] {
		newShape.Height -= buffer
		expanded.Max[1] = bounds.Max[1]
		offsets.Top = 0
	}

	return expanded, newShape, offsets
}

// crop removes offsets from every band of pc, returning a new, smaller
// PixelCollection; bounds shrink by the corresponding fraction of the pixel
// grid. An edge where Expand declined to grow past the global extent carries
// a zero offset and is left as it is: no rows are replicated at the poles
// and no columns are wrapped across the antimeridian.
func crop(pc *raster.PixelCollection, offsets CropOffsets) *raster.PixelCollection {
	if offsets == (CropOffsets{}) {
		return pc
	}
	newWidth := pc.Width - offsets.Left - offsets.Right
	newHeight := pc.Height - offsets.Bottom - offsets.Top
	if newWidth <= 0 || newHeight <= 0 || newWidth == pc.Width && newHeight == pc.Height {
		return pc
	}

	dx := (pc.Bounds.Max[0] - pc.Bounds.Min[0]) / float64(pc.Width)
	dy := (pc.Bounds.Max[1] - pc.Bounds.Min[1]) / float64(pc.Height)
	newBounds := geom.NewBounds(
		pc.Bounds.Min[0]+float64(offsets.Left)*dx,
		pc.Bounds.Min[1]+float64(offsets.Bottom)*dy,
		pc.Bounds.Max[0]-float64(offsets.Right)*dx,
		pc.Bounds.Max[1]-float64(offsets.Top)*dy,
		pc.Bounds.CRS,
	)

	out := raster.NewPixelCollection(pc.Bands, newHeight, newWidth, newBounds)
	for b := 0; b < pc.Bands; b++ {
		for y := 0; y < newHeight; y++ {
			srcY := y + offsets.Top
			for x := 0; x < newWidth; x++ {
				srcX := x + offsets.Left
				v, valid := pc.At(b, srcY, srcX)
				if valid {
					out.Set(b, y, x, v)
				}
			}
		}
	}
	return out
}

// latitudeAdjust scales elevation samples by 1/cos(latitude) row-wise, the
// Mercator vertical-exaggeration correction every elevation-derived
// transformation applies before computing slope/aspect, grounded on
// transformations/utils.py's apply_latitude_adjustments.
func latitudeAdjust(pc *raster.PixelCollection) []float32 {
	out := make([]float32, len(pc.Data))
	copy(out, pc.Data)
	if pc.Bounds.CRS != geom.WGS84 {
		wgs, err := pc.Bounds.In(geom.WGS84)
		if err == nil {
			applyLatitudeFactors(out, pc, wgs)
			return out
		}
	}
	applyLatitudeFactors(out, pc, pc.Bounds)
	return out
}

func applyLatitudeFactors(data []float32, pc *raster.PixelCollection, wgsBounds geom.Bounds) {
	for y := 0; y < pc.Height; y++ {
		frac := float64(y) / math.Max(1, float64(pc.Height-1))
		lat := wgsBounds.Max[1] + frac*(wgsBounds.Min[1]-wgsBounds.Max[1])
		factor := float32(1.0 / math.Cos(lat*math.Pi/180.0))
		for x := 0; x < pc.Width; x++ {
			idx := y*pc.Width + x
			data[idx] *= factor
		}
	}
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
