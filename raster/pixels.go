// Package raster implements the PixelCollection masked-array type that
// carries pixel data through the render pipeline (spec.md §3), generalizing
// the teacher's raw band-interleaved RasterData (tingold-gocog's cog.go) into
// a float32 masked array so every downstream transform operates on one
// numeric representation.
package raster

import (
	"fmt"

	"github.com/marblecutter-go/tilecutter/geom"
)

// Colormap maps an 8-bit index to an RGBA color, used by paletted sources and
// the Colormap/ColorRamp transformations and formats.
type Colormap map[uint8][4]uint8

// PixelCollection is a masked numeric array over bounds, shaped
// (Bands, Height, Width), stored band-sequential. Mask[i] is true when the
// corresponding pixel is invalid (nodata/uncovered) -- the same "mask is
// nodata" convention the original numpy-based implementation used
// (np.ma.MaskedArray), carried forward here rather than inverted, so porting
// logic from marblecutter's recipes/transformations stays mechanical.
type PixelCollection struct {
	Data   []float32
	Mask   []bool
	Bands  int
	Height int
	Width  int
	Bounds geom.Bounds

	// Band, when non-nil, restricts this collection to filling a single
	// canvas band during compositing (spec.md §3 Source.band).
	Band *int

	// Colormap, when non-nil, means Data holds 8-bit palette indices rather
	// than direct sample values.
	Colormap Colormap
}

// NewPixelCollection allocates a fully-masked collection of the given shape.
func NewPixelCollection(bands, height, width int, bounds geom.Bounds) *PixelCollection {
	n := bands * height * width
	pc := &PixelCollection{
		Data:   make([]float32, n),
		Mask:   make([]bool, n),
		Bands:  bands,
		Height: height,
		Width:  width,
		Bounds: bounds,
	}
	for i := range pc.Mask {
		pc.Mask[i] = true
	}
	return pc
}

// Index returns the flat index for (band, y, x) in band-sequential layout:
// one full band plane at a time, matching typical GDAL/(bands,h,w) layout.
func (p *PixelCollection) Index(band, y, x int) int {
	return band*p.Height*p.Width + y*p.Width + x
}

// At returns the value and validity at (band, y, x).
func (p *PixelCollection) At(band, y, x int) (value float32, valid bool) {
	i := p.Index(band, y, x)
	return p.Data[i], !p.Mask[i]
}

// Set writes a value and marks it valid.
func (p *PixelCollection) Set(band, y, x int, value float32) {
	i := p.Index(band, y, x)
	p.Data[i] = value
	p.Mask[i] = false
}

// BandData returns the flat samples for one band without copying.
func (p *PixelCollection) BandData(band int) []float32 {
	start := band * p.Height * p.Width
	return p.Data[start : start+p.Height*p.Width]
}

// BandMask returns the flat mask for one band without copying.
func (p *PixelCollection) BandMask(band int) []bool {
	start := band * p.Height * p.Width
	return p.Mask[start : start+p.Height*p.Width]
}

// AllMasked reports whether every pixel in the collection is masked.
func (p *PixelCollection) AllMasked() bool {
	for _, m := range p.Mask {
		if !m {
			return false
		}
	}
	return true
}

// AnyMasked reports whether at least one pixel is masked.
func (p *PixelCollection) AnyMasked() bool {
	for _, m := range p.Mask {
		if m {
			return true
		}
	}
	return false
}

// CheckCompatible enforces the paste precondition from spec.md §4.5/§8.2:
// bounds, CRS and pixel shape must match exactly. Band count is deliberately
// not compared here: a source window may carry a single band destined for
// one band of a wider canvas (see Source.Band), so only paste() knows
// whether the band counts in play are expected to differ. Mismatches found
// here are programmer errors (InternalInvariant) and are reported, never
// silently coerced.
func CheckCompatible(a, b *PixelCollection) error {
	if a.Bounds.CRS != b.Bounds.CRS {
		return fmt.Errorf("raster: CRS mismatch: %s vs %s", a.Bounds.CRS, b.Bounds.CRS)
	}
	if a.Bounds != b.Bounds {
		return fmt.Errorf("raster: bounds mismatch: %+v vs %+v", a.Bounds, b.Bounds)
	}
	if a.Height != b.Height || a.Width != b.Width {
		return fmt.Errorf("raster: shape mismatch: (%d,%d) vs (%d,%d)", a.Height, a.Width, b.Height, b.Width)
	}
	return nil
}
