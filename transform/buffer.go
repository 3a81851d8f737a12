package transform

import (
	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
)

// Buffer is a no-op transformation that only widens the mosaic read area --
// used to pull in extra surrounding pixels for a downstream consumer that
// wants context without a displayed transform, per buffer.py. Its
// Postprocess declines to crop, matching buffer.py's override that returns
// the data untouched.
type Buffer struct {
	Size int
}

func NewBuffer(size int) *Buffer { return &Buffer{Size: size} }

func (b *Buffer) Buffer() int { return b.Size }

func (b *Buffer) Expand(bounds geom.Bounds, shape geom.Shape, collar int) (geom.Bounds, geom.Shape, CropOffsets) {
	return expandBounds(bounds, shape, b.Size+collar)
}

func (b *Buffer) Transform(pc *raster.PixelCollection) (*raster.PixelCollection, DataFormat) {
	return pc, FormatRaw
}

func (b *Buffer) Postprocess(pc *raster.PixelCollection, _ DataFormat, _ CropOffsets) *raster.PixelCollection {
	return pc
}
