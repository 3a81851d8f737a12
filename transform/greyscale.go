package transform

import (
	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
)

// Greyscale triple-replicates a 1-band canvas into 3 bands and hands it to
// Image, matching greyscale.py.
type Greyscale struct {
	image Image
}

func (g *Greyscale) Buffer() int { return 0 }

func (g *Greyscale) Expand(bounds geom.Bounds, shape geom.Shape, collar int) (geom.Bounds, geom.Shape, CropOffsets) {
	return expandBounds(bounds, shape, collar)
}

func (g *Greyscale) Transform(pc *raster.PixelCollection) (*raster.PixelCollection, DataFormat) {
	if pc.Bands != 1 {
		panic("transform: greyscale requires single-band input")
	}
	plane := pc.Height * pc.Width
	triple := raster.NewPixelCollection(3, pc.Height, pc.Width, pc.Bounds)
	for b := 0; b < 3; b++ {
		copy(triple.Data[b*plane:(b+1)*plane], pc.Data)
		copy(triple.Mask[b*plane:(b+1)*plane], pc.Mask)
	}
	return g.image.Transform(triple)
}

func (g *Greyscale) Postprocess(pc *raster.PixelCollection, _ DataFormat, offsets CropOffsets) *raster.PixelCollection {
	return crop(pc, offsets)
}
