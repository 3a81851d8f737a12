package transform

import (
	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
)

// Colormap expands a 1-band uint8 index canvas into RGBA via a palette
// lookup table, then hands the result to Image for mask/alpha handling, per
// colormap.py's Colormap.transform.
type Colormap struct {
	LUT   raster.Colormap
	image Image
}

func NewColormap(lut raster.Colormap) *Colormap {
	return &Colormap{LUT: lut}
}

func (c *Colormap) Buffer() int { return 0 }

func (c *Colormap) Expand(bounds geom.Bounds, shape geom.Shape, collar int) (geom.Bounds, geom.Shape, CropOffsets) {
	return expandBounds(bounds, shape, collar)
}

func (c *Colormap) Transform(pc *raster.PixelCollection) (*raster.PixelCollection, DataFormat) {
	if pc.Bands != 1 {
		panic("transform: colormap requires single-band index input")
	}
	plane := pc.Height * pc.Width
	rgba := raster.NewPixelCollection(4, pc.Height, pc.Width, pc.Bounds)
	for i := 0; i < plane; i++ {
		idx := uint8(pc.Data[i])
		color, ok := c.LUT[idx]
		if !ok {
			color = [4]uint8{0, 0, 0, 0}
		}
		for b := 0; b < 4; b++ {
			rgba.Data[b*plane+i] = float32(color[b])
			rgba.Mask[b*plane+i] = pc.Mask[i]
		}
	}
	return c.image.Transform(rgba)
}

func (c *Colormap) Postprocess(pc *raster.PixelCollection, _ DataFormat, offsets CropOffsets) *raster.PixelCollection {
	return crop(pc, offsets)
}
