package transform

import (
	"math"

	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
)

// Terrarium encodes 1-band elevation as a 3-channel RGB image per
// terrarium.py: u = elev + 32768 clipped to [0, 65535]; R = floor(u/256),
// G = floor(u mod 256), B = floor((u*256) mod 256). It has no intrinsic buffer --
// the encoding is pointwise, with no neighborhood dependency.
type Terrarium struct{}

func (t *Terrarium) Buffer() int { return 0 }

func (t *Terrarium) Expand(bounds geom.Bounds, shape geom.Shape, collar int) (geom.Bounds, geom.Shape, CropOffsets) {
	return expandBounds(bounds, shape, collar)
}

func (t *Terrarium) Transform(pc *raster.PixelCollection) (*raster.PixelCollection, DataFormat) {
	if pc.Bands != 1 {
		panic("transform: terrarium requires single-band elevation input")
	}
	height, width := pc.Height, pc.Width
	plane := height * width
	out := raster.NewPixelCollection(3, height, width, pc.Bounds)

	for i := 0; i < plane; i++ {
		u := float64(pc.Data[i]) + 32768.0
		u = math.Max(0, math.Min(65535, u))
		r := math.Floor(u / 256)
		g := math.Floor(math.Mod(u, 256))
		b := math.Floor(math.Mod(u*256, 256))

		out.Data[0*plane+i] = float32(r)
		out.Data[1*plane+i] = float32(g)
		out.Data[2*plane+i] = float32(b)
		masked := pc.Mask[i]
		out.Mask[0*plane+i] = masked
		out.Mask[1*plane+i] = masked
		out.Mask[2*plane+i] = masked
		if masked {
			out.Data[0*plane+i] = 0
		}
	}
	return out, FormatRGB
}

func (t *Terrarium) Postprocess(pc *raster.PixelCollection, _ DataFormat, offsets CropOffsets) *raster.PixelCollection {
	return crop(pc, offsets)
}
