package transform

import (
	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
)

// Image converts 3- or 4-band float imagery into an RGBA uint8-valued
// canvas: if an alpha band is already present it is carried through;
// otherwise alpha is synthesized as 255 where every band is valid and 0
// where any band is masked, per image.py's Image.transform (that file
// rejects a literal 4th band as "not yet implemented" -- here a 4th band is
// instead treated as an already-supplied alpha channel, the generalization
// Colormap relies on when it hands Image already-alpha-bearing RGBA data;
// Greyscale hands Image 3 bands and gets synthesized alpha).
type Image struct{}

func (im *Image) Buffer() int { return 0 }

func (im *Image) Expand(bounds geom.Bounds, shape geom.Shape, collar int) (geom.Bounds, geom.Shape, CropOffsets) {
	return expandBounds(bounds, shape, collar)
}

func (im *Image) Transform(pc *raster.PixelCollection) (*raster.PixelCollection, DataFormat) {
	height, width := pc.Height, pc.Width
	plane := height * width

	switch pc.Bands {
	case 1:
		return im.broadcastGrey(pc)
	case 3:
		out := raster.NewPixelCollection(4, height, width, pc.Bounds)
		for b := 0; b < 3; b++ {
			copy(out.Data[b*plane:(b+1)*plane], pc.BandData(b))
		}
		for i := 0; i < plane; i++ {
			valid := true
			for b := 0; b < 3; b++ {
				if pc.Mask[b*plane+i] {
					valid = false
					break
				}
			}
			a := float32(0)
			if valid {
				a = 255
			}
			out.Data[3*plane+i] = a
			for b := 0; b < 4; b++ {
				out.Mask[b*plane+i] = !valid
			}
		}
		return out, FormatRGBA
	case 4:
		out := raster.NewPixelCollection(4, height, width, pc.Bounds)
		copy(out.Data, pc.Data)
		copy(out.Mask, pc.Mask)
		return out, FormatRGBA
	default:
		panic("transform: image requires 1, 3, or 4 band input")
	}
}

func (im *Image) broadcastGrey(pc *raster.PixelCollection) (*raster.PixelCollection, DataFormat) {
	plane := pc.Height * pc.Width
	out := raster.NewPixelCollection(4, pc.Height, pc.Width, pc.Bounds)
	for b := 0; b < 3; b++ {
		copy(out.Data[b*plane:(b+1)*plane], pc.Data)
	}
	for i := 0; i < plane; i++ {
		a := float32(0)
		if !pc.Mask[i] {
			a = 255
		}
		out.Data[3*plane+i] = a
		for b := 0; b < 4; b++ {
			out.Mask[b*plane+i] = pc.Mask[i]
		}
	}
	return out, FormatRGBA
}

func (im *Image) Postprocess(pc *raster.PixelCollection, _ DataFormat, offsets CropOffsets) *raster.PixelCollection {
	return crop(pc, offsets)
}
