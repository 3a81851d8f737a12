package transform

import (
	"math"
	"sort"

	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/raster"
)

// heightTable is a hypsometric lookup concentrating precision between sea
// level and 3000m, generated exactly per
// original_source/marblecutter/transformations/normal.py's
// _generate_mapping_table(): kept as a function rather than a literal so the
// derivation stays visible, same rationale the original gives for not
// writing the table out as a blob of numbers.
func heightTable() []float64 {
	var t []float64
	for i := 0; i < 11; i++ {
		t = append(t, -11000+float64(i)*1000)
	}
	t = append(t, -100, -50, -20, -10, -1)
	for i := 0; i < 150; i++ {
		t = append(t, 20*float64(i))
	}
	for i := 0; i < 60; i++ {
		t = append(t, 3000+50*float64(i))
	}
	for i := 0; i < 29; i++ {
		t = append(t, 6000+100*float64(i))
	}
	return t
}

var normalHeightTable = heightTable()

// hypsometricIndex returns 255 - bisect_left(HEIGHT_TABLE, h): low heights
// near sea level get high indices (more opaque when used as alpha), per
// normal.py's _height_mapping_func.
func hypsometricIndex(h float64) uint8 {
	idx := sort.Search(len(normalHeightTable), func(i int) bool { return normalHeightTable[i] >= h })
	v := 255 - idx
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return uint8(v)
}

// Normal converts a 1-band elevation canvas into a 4-channel (x, y, z, h)
// surface-normal map: (x, y, z) is the unit normal mapped from [-1, 1] to
// [0, 255], h is the hypsometric tint index, per normal.py's Normal.transform.
type Normal struct{}

func (n *Normal) Buffer() int { return 4 }

func (n *Normal) Expand(bounds geom.Bounds, shape geom.Shape, collar int) (geom.Bounds, geom.Shape, CropOffsets) {
	return expandBounds(bounds, shape, n.Buffer()+collar)
}

func (n *Normal) Transform(pc *raster.PixelCollection) (*raster.PixelCollection, DataFormat) {
	if pc.Bands != 1 {
		panic("transform: normal requires single-band elevation input")
	}

	dx, dy := geom.ResolutionInMeters(pc.Bounds, geom.Shape{Height: pc.Height, Width: pc.Width})
	elevation := latitudeAdjust(pc)
	height, width := pc.Height, pc.Width

	gy, gx := gradientSpacing2(elevation, height, width, 2.0)

	out := raster.NewPixelCollection(4, height, width, pc.Bounds)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			nx := -1.0 / dx * gx[i]
			ny := 1.0 / dy * gy[i]
			nz := 1.0
			norm := math.Sqrt(nx*nx + ny*ny + nz*nz)
			if norm == 0 {
				norm = 1
			}
			rX := clampByte(128.0 * (nx/norm + 1.0))
			rY := clampByte(128.0 * (ny/norm + 1.0))
			rZ := clampByte(128.0 * (nz/norm + 1.0))
			h := hypsometricIndex(float64(elevation[i]))
			if pc.Mask[i] {
				h = 0
			}
			out.Data[0*height*width+i] = float32(rX)
			out.Data[1*height*width+i] = float32(rY)
			out.Data[2*height*width+i] = float32(rZ)
			out.Data[3*height*width+i] = float32(h)
			for b := 0; b < 4; b++ {
				out.Mask[b*height*width+i] = pc.Mask[i]
			}
		}
	}
	return out, FormatRGBA
}

func (n *Normal) Postprocess(pc *raster.PixelCollection, _ DataFormat, offsets CropOffsets) *raster.PixelCollection {
	return crop(pc, offsets)
}

// gradientSpacing2 is np.gradient(data, 2): central difference with a fixed
// sample spacing of 2, used by normal.py in preference to the true pixel
// spacing (which is folded into nx/ny's 1/dx, 1/dy scaling instead).
func gradientSpacing2(data []float32, height, width int, spacing float64) (gy, gx []float64) {
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
		return float64(data[y*width+x])
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gy[y*width+x] = (at(y+1, x) - at(y-1, x)) / (2 * spacing)
			gx[y*width+x] = (at(y, x+1) - at(y, x-1)) / (2 * spacing)
		}
	}
	return gy, gx
}
