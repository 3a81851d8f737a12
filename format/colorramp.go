package format

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sort"

	"github.com/marblecutter-go/tilecutter/raster"
	"github.com/marblecutter-go/tilecutter/transform"
)

// RampStop is one control point of a segmented colormap: x in [0,1] maps to
// the channel value just below (y0) and just above (y1) the stop, matching
// matplotlib's LinearSegmentedColormap segment-data convention (a
// discontinuity is expressed by y0 != y1 at the same x).
type RampStop struct {
	X      float64
	Y0, Y1 float64
}

// Ramp is a segmented colormap over the three color channels, each a sorted
// list of RampStops spanning x=0..1.
type Ramp struct {
	Red, Green, Blue []RampStop
}

// GreyHillsRamp is the default "grey hills" colormap, ported verbatim from
// color_ramp.py's GREY_HILLS_RAMP.
var GreyHillsRamp = Ramp{
	Red:   greyHillsChannel,
	Green: greyHillsChannel,
	Blue:  greyHillsChannel,
}

var greyHillsChannel = []RampStop{
	{X: 0.0, Y0: 0.0, Y1: 0.0},
	{X: 0.25, Y0: 0.0, Y1: 0.0},
	{X: 180.0 / 255.0, Y0: 0.5, Y1: 0.5},
	{X: 1.0, Y0: 170.0 / 255.0, Y1: 170.0 / 255.0},
}

// sampleChannel evaluates a channel's segment list at t in [0,1] via linear
// interpolation between surrounding stops, the same evaluation
// LinearSegmentedColormap performs.
func sampleChannel(stops []RampStop, t float64) float64 {
	if len(stops) == 0 {
		return 0
	}
	if t <= stops[0].X {
		return stops[0].Y1
	}
	if t >= stops[len(stops)-1].X {
		return stops[len(stops)-1].Y0
	}
	i := sort.Search(len(stops), func(i int) bool { return stops[i].X >= t })
	lo, hi := stops[i-1], stops[i]
	if hi.X == lo.X {
		return lo.Y1
	}
	frac := (t - lo.X) / (hi.X - lo.X)
	return lo.Y1 + frac*(hi.Y0-lo.Y1)
}

// BuildLUT materializes a 256-entry RGBA lookup table from a Ramp, the Go
// equivalent of calling imsave with vmin=0, vmax=255 over a
// LinearSegmentedColormap.
func (r Ramp) BuildLUT() raster.Colormap {
	lut := make(raster.Colormap, 256)
	for i := 0; i < 256; i++ {
		t := float64(i) / 255.0
		lut[uint8(i)] = [4]uint8{
			clampByte(sampleChannel(r.Red, t) * 255),
			clampByte(sampleChannel(r.Green, t) * 255),
			clampByte(sampleChannel(r.Blue, t) * 255),
			255,
		}
	}
	return lut
}

// ColorRamp encodes a single-band uint8-valued (post-transform, raw format)
// canvas to PNG after applying a segmented colormap, default "grey hills",
// per color_ramp.py's ColorRamp format.
type ColorRamp struct {
	Ramp Ramp
}

func NewColorRamp() ColorRamp { return ColorRamp{Ramp: GreyHillsRamp} }

func (c ColorRamp) Encode(pc *raster.PixelCollection, dataFormat transform.DataFormat) (string, []byte, error) {
	if dataFormat != transform.FormatRaw {
		return "", nil, fmt.Errorf("format: color ramp requires raw data, got %q", dataFormat)
	}
	if pc.Bands != 1 {
		return "", nil, fmt.Errorf("format: color ramp requires single-band data, got %d bands", pc.Bands)
	}

	lut := c.Ramp.BuildLUT()
	img := image.NewNRGBA(image.Rect(0, 0, pc.Width, pc.Height))
	for i := 0; i < pc.Height*pc.Width; i++ {
		idx := clampByte(float64(pc.Data[i]))
		rgba := lut[idx]
		o := i * 4
		img.Pix[o+0] = rgba[0]
		img.Pix[o+1] = rgba[1]
		img.Pix[o+2] = rgba[2]
		a := rgba[3]
		if pc.Mask[i] {
			a = 0
		}
		img.Pix[o+3] = a
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", nil, fmt.Errorf("format: encode color ramp png: %w", err)
	}
	return "image/png", buf.Bytes(), nil
}
