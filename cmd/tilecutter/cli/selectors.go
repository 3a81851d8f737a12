package cli

import (
	"fmt"

	"github.com/marblecutter-go/tilecutter/format"
	"github.com/marblecutter-go/tilecutter/transform"
)

// selectTransformation maps a --transform flag value to a transform.Transformation,
// "" meaning no transformation (raw data straight to the encoder).
func selectTransformation(name string) (transform.Transformation, error) {
	switch name {
	case "":
		return nil, nil
	case "hillshade":
		return transform.NewHillshade(), nil
	case "normal":
		return &transform.Normal{}, nil
	case "terrarium":
		return &transform.Terrarium{}, nil
	case "image":
		return &transform.Image{}, nil
	case "greyscale":
		return &transform.Greyscale{}, nil
	case "colormap":
		return transform.NewColormap(format.NewColorRamp().Ramp.BuildLUT()), nil
	default:
		return nil, fmt.Errorf("unknown transform %q", name)
	}
}

// selectFormat maps a --format flag value to a format.Encoder.
func selectFormat(name string) (format.Encoder, error) {
	switch name {
	case "", "png":
		return format.PNG{}, nil
	case "jpeg":
		return format.JPEG{}, nil
	case "optimal":
		return format.Optimal{}, nil
	case "colorramp":
		return format.NewColorRamp(), nil
	case "geotiff":
		return format.NewGeoTIFF(), nil
	case "skadi":
		return format.Skadi{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", name)
	}
}

// defaultBands picks the canvas band count a transformation is expected to
// consume: pixel transformations that accept single-band elevation input
// need a 1-band canvas; everything else composites RGB imagery.
func defaultBands(transformName string) int {
	switch transformName {
	case "hillshade", "normal", "terrarium", "greyscale", "colormap":
		return 1
	default:
		return 3
	}
}
