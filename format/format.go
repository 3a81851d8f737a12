// Package format implements the pixel encoders of spec.md §4.7: PNG, JPEG,
// Optimal (JPEG-or-PNG), ColorRamp, GeoTIFF and Skadi. Grounded on
// original_source/marblecutter/formats/*.py, realized with Go's standard
// image/png and image/jpeg encoders (no third-party PNG/JPEG codec appears
// anywhere in the example pack, and Go's own image/* package is itself the
// idiomatic choice any of those repos would reach for) plus a hand-rolled
// GeoTIFF writer mirroring the TIFF tag tables in source/container.go.
package format

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/marblecutter-go/tilecutter/raster"
	"github.com/marblecutter-go/tilecutter/transform"
)

// Encoder renders a transformed PixelCollection plus its DataFormat into a
// content type and a byte payload.
type Encoder interface {
	Encode(pc *raster.PixelCollection, dataFormat transform.DataFormat) (contentType string, payload []byte, err error)
}

// toImage converts an RGB/RGBA-tagged float32 PixelCollection (values
// already integral 0-255, transform's convention) into a stdlib image.Image.
func toImage(pc *raster.PixelCollection, dataFormat transform.DataFormat) (image.Image, error) {
	plane := pc.Height * pc.Width
	switch dataFormat {
	case transform.FormatRGBA:
		if pc.Bands != 4 {
			return nil, fmt.Errorf("format: RGBA data format requires 4 bands, got %d", pc.Bands)
		}
		img := image.NewNRGBA(image.Rect(0, 0, pc.Width, pc.Height))
		for i := 0; i < plane; i++ {
			o := i * 4
			img.Pix[o+0] = byte(pc.Data[0*plane+i])
			img.Pix[o+1] = byte(pc.Data[1*plane+i])
			img.Pix[o+2] = byte(pc.Data[2*plane+i])
			img.Pix[o+3] = byte(pc.Data[3*plane+i])
		}
		return img, nil
	case transform.FormatRGB:
		if pc.Bands != 3 {
			return nil, fmt.Errorf("format: RGB data format requires 3 bands, got %d", pc.Bands)
		}
		img := image.NewNRGBA(image.Rect(0, 0, pc.Width, pc.Height))
		for i := 0; i < plane; i++ {
			o := i * 4
			img.Pix[o+0] = byte(pc.Data[0*plane+i])
			img.Pix[o+1] = byte(pc.Data[1*plane+i])
			img.Pix[o+2] = byte(pc.Data[2*plane+i])
			img.Pix[o+3] = 255
		}
		return img, nil
	default:
		return nil, fmt.Errorf("format: unsupported data format %q for image encoding", dataFormat)
	}
}

// PNG encodes RGBA/RGB pixel data to PNG bytes.
type PNG struct{}

func (PNG) Encode(pc *raster.PixelCollection, dataFormat transform.DataFormat) (string, []byte, error) {
	img, err := toImage(pc, dataFormat)
	if err != nil {
		return "", nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", nil, fmt.Errorf("format: encode png: %w", err)
	}
	return "image/png", buf.Bytes(), nil
}

// JPEG encodes RGB pixel data to JPEG bytes; any other data format, RGBA
// included, is rejected with an error.
type JPEG struct{ Quality int }

func (j JPEG) Encode(pc *raster.PixelCollection, dataFormat transform.DataFormat) (string, []byte, error) {
	if dataFormat != transform.FormatRGB {
		return "", nil, fmt.Errorf("format: jpeg requires RGB data, got %q", dataFormat)
	}
	img, err := toImage(pc, dataFormat)
	if err != nil {
		return "", nil, err
	}
	quality := j.Quality
	if quality == 0 {
		quality = 85
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", nil, fmt.Errorf("format: encode jpeg: %w", err)
	}
	return "image/jpeg", buf.Bytes(), nil
}

// Optimal picks JPEG when every alpha sample is fully opaque (emitting only
// the RGB subset), else PNG of the full RGBA, per optimal.py.
type Optimal struct{}

func (Optimal) Encode(pc *raster.PixelCollection, dataFormat transform.DataFormat) (string, []byte, error) {
	if dataFormat != transform.FormatRGBA {
		return "", nil, fmt.Errorf("format: optimal requires RGBA data, got %q", dataFormat)
	}
	plane := pc.Height * pc.Width
	alpha := pc.Data[3*plane : 4*plane]
	solid := true
	for _, a := range alpha {
		if a != 255 {
			solid = false
			break
		}
	}
	if !solid {
		return PNG{}.Encode(pc, dataFormat)
	}

	rgb := raster.NewPixelCollection(3, pc.Height, pc.Width, pc.Bounds)
	copy(rgb.Data, pc.Data[:3*plane])
	copy(rgb.Mask, pc.Mask[:3*plane])
	return JPEG{}.Encode(rgb, transform.FormatRGB)
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
