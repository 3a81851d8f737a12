package format

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"math"

	"github.com/marblecutter-go/tilecutter/raster"
	"github.com/marblecutter-go/tilecutter/transform"
)

const skadiContentType = "application/gzip"

// Skadi encodes single-band elevation data to a gzip-wrapped SRTMHGT (.hgt)
// payload: raw big-endian int16 samples in row-major order with no header,
// the format GDAL's SRTMHGT driver expects, per formats/skadi.py.
type Skadi struct{}

func (Skadi) Encode(pc *raster.PixelCollection, dataFormat transform.DataFormat) (string, []byte, error) {
	if dataFormat != transform.FormatRaw {
		return "", nil, fmt.Errorf("format: skadi requires raw data, got %q", dataFormat)
	}
	if pc.Bands != 1 {
		return "", nil, fmt.Errorf("format: skadi requires single-band data, got %d bands", pc.Bands)
	}

	nodata := int16(raster.DefaultNodata(true, 16, true))
	plane := pc.Height * pc.Width
	raw := make([]byte, plane*2)
	for i := 0; i < plane; i++ {
		var iv int16
		if pc.Mask[i] {
			iv = nodata
		} else {
			iv = int16(clampInt16(float64(pc.Data[i])))
		}
		raw[i*2] = byte(uint16(iv) >> 8)
		raw[i*2+1] = byte(uint16(iv))
	}

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return "", nil, fmt.Errorf("format: skadi gzip: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", nil, fmt.Errorf("format: skadi gzip: %w", err)
	}
	return skadiContentType, buf.Bytes(), nil
}

// SkadiFilename derives the SRTMHGT filename convention ("N37W123.hgt")
// from a tile's lower-left corner, per skadi.py's naming logic.
func SkadiFilename(lon, lat float64) string {
	lonI := int(math.Round(lon))
	latI := int(math.Round(lat))
	ns := "N"
	if latI < 0 {
		ns = "S"
	}
	ew := "E"
	if lonI < 0 {
		ew = "W"
	}
	return fmt.Sprintf("%s%02d%s%03d.hgt", ns, abs(latI), ew, abs(lonI))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
