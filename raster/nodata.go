package raster

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultNodata returns the nodata convention from spec.md §3: integer data
// uses the type minimum, float data uses the float32 minimum, unless a
// source declares its own nodata value.
func DefaultNodata(isInteger bool, bitDepth int, signed bool) float64 {
	if !isInteger {
		return -math.MaxFloat32
	}
	if !signed {
		return 0
	}
	switch bitDepth {
	case 8:
		return math.MinInt8
	case 16:
		return math.MinInt16
	case 32:
		return math.MinInt32
	default:
		return math.MinInt16
	}
}

// ApplyNodata marks every sample equal to nodata as invalid in-place.
func ApplyNodata(p *PixelCollection, nodata float64) {
	for i, v := range p.Data {
		if float64(v) == nodata {
			p.Mask[i] = true
		}
	}
}

// MaskOutliers implements the `mask_outliers` recipe directive: points more
// than madThreshold median-absolute-deviations from the median are masked,
// guarding against DEM edge artifacts (spec.md §4.4). Computation is
// restricted to a single band since the directive is only meaningful for
// single-band elevation sources.
func MaskOutliers(p *PixelCollection, band int, madThreshold float64) {
	data := p.BandData(band)
	mask := p.BandMask(band)

	var valid []float64
	for i, m := range mask {
		if !m {
			valid = append(valid, float64(data[i]))
		}
	}
	if len(valid) == 0 {
		return
	}

	median := medianOf(valid)
	deviations := make([]float64, len(valid))
	for i, v := range valid {
		deviations[i] = math.Abs(v - median)
	}
	mad := medianOf(deviations)
	if mad == 0 {
		return
	}

	for i, m := range mask {
		if m {
			continue
		}
		if math.Abs(float64(data[i])-median)/mad > madThreshold {
			mask[i] = true
		}
	}
}

func medianOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
