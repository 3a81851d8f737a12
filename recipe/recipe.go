// Package recipe implements the declarative per-source directives of
// spec.md §4.4: a registry of named handlers applied to a source's pixels,
// plus the Landsat8 preprocess/postprocess band-expansion and pansharpening
// passes. Directives are a tagged-variant registry (spec.md §9 "Dynamic,
// named recipe directives... map to a tagged variant enum with a registry of
// handlers; unknown directives are ignored with a warning"), grounded on
// original_source/marblecutter/recipes.py.
package recipe

import (
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/marblecutter-go/tilecutter/catalog"
	"github.com/marblecutter-go/tilecutter/raster"
)

// maskOutlierThreshold is the "100 MADs from median" constant from
// original_source/marblecutter/recipes.py's DEM edge-artifact guard.
const maskOutlierThreshold = 100.0

// bandNames maps the logical r/g/b band names used by landsat8 expansion to
// canvas band indices, per original_source/marblecutter/recipes.py's
// BAND_MAPPING.
var bandNames = map[string]int{"r": 0, "g": 1, "b": 2}

// Apply runs a source's recipe directives over its freshly read pixels, in
// the fixed order of spec.md §4.4's directive table. Unknown directive keys
// are logged and ignored, preserving forward compatibility.
func Apply(log *zap.SugaredLogger, src catalog.Source, pc *raster.PixelCollection) *raster.PixelCollection {
	recipes := src.Recipes
	if len(recipes) == 0 {
		return pc
	}

	if v, ok := recipes["nodata"]; ok {
		if nodata, ok := toFloat(v); ok {
			raster.ApplyNodata(pc, nodata)
		}
	}

	if v, ok := recipes["landsat8"]; ok && truthy(v) {
		applyLandsat8(log, src, pc)
	}

	if v, ok := recipes["imagery"]; ok && truthy(v) {
		applyImagery(recipes, pc)
		applyExprDirective(log, src, recipes, pc)
	}

	if v, ok := recipes["linear_stretch"]; ok {
		if mode, ok := v.(string); ok {
			linearStretch(pc, mode)
		}
	}

	if v, ok := recipes["mask_outliers"]; ok && truthy(v) {
		for b := 0; b < pc.Bands; b++ {
			raster.MaskOutliers(pc, b, maskOutlierThreshold)
		}
	}

	for key := range recipes {
		if !knownDirective(key) {
			log.Warnw("unknown recipe directive ignored", "directive", key, "source", src.URL)
		}
	}

	return pc
}

func knownDirective(key string) bool {
	switch key {
	case "resample", "nodata", "colormap", "landsat8", "imagery", "rgb_bands",
		"expr", "linear_stretch", "mask_outliers":
		return true
	default:
		return false
	}
}

// applyLandsat8 rescales a single expanded reflectance band into [0, 1]
// linearly between the min/max declared for the band under source meta
// "values", falling back to the 2nd/98th percentile of the valid data when
// no min/max is declared. No MTL reflectance multiplier/additive constants
// are applied: samples are treated as already-scaled reflectance.
// Non-positive samples are left unscaled.
func applyLandsat8(log *zap.SugaredLogger, src catalog.Source, pc *raster.PixelCollection) {
	minVal, maxVal := 0.0, 65535.0
	if values, ok := src.Meta["values"].(map[string]any); ok {
		if band := bandKeyFor(src); band != "" {
			if bv, ok := values[band].(map[string]any); ok {
				if lo, ok := toFloat(bv["min"]); ok {
					minVal = lo
				}
				if hi, ok := toFloat(bv["max"]); ok {
					maxVal = hi
				}
			}
		}
	}

	if minVal == 0 && maxVal == 65535 {
		if lo, hi, ok := percentileRange(pc, 2, 98); ok {
			minVal = math.Max(minVal, lo)
			maxVal = math.Min(maxVal, hi)
		}
	}

	span := maxVal - minVal
	if span == 0 {
		log.Warnw("landsat8 recipe: degenerate reflectance range", "source", src.URL)
		return
	}
	for i, v := range pc.Data {
		if pc.Mask[i] || v <= 0 {
			continue
		}
		pc.Data[i] = float32(clamp01((float64(v) - minVal) / span))
	}
}

func bandKeyFor(src catalog.Source) string {
	for k := range src.BandInfo {
		return k
	}
	return ""
}

// applyImagery normalizes imagery into [0, 1] by dividing by 255 when any
// valid sample exceeds 1 (the 8-bit default of imageryTypeMax; data already
// within [0, 1] is left unchanged), then applies rgb_bands
// reordering/selection, matching recipes.py's "imagery" branch.
func applyImagery(recipes map[string]any, pc *raster.PixelCollection) {
	maxVal := imageryTypeMax(pc)
	if maxVal > 0 {
		for i, v := range pc.Data {
			if !pc.Mask[i] {
				pc.Data[i] = float32(clamp01(float64(v) / maxVal))
			}
		}
	}

	if raw, ok := recipes["rgb_bands"]; ok {
		if order, ok := toIntSlice(raw); ok {
			selectBands(pc, order)
		}
	}
}

func applyExprDirective(log *zap.SugaredLogger, src catalog.Source, recipes map[string]any, pc *raster.PixelCollection) {
	raw, ok := recipes["expr"].(string)
	if !ok || raw == "" {
		return
	}
	if err := applyExpr(pc, raw); err != nil {
		log.Warnw("expr recipe directive failed, leaving bands unchanged", "source", src.URL, "error", err)
	}
}

// imageryTypeMax is a conservative default (8-bit) since PixelCollection no
// longer carries the source integer dtype by the time recipes run; a source
// recipe that needs a different max should set `nodata`/pre-scale upstream.
func imageryTypeMax(pc *raster.PixelCollection) float64 {
	max := float32(0)
	for i, v := range pc.Data {
		if !pc.Mask[i] && v > max {
			max = v
		}
	}
	if max <= 1 {
		return 0 // already normalized or empty
	}
	return 255.0
}

// selectBands reorders/subsets the collection's bands in place according to
// order (indices into the original band set), matching recipes.py's
// rgb_bands directive semantics.
func selectBands(pc *raster.PixelCollection, order []int) {
	plane := pc.Height * pc.Width
	newData := make([]float32, len(order)*plane)
	newMask := make([]bool, len(order)*plane)
	for newB, oldB := range order {
		if oldB < 0 || oldB >= pc.Bands {
			continue
		}
		copy(newData[newB*plane:(newB+1)*plane], pc.BandData(oldB))
		copy(newMask[newB*plane:(newB+1)*plane], pc.BandMask(oldB))
	}
	pc.Data = newData
	pc.Mask = newMask
	pc.Bands = len(order)
}

// linearStretch rescales sample values to fill [0, 1], either across the
// whole collection ("global") or independently per band ("per_band"), per
// spec.md §4.4.
func linearStretch(pc *raster.PixelCollection, mode string) {
	if mode == "per_band" {
		for b := 0; b < pc.Bands; b++ {
			stretchRange(pc.BandData(b), pc.BandMask(b))
		}
		return
	}
	stretchRange(pc.Data, pc.Mask)
}

func stretchRange(data []float32, mask []bool) {
	lo, hi := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	any := false
	for i, v := range data {
		if mask[i] {
			continue
		}
		any = true
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if !any || hi == lo {
		return
	}
	span := hi - lo
	for i, v := range data {
		if mask[i] {
			continue
		}
		data[i] = (v - lo) / span
	}
}

func percentileRange(pc *raster.PixelCollection, low, high float64) (float64, float64, bool) {
	var valid []float64
	for i, v := range pc.Data {
		if !pc.Mask[i] {
			valid = append(valid, float64(v))
		}
	}
	if len(valid) == 0 {
		return 0, 0, false
	}
	return percentile(valid, low), percentile(valid, high), true
}

func percentile(values []float64, pct float64) float64 {
	cp := append([]float64(nil), values...)
	sort.Float64s(cp)
	return stat.Quantile(pct/100, stat.Empirical, cp, nil)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

func toIntSlice(v any) ([]int, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]int, 0, len(raw))
	for _, e := range raw {
		if f, ok := toFloat(e); ok {
			out = append(out, int(f))
		}
	}
	return out, true
}
