package recipe

import (
	"strings"

	"github.com/marblecutter-go/tilecutter/catalog"
	"github.com/marblecutter-go/tilecutter/raster"
)

// maxPreprocessedSources caps source list expansion, matching recipes.py's
// "limit the number of sources used" guard (`idx == 15`).
const maxPreprocessedSources = 15

// Preprocess expands landsat8 sources into one Source per logical band
// (r/g/b), substituting the physical band number into the URL template and
// tagging the expanded Source with its target canvas band -- mirrors
// original_source/marblecutter/recipes.py's preprocess().
func Preprocess(sources []catalog.Source) []catalog.Source {
	var out []catalog.Source
	for i, src := range sources {
		if i == maxPreprocessedSources {
			break
		}
		if truthy(src.Recipes["landsat8"]) {
			out = append(out, expandLandsat8(src)...)
			continue
		}
		out = append(out, src)
	}
	return out
}

func expandLandsat8(src catalog.Source) []catalog.Source {
	var expanded []catalog.Source
	for name, sourceBand := range src.BandInfo {
		band, ok := bandNames[name]
		if !ok {
			continue
		}
		clone := src
		clone.URL = strings.ReplaceAll(src.URL, "{band}", sourceBand)
		b := band
		clone.Band = &b
		expanded = append(expanded, clone)
	}
	return expanded
}

// Windowed pairs a catalog Source with the pixels read for it, the unit the
// mosaic compositor and Postprocess operate on.
type Windowed struct {
	Source catalog.Source
	Pixels *raster.PixelCollection
}

// sceneID extracts the Landsat scene identifier a split-band URL belongs to,
// the portion of the filename before the trailing `_B<n>.TIF` band suffix.
func sceneID(url string) string {
	idx := strings.LastIndex(url, "_B")
	if idx < 0 {
		return url
	}
	return url[:idx]
}

// Postprocess groups split-band Landsat windows by scene id and composites
// each scene's r/g/b (and, when present, panchromatic) windows into a single
// 3-band result, Brovey-pansharpening when a pan band is present. Windows
// that are not part of a landsat8 group pass through unchanged, matching
// recipes.py's grouping behavior generalized from a single current scene to
// the full stream.
func Postprocess(windows []Windowed) []Windowed {
	groups := make(map[string][]Windowed)
	var order []string
	var passthrough []Windowed

	for _, w := range windows {
		if !truthy(w.Source.Recipes["landsat8"]) {
			passthrough = append(passthrough, w)
			continue
		}
		id := sceneID(w.Source.URL)
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], w)
	}

	out := append([]Windowed(nil), passthrough...)
	for _, id := range order {
		if merged := mergeLandsatScene(id, groups[id]); merged != nil {
			out = append(out, *merged)
		}
	}
	return out
}

func mergeLandsatScene(sceneID string, parts []Windowed) *Windowed {
	if len(parts) == 0 {
		return nil
	}
	height, width := parts[0].Pixels.Height, parts[0].Pixels.Width
	bounds := parts[0].Pixels.Bounds

	rgb := raster.NewPixelCollection(3, height, width, bounds)
	var pan *raster.PixelCollection

	for _, p := range parts {
		if p.Source.Band == nil {
			continue
		}
		band := *p.Source.Band
		if band < 0 || band > 2 {
			pan = p.Pixels
			continue
		}
		if raster.CheckCompatible(rgb, p.Pixels) != nil {
			continue
		}
		copy(rgb.BandData(band), p.Pixels.BandData(0))
		copy(rgb.BandMask(band), p.Pixels.BandMask(0))
	}

	if pan != nil {
		broveyPansharpen(rgb, pan)
	}

	return &Windowed{
		Source: catalog.Source{Name: sceneID, URL: sceneID, Recipes: map[string]any{"landsat8": true}},
		Pixels: rgb,
	}
}

// broveyPansharpen fuses the high-resolution panchromatic band into rgb in
// place using the classic Brovey transform: each band is scaled by
// pan/intensity, where intensity is the per-pixel mean of the RGB bands.
// This is the "pan-sharpen" step spec.md §4.4 names without specifying a
// formula; Brovey is the simplest widely used one and the pack does not
// otherwise implement pansharpening, so this is new code grounded directly
// on the textbook definition spec.md's glossary entry references.
func broveyPansharpen(rgb *raster.PixelCollection, pan *raster.PixelCollection) {
	plane := rgb.Height * rgb.Width
	if len(pan.Data) < plane {
		return
	}
	for i := 0; i < plane; i++ {
		if pan.Mask[i] {
			continue
		}
		var sum float32
		var n int
		for b := 0; b < 3; b++ {
			idx := b*plane + i
			if !rgb.Mask[idx] {
				sum += rgb.Data[idx]
				n++
			}
		}
		if n == 0 {
			continue
		}
		intensity := sum / float32(n)
		if intensity == 0 {
			continue
		}
		ratio := pan.Data[i] / intensity
		for b := 0; b < 3; b++ {
			idx := b*plane + i
			if rgb.Mask[idx] {
				continue
			}
			rgb.Data[idx] *= ratio
			rgb.Mask[idx] = false
		}
	}
}
