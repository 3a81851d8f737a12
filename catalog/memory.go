package catalog

import (
	"fmt"
	"math"
	"sort"

	"github.com/marblecutter-go/tilecutter/errs"
	"github.com/marblecutter-go/tilecutter/geom"
)

// InMemoryCatalog is a linear-scan catalog over a fixed Source slice, the Go
// counterpart of an in-process footprint list before any spatial index is
// warranted (tingold-gocog has no catalog of its own; this is grounded on
// original_source/marblecutter/catalogs/postgis.py's query semantics, with
// the SQL replaced by an in-memory equivalent of the same scoring).
type InMemoryCatalog struct {
	sources []Source
	bounds  geom.Bounds
	minZoom int
	maxZoom int
}

// NewInMemoryCatalog builds a catalog over sources, declaring the catalog's
// own valid bounds/zoom range for Validate.
func NewInMemoryCatalog(sources []Source, bounds geom.Bounds, minZoom, maxZoom int) *InMemoryCatalog {
	return &InMemoryCatalog{sources: sources, bounds: bounds, minZoom: minZoom, maxZoom: maxZoom}
}

func (c *InMemoryCatalog) Validate(z, x, y int) error {
	if err := ValidateZXY(z, x, y); err != nil {
		return err
	}
	if z < c.minZoom || z > c.maxZoom {
		return errs.InvalidTileRequest("catalog.Validate", errZoomOutsideCatalog(z, c.minZoom, c.maxZoom))
	}
	if !c.bounds.IsEmpty() {
		declared, err := c.bounds.In(geom.WGS84)
		if err != nil {
			return err
		}
		n := math.Exp2(float64(z))
		lon := func(tx int) float64 { return float64(tx)/n*360 - 180 }
		lat := func(ty int) float64 { return math.Atan(math.Sinh(math.Pi*(1-2*float64(ty)/n))) * 180 / math.Pi }
		tile := geom.NewBounds(lon(x), lat(y+1), lon(x+1), lat(y), geom.WGS84)
		if !tile.Intersects(declared) {
			return errs.InvalidTileRequest("catalog.Validate", fmt.Errorf("tile %d/%d/%d outside catalog bounds", z, x, y))
		}
	}
	return nil
}

func (c *InMemoryCatalog) GetSources(bounds geom.Bounds, resolutionM float64, minZoom, maxZoom *int) ([]Source, error) {
	wgs84, err := bounds.In(geom.WGS84)
	if err != nil {
		return nil, err
	}
	zoom := geom.ZoomForResolution(resolutionM, geom.RoundNearest)

	var candidates []Source
	for _, s := range c.sources {
		if !s.Enabled {
			continue
		}
		if zoom < s.MinZoom || zoom > s.MaxZoom {
			continue
		}
		if !s.Bounds().Intersects(wgs84) {
			continue
		}
		candidates = append(candidates, s)
	}

	if minZoom != nil && maxZoom != nil {
		return rangeMode(candidates, wgs84), nil
	}
	return coverageMode(candidates, wgs84), nil
}

// rangeMode implements spec.md §4.3's range-mode ordering: priority DESC,
// round(resolution) ASC, centroid-distance ASC, with URL-level dedup.
func rangeMode(candidates []Source, bounds geom.Bounds) []Source {
	center := bounds.Centroid()
	seen := make(map[string]bool)
	var out []Source
	for _, s := range candidates {
		if seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		ra, rb := math.Round(a.Resolution), math.Round(b.Resolution)
		if ra != rb {
			return ra < rb
		}
		return centroidDistance(a, center) < centroidDistance(b, center)
	})
	return out
}

// coverageMode implements spec.md §4.3's greedy coverage query: repeatedly
// pick the best-scoring remaining source, add it, and shrink the uncovered
// area by its footprint, until the area is fully covered or no candidate
// reduces it further. This mirrors postgis.py's recursive CTE (best-first,
// then minimal-remaining-uncovered-area) without a SQL engine; dedup is by
// `source.Name + source.URL`, resolving the ambiguity flagged in spec.md §9
// ("prefer source||url dedup") since Name is rarely unique alone.
func coverageMode(candidates []Source, bounds geom.Bounds) []Source {
	remaining := append([]Source(nil), candidates...)
	uncovered := bounds.Area()
	if uncovered <= 0 {
		return nil
	}

	used := make(map[string]bool)
	var result []Source
	covered := make(map[int]bool)

	for iter := 0; iter < len(candidates)+1 && uncovered > bounds.Area()*0.001; iter++ {
		bestIdx := -1
		bestScore := math.Inf(-1)
		for i, s := range remaining {
			if covered[i] {
				continue
			}
			key := s.Name + "||" + s.URL
			if used[key] {
				covered[i] = true
				continue
			}
			score := sourceScore(s, bounds)
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		s := remaining[bestIdx]
		key := s.Name + "||" + s.URL
		used[key] = true
		covered[bestIdx] = true
		result = append(result, s)

		inter, ok := s.Bounds().Intersection(bounds)
		if ok {
			uncovered -= inter.Area()
		}
	}
	return result
}

// sourceScore ranks a candidate for the greedy coverage pick: higher
// priority wins; the fraction of bounds the footprint intersects adds up to
// 100; and 1/resolution is subtracted, so of two otherwise equal sources the
// coarser one scores slightly higher. The requested resolution and the
// acquisition date do not enter the score, so neither overzoom nor underzoom
// relative to the request is penalized.
func sourceScore(s Source, bounds geom.Bounds) float64 {
	score := s.Priority * 1000

	inter, ok := s.Bounds().Intersection(bounds)
	coverageFraction := 0.0
	if ok && bounds.Area() > 0 {
		coverageFraction = inter.Area() / bounds.Area()
	}
	score += coverageFraction * 100

	if s.Resolution > 0 {
		score -= 1.0 / s.Resolution
	}
	return score
}

func centroidDistance(s Source, center [2]float64) float64 {
	c := s.Bounds().Centroid()
	dx := c[0] - center[0]
	dy := c[1] - center[1]
	return math.Sqrt(dx*dx + dy*dy)
}

func errZoomOutsideCatalog(z, min, max int) error {
	return &zoomRangeError{z: z, min: min, max: max}
}

type zoomRangeError struct{ z, min, max int }

func (e *zoomRangeError) Error() string {
	return "zoom outside catalog's declared range"
}
