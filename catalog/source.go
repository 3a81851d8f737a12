// Package catalog implements the source lookup contract of spec.md §4.3: an
// ordered, deduplicated stream of candidate rasters intersecting a bounds and
// zoom range, via either a linear in-memory scan or a recursive-query
// SQL-backed catalog.
package catalog

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/marblecutter-go/tilecutter/errs"
	"github.com/marblecutter-go/tilecutter/geom"
)

// Source is one candidate raster, per spec.md §3/§6's field list. JSON tags
// follow the catalog source record shape in §6 so a Source decodes directly
// from the footprint records of either catalog implementation.
type Source struct {
	URL        string            `json:"url"`
	Name       string            `json:"source"`
	Resolution float64           `json:"resolution"`
	BandInfo   map[string]string `json:"band_info,omitempty"`
	Meta       map[string]any    `json:"meta,omitempty"`
	Recipes    map[string]any    `json:"recipes,omitempty"`
	AcquiredAt *time.Time        `json:"acquired_at,omitempty"`
	Band       *int              `json:"band,omitempty"`
	Priority   float64           `json:"priority"`
	Coverage   float64           `json:"coverage,omitempty"`
	Geom       *orb.Polygon      `json:"geom,omitempty"`
	Mask       *orb.Polygon      `json:"mask,omitempty"`
	Filename   string            `json:"filename,omitempty"`
	MinZoom    int               `json:"min_zoom"`
	MaxZoom    int               `json:"max_zoom"`

	// Enabled mirrors postgis.py's footprints.enabled column; disabled
	// sources never match a query.
	Enabled bool `json:"-"`
}

// Footprint returns the source's declared geometry, falling back to an empty
// polygon when none is recorded. Catalogs populate Geom from whatever vector
// store backs them; it is always in WGS84.
func (s Source) Footprint() orb.Polygon {
	if s.Geom != nil {
		return *s.Geom
	}
	return orb.Polygon{}
}

// Bounds returns the bounding box of the source's footprint in WGS84.
func (s Source) Bounds() geom.Bounds {
	b := s.Footprint().Bound()
	return geom.Bounds{Min: b.Min, Max: b.Max, CRS: geom.WGS84}
}

// Catalog is the abstract contract of spec.md §4.3.
type Catalog interface {
	// GetSources returns candidate sources intersecting bounds at the given
	// ground resolution. When minZoom/maxZoom are both non-nil, range mode
	// applies; otherwise coverage mode applies.
	GetSources(bounds geom.Bounds, resolutionM float64, minZoom, maxZoom *int) ([]Source, error)

	// Validate rejects a tile request outside the catalog's declared bounds
	// or zoom range.
	Validate(z, x, y int) error
}

// ValidateZXY checks the universal (z, x, y) constraints of spec.md §6,
// independent of any particular catalog's declared extent.
func ValidateZXY(z, x, y int) error {
	if z < 0 || z > 22 {
		return errs.InvalidTileRequest("catalog.ValidateZXY", fmt.Errorf("zoom %d out of range [0,22]", z))
	}
	n := 1 << uint(z)
	if x < 0 || x >= n || y < 0 || y >= n {
		return errs.InvalidTileRequest("catalog.ValidateZXY", fmt.Errorf("tile (%d,%d) out of range for zoom %d", x, y, z))
	}
	return nil
}
