package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	_ "modernc.org/sqlite"

	"github.com/marblecutter-go/tilecutter/geom"
)

func boundsPolygon(minx, miny, maxx, maxy float64) *orb.Polygon {
	ring := orb.Ring{
		{minx, miny}, {maxx, miny}, {maxx, maxy}, {minx, maxy}, {minx, miny},
	}
	p := orb.Polygon{ring}
	return &p
}

// SQLiteCatalog is the relational-spatial catalog named in spec.md §4.3,
// backed by a `footprints` table and the recursive-CTE coverage query from
// original_source/marblecutter/catalogs/postgis.py, ported from PostGIS'
// ST_Difference/ST_Intersects geometry ops to a bounds-only approximation
// (SQLite has no bundled geometry engine): candidate footprints are filtered
// by bounding-box overlap, and "uncovered area" is tracked as a shrinking
// bounds rectangle rather than an exact polygon difference. This is a
// documented simplification, not a silent one -- true polygon coverage still
// happens downstream in the mosaic compositor via per-pixel masks.
type SQLiteCatalog struct {
	db    *sql.DB
	table string
}

// NewSQLiteCatalog opens (or attaches to) a SQLite database at dsn holding a
// footprints table with columns matching spec.md §6's catalog source record.
func NewSQLiteCatalog(dsn, table string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open sqlite %s: %w", dsn, err)
	}
	return &SQLiteCatalog{db: db, table: table}, nil
}

func (c *SQLiteCatalog) Close() error { return c.db.Close() }

func (c *SQLiteCatalog) Validate(z, x, y int) error {
	return ValidateZXY(z, x, y)
}

// footprintRow mirrors one row of the footprints table.
type footprintRow struct {
	url, name                  string
	resolution, priority       float64
	minx, miny, maxx, maxy     float64
	minZoom, maxZoom           int
	bandInfo, meta, recipes    sql.NullString
}

// GetSources runs the recursive coverage query (coverage mode) or a plain
// ranked scan (range mode), mirroring postgis.py's two branches.
func (c *SQLiteCatalog) GetSources(bounds geom.Bounds, resolutionM float64, minZoom, maxZoom *int) ([]Source, error) {
	wgs84, err := bounds.In(geom.WGS84)
	if err != nil {
		return nil, err
	}
	zoom := geom.ZoomForResolution(resolutionM, geom.RoundNearest)

	if minZoom != nil && maxZoom != nil {
		return c.rangeQuery(wgs84, *minZoom, *maxZoom)
	}
	return c.coverageQuery(wgs84, zoom)
}

func (c *SQLiteCatalog) rangeQuery(bounds geom.Bounds, minZoom, maxZoom int) ([]Source, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT url, name, resolution, priority, minx, miny, maxx, maxy,
		       min_zoom, max_zoom, band_info, meta, recipes
		FROM %s
		WHERE enabled = 1
		  AND minx < ? AND maxx > ? AND miny < ? AND maxy > ?
		  AND max_zoom >= ? AND min_zoom <= ?
		ORDER BY priority DESC, round(resolution) ASC
	`, c.table)
	rows, err := c.db.QueryContext(context.Background(), query,
		bounds.Max[0], bounds.Min[0], bounds.Max[1], bounds.Min[1], minZoom, maxZoom)
	if err != nil {
		return nil, fmt.Errorf("catalog: range query: %w", err)
	}
	defer rows.Close()
	return scanSources(rows)
}

// coverageQuery implements the greedy coverage query in SQL, equivalent to
// postgis.py's "WITH RECURSIVE bbox/sources/candidates" structure but
// iterated in Go since SQLite recursive CTEs cannot carry an evolving
// geometry difference without a spatial extension. Each iteration asks
// SQLite for the single best-scoring footprint intersecting the remaining
// uncovered rectangle; this keeps the "recursive, best-first" shape of the
// original query while staying within stock SQLite.
func (c *SQLiteCatalog) coverageQuery(bounds geom.Bounds, zoom int) ([]Source, error) {
	const maxIterations = 16
	uncovered := bounds
	used := make(map[string]bool)
	var result []Source

	stepQuery := fmt.Sprintf(`
		SELECT url, name, resolution, priority, minx, miny, maxx, maxy,
		       min_zoom, max_zoom, band_info, meta, recipes
		FROM %s
		WHERE enabled = 1
		  AND minx < ? AND maxx > ? AND miny < ? AND maxy > ?
		  AND ? BETWEEN min_zoom AND max_zoom
		ORDER BY priority DESC, round(resolution) ASC
	`, c.table)

	for i := 0; i < maxIterations; i++ {
		rows, err := c.db.QueryContext(context.Background(), stepQuery,
			uncovered.Max[0], uncovered.Min[0], uncovered.Max[1], uncovered.Min[1], zoom)
		if err != nil {
			return nil, fmt.Errorf("catalog: coverage query: %w", err)
		}
		sources, err := scanSources(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}

		var pick *Source
		for i := range sources {
			key := sources[i].Name + "||" + sources[i].URL
			if used[key] {
				continue
			}
			pick = &sources[i]
			break
		}
		if pick == nil {
			break
		}
		used[pick.Name+"||"+pick.URL] = true
		result = append(result, *pick)

		remaining, ok := shrinkUncovered(uncovered, pick.Bounds())
		if !ok {
			break
		}
		uncovered = remaining
	}
	return result, nil
}

// shrinkUncovered approximates polygon-difference coverage tracking: when the
// covering footprint fully spans the uncovered rectangle along one axis (a
// clean edge-to-edge strip, the common case for adjacent scene tiles), the
// uncovered rectangle is clipped to what remains on the other side of that
// edge. Otherwise the cut isn't axis-aligned and a rectangle can't represent
// the exact remainder, so the uncovered area is shrunk by the covered
// fraction around its own centroid -- a conservative approximation that
// still converges the loop instead of leaving it to query the same rectangle
// forever. It reports false once the rectangle is fully consumed.
func shrinkUncovered(uncovered, covering geom.Bounds) (geom.Bounds, bool) {
	inter, ok := uncovered.Intersection(covering)
	if !ok {
		return uncovered, true
	}
	area := uncovered.Area()
	if area <= 0 {
		return uncovered, false
	}
	coveredFrac := inter.Area() / area

	switch {
	case inter.Min[0] <= uncovered.Min[0] && inter.Max[0] >= uncovered.Max[0]:
		// Covering strip spans the full width; shrink vertically.
		if inter.Min[1] <= uncovered.Min[1] {
			uncovered.Min[1] = inter.Max[1]
		} else if inter.Max[1] >= uncovered.Max[1] {
			uncovered.Max[1] = inter.Min[1]
		}
	case inter.Min[1] <= uncovered.Min[1] && inter.Max[1] >= uncovered.Max[1]:
		// Covering strip spans the full height; shrink horizontally.
		if inter.Min[0] <= uncovered.Min[0] {
			uncovered.Min[0] = inter.Max[0]
		} else if inter.Max[0] >= uncovered.Max[0] {
			uncovered.Max[0] = inter.Min[0]
		}
	default:
		cx, cy := uncovered.Centroid()[0], uncovered.Centroid()[1]
		shrink := math.Sqrt(1 - coveredFrac)
		halfW := (uncovered.Max[0] - uncovered.Min[0]) / 2 * shrink
		halfH := (uncovered.Max[1] - uncovered.Min[1]) / 2 * shrink
		uncovered.Min[0], uncovered.Max[0] = cx-halfW, cx+halfW
		uncovered.Min[1], uncovered.Max[1] = cy-halfH, cy+halfH
	}
	if uncovered.IsEmpty() || uncovered.Area()/area < 0.001 {
		return uncovered, false
	}
	return uncovered, true
}

func scanSources(rows *sql.Rows) ([]Source, error) {
	var out []Source
	for rows.Next() {
		var r footprintRow
		if err := rows.Scan(&r.url, &r.name, &r.resolution, &r.priority,
			&r.minx, &r.miny, &r.maxx, &r.maxy, &r.minZoom, &r.maxZoom,
			&r.bandInfo, &r.meta, &r.recipes); err != nil {
			return nil, fmt.Errorf("catalog: scan footprint row: %w", err)
		}
		s := Source{
			URL:        r.url,
			Name:       r.name,
			Resolution: r.resolution,
			Priority:   r.priority,
			MinZoom:    r.minZoom,
			MaxZoom:    r.maxZoom,
			Enabled:    true,
			Geom:       boundsPolygon(r.minx, r.miny, r.maxx, r.maxy),
		}
		if r.bandInfo.Valid {
			json.Unmarshal([]byte(r.bandInfo.String), &s.BandInfo)
		}
		if r.meta.Valid {
			json.Unmarshal([]byte(r.meta.String), &s.Meta)
		}
		if r.recipes.Valid {
			json.Unmarshal([]byte(r.recipes.String), &s.Recipes)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
