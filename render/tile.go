package render

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/marblecutter-go/tilecutter/catalog"
	"github.com/marblecutter-go/tilecutter/format"
	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/mosaic"
	"github.com/marblecutter-go/tilecutter/transform"
)

// TileShape is the canonical Web Mercator tile size before scale factors are
// applied, per tiling.py's TILE_SHAPE.
var TileShape = geom.Shape{Height: 256, Width: 256}

// TileBounds computes the Web Mercator bounds of slippy-map tile (z, x, y),
// the Go equivalent of mercantile.xy_bounds, derived directly from the
// EPSG:3857 global extent (geom.Extent) rather than a tile math library,
// since none of the example repos vendor one.
func TileBounds(z, x, y int) (geom.Bounds, error) {
	extent, err := geom.Extent(geom.WebMercator)
	if err != nil {
		return geom.Bounds{}, err
	}
	n := math.Exp2(float64(z))
	width := (extent.Max[0] - extent.Min[0]) / n
	height := (extent.Max[1] - extent.Min[1]) / n

	minX := extent.Min[0] + float64(x)*width
	maxX := extent.Min[0] + float64(x+1)*width
	maxY := extent.Max[1] - float64(y)*height
	minY := extent.Max[1] - float64(y+1)*height

	return geom.NewBounds(minX, minY, maxX, maxY, geom.WebMercator), nil
}

// RenderTile renders one Web Mercator (z, x, y) tile, scaled by scale (2 for
// 512x512 "retina" tiles and so on), per tiling.py's render_tile.
func RenderTile(ctx context.Context, log *zap.SugaredLogger, reader mosaic.WindowReader, z, x, y, scale int, cat catalog.Catalog, sources []catalog.Source, t transform.Transformation, enc format.Encoder, bands int) (*Result, error) {
	if err := catalog.ValidateZXY(z, x, y); err != nil {
		return nil, err
	}
	if scale <= 0 {
		scale = 1
	}
	bounds, err := TileBounds(z, x, y)
	if err != nil {
		return nil, fmt.Errorf("render: tile bounds: %w", err)
	}
	shape := geom.Shape{Height: TileShape.Height * scale, Width: TileShape.Width * scale}

	req := Request{
		Bounds:         bounds,
		Shape:          shape,
		TargetCRS:      geom.WebMercator,
		Catalog:        cat,
		Sources:        sources,
		Transformation: t,
		Format:         enc,
		Bands:          bands,
	}
	return Render(ctx, log, reader, req)
}
