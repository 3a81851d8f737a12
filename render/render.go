// Package render implements the top-level orchestration of spec.md §4/§5:
// widen the request by a transformation's intrinsic buffer, resolve
// candidate sources from a catalog (or an explicit list), composite them,
// apply the transformation, crop the buffer back off and encode. Grounded on
// original_source/marblecutter/__init__.py's render() and tiling.py/skadi.py's
// render_tile()/render_tile() (Skadi variant), with per-stage timing adapted
// from stats.py's Timer into a Go struct used the way tingold-gocog's own
// request-scoped logging fields are threaded through a handler.
package render

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/marblecutter-go/tilecutter/catalog"
	"github.com/marblecutter-go/tilecutter/errs"
	"github.com/marblecutter-go/tilecutter/format"
	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/mosaic"
	"github.com/marblecutter-go/tilecutter/transform"
)

// Request is the input to Render: either Catalog or Sources must be set.
type Request struct {
	Bounds         geom.Bounds
	Shape          geom.Shape
	TargetCRS      string
	Catalog        catalog.Catalog
	Sources        []catalog.Source
	Transformation transform.Transformation
	Format         format.Encoder
	Bands          int
}

// Result is the render output: response headers (Content-Type, Server-Timing,
// X-Source-Names) and the encoded payload.
type Result struct {
	Headers map[string]string
	Payload []byte
}

// Render implements spec.md §4 end to end: expand, select sources, composite,
// transform, crop, encode.
func Render(ctx context.Context, log *zap.SugaredLogger, reader mosaic.WindowReader, req Request) (*Result, error) {
	if req.Catalog == nil && req.Sources == nil {
		return nil, errs.NoCatalogAvailable("render.Render", fmt.Errorf("neither catalog nor explicit sources given"))
	}

	stats := NewStats()

	bounds, shape, offsets := req.Bounds, req.Shape, transform.CropOffsets{}
	if req.Transformation != nil {
		s := stats.Start("expand")
		bounds, shape, offsets = req.Transformation.Expand(req.Bounds, req.Shape, 0)
		s.Stop()
	}

	dx, dy := geom.ResolutionInMeters(bounds, shape)
	resolutionM := math.Max(dx, dy)

	sources := req.Sources
	if sources == nil {
		s := stats.Start("get_sources")
		var err error
		sources, err = req.Catalog.GetSources(bounds, resolutionM, nil, nil)
		s.Stop()
		if err != nil {
			return nil, fmt.Errorf("render: get sources: %w", err)
		}
		if len(sources) == 0 {
			return nil, errs.NoDataAvailable("render.Render", fmt.Errorf("no sources intersect the requested area"))
		}
	}

	bands := req.Bands
	if bands == 0 {
		bands = 1
	}

	s := stats.Start("composite")
	usedNames, pc, err := mosaic.Composite(ctx, log, reader, sources, bounds, shape, bands)
	s.Stop()
	if err != nil {
		return nil, fmt.Errorf("render: composite: %w", err)
	}
	if len(usedNames) == 0 || pc.AllMasked() {
		return nil, errs.NoDataAvailable("render.Render", fmt.Errorf("no source contributed usable pixels"))
	}

	dataFormat := transform.FormatRaw
	if req.Transformation != nil {
		s := stats.Start("transform")
		pc, dataFormat = req.Transformation.Transform(pc)
		s.Stop()

		s = stats.Start("postprocess")
		pc = req.Transformation.Postprocess(pc, dataFormat, offsets)
		s.Stop()
	}

	enc := req.Format
	if enc == nil {
		enc = format.PNG{}
	}
	s = stats.Start("encode")
	contentType, payload, err := enc.Encode(pc, dataFormat)
	s.Stop()
	if err != nil {
		return nil, fmt.Errorf("render: encode: %w", err)
	}

	serverTiming := stats.ServerTiming()
	if srcTiming := SourceTiming(usedNames); srcTiming != "" {
		serverTiming = serverTiming + ", " + srcTiming
	}
	headers := map[string]string{
		"Content-Type":   contentType,
		"X-Source-Names": strings.Join(usedNames, ", "),
		"Server-Timing":  serverTiming,
	}
	return &Result{Headers: headers, Payload: payload}, nil
}

