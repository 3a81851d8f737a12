package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/valyala/fasthttp"

	"github.com/marblecutter-go/tilecutter/catalog"
	"github.com/marblecutter-go/tilecutter/geom"
	"github.com/marblecutter-go/tilecutter/mosaic"
	"github.com/marblecutter-go/tilecutter/source"
)

// buildCatalog opens the catalog named by --catalog-dsn, or an empty
// in-memory one spanning the whole globe when no DSN is configured -- useful
// when the caller supplies --source directly instead.
func buildCatalog() (catalog.Catalog, error) {
	dsn := viper.GetString("catalog-dsn")
	if dsn == "" {
		world := geom.NewBounds(-180, -90, 180, 90, geom.WGS84)
		return catalog.NewInMemoryCatalog(nil, world, 0, 22), nil
	}
	table := viper.GetString("catalog-table")
	cat, err := catalog.NewSQLiteCatalog(dsn, table)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", dsn, err)
	}
	return cat, nil
}

// buildReader wires a source.Cache-backed mosaic.WindowReader, the
// composition root's only place that touches the HTTP/TIFF read path.
func buildReader() (mosaic.WindowReader, error) {
	capacity := viper.GetInt("cache-capacity")
	if capacity <= 0 {
		capacity = 64
	}
	cache, err := source.NewCache(capacity, &fasthttp.Client{})
	if err != nil {
		return nil, fmt.Errorf("build source cache: %w", err)
	}
	return &mosaic.CacheWindowReader{Cache: cache, Log: logger}, nil
}

// parseSourceURLs splits a comma-separated --source flag into catalog.Source
// values with no recipes and default priority, bypassing the catalog
// entirely for ad hoc single-file renders.
func parseSourceURLs(raw string) []catalog.Source {
	if raw == "" {
		return nil
	}
	var sources []catalog.Source
	for _, url := range strings.Split(raw, ",") {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		sources = append(sources, catalog.Source{URL: url, Name: url, Enabled: true})
	}
	return sources
}
