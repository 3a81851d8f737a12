package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marblecutter-go/tilecutter/render"
)

var tileCmd = &cobra.Command{
	Use:   "tile",
	Short: "Render a single Web Mercator z/x/y tile",
	RunE:  runTile,
}

func init() {
	rootCmd.AddCommand(tileCmd)

	tileCmd.Flags().Int("z", 0, "zoom level")
	tileCmd.Flags().Int("x", 0, "tile column")
	tileCmd.Flags().Int("y", 0, "tile row")
	tileCmd.Flags().Int("scale", 1, "tile scale factor (2 for 512x512)")
	tileCmd.Flags().String("transform", "", "pixel transformation: hillshade, normal, terrarium, image, greyscale, colormap")
	tileCmd.Flags().String("format", "", "output format: png, jpeg, optimal, colorramp, geotiff, skadi")
	tileCmd.Flags().String("source", "", "comma-separated source URLs, bypassing the catalog")
	tileCmd.Flags().String("out", "tile.out", "output file path")

	for _, name := range []string{"z", "x", "y", "scale", "transform", "format", "source", "out"} {
		if err := viper.BindPFlag("tile."+name, tileCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", name, err))
		}
	}
}

func runTile(cmd *cobra.Command, args []string) error {
	z := viper.GetInt("tile.z")
	x := viper.GetInt("tile.x")
	y := viper.GetInt("tile.y")
	scale := viper.GetInt("tile.scale")
	transformName := viper.GetString("tile.transform")
	formatName := viper.GetString("tile.format")
	out := viper.GetString("tile.out")

	t, err := selectTransformation(transformName)
	if err != nil {
		return err
	}
	enc, err := selectFormat(formatName)
	if err != nil {
		return err
	}

	cat, err := buildCatalog()
	if err != nil {
		return err
	}
	reader, err := buildReader()
	if err != nil {
		return err
	}
	sources := parseSourceURLs(viper.GetString("tile.source"))

	result, err := render.RenderTile(context.Background(), logger, reader, z, x, y, scale, cat, sources, t, enc, defaultBands(transformName))
	if err != nil {
		return fmt.Errorf("render tile %d/%d/%d: %w", z, x, y, err)
	}

	if err := os.WriteFile(out, result.Payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	logger.Infow("rendered tile", "z", z, "x", x, "y", y, "out", out, "content_type", result.Headers["Content-Type"], "sources", result.Headers["X-Source-Names"])
	return nil
}
