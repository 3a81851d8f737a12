package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marblecutter-go/tilecutter/render"
)

var skadiCmd = &cobra.Command{
	Use:   "skadi",
	Short: "Render a single SRTMHGT elevation cell (e.g. N37W123)",
	RunE:  runSkadi,
}

func init() {
	rootCmd.AddCommand(skadiCmd)

	skadiCmd.Flags().String("name", "", "skadi tile name, e.g. N37W123")
	skadiCmd.Flags().String("source", "", "comma-separated source URLs, bypassing the catalog")
	skadiCmd.Flags().String("out", "", "output file path (default: <name>.hgt.gz)")

	for _, name := range []string{"name", "source", "out"} {
		if err := viper.BindPFlag("skadi."+name, skadiCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", name, err))
		}
	}
}

func runSkadi(cmd *cobra.Command, args []string) error {
	name := viper.GetString("skadi.name")
	if name == "" {
		return fmt.Errorf("--name is required, e.g. --name N37W123")
	}
	out := viper.GetString("skadi.out")
	if out == "" {
		out = name + ".hgt.gz"
	}

	cat, err := buildCatalog()
	if err != nil {
		return err
	}
	reader, err := buildReader()
	if err != nil {
		return err
	}
	sources := parseSourceURLs(viper.GetString("skadi.source"))

	result, err := render.RenderSkadi(context.Background(), logger, reader, name, cat, sources)
	if err != nil {
		return fmt.Errorf("render skadi %s: %w", name, err)
	}

	if err := os.WriteFile(out, result.Payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	logger.Infow("rendered skadi cell", "name", name, "out", out, "sources", result.Headers["X-Source-Names"])
	return nil
}
