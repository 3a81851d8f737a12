// Package cli implements the tilecutter command line tool, modeled on the
// example pack's cobra/viper composition root (MeKo-Christian-WaterColorMap's
// internal/cmd) adapted to this module's zap-based logging.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string
var logger *zap.SugaredLogger

var rootCmd = &cobra.Command{
	Use:   "tilecutter",
	Short: "On-demand map tile renderer",
	Long: `tilecutter renders a single Web Mercator tile or Skadi elevation cell from a
raster catalog to a local file, for exercising a catalog/recipe configuration
without standing up the HTTP server.`,
}

func Execute() {
	if logger == nil {
		initLogging()
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./tilecutter.yaml)")
	rootCmd.PersistentFlags().String("catalog-dsn", "", "SQLite catalog DSN, passed unchanged to the sqlite driver (e.g. /path/to.db); empty uses an empty in-memory catalog")
	rootCmd.PersistentFlags().String("catalog-table", "footprints", "catalog table name")
	rootCmd.PersistentFlags().Int("cache-capacity", 64, "number of open raster handles to keep cached")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	for _, name := range []string{"catalog-dsn", "catalog-table", "cache-capacity", "log-level"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", name, err))
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("tilecutter")
	}

	viper.SetEnvPrefix("TILECUTTER")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

func initLogging() {
	var cfg zap.Config
	switch viper.GetString("log-level") {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}
	base, err := cfg.Build()
	if err != nil {
		base = zap.NewNop()
	}
	logger = base.Sugar()
}
