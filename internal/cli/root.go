package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/config"
	"github.com/lucasnoah/dsmeta/internal/logging"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configFile string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "dsmeta",
	Short: "Generate metadata for dataset directories",
	Long: `dsmeta inspects dataset directories, asks a language model to describe them,
optionally enriches the description from web search, validates the result
against the metadata vocabulary and writes meta.md / meta.json next to the data.

Run history is stored in ~/.dsmeta/dsmeta.db (SQLite) unless a database is configured.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads --config when given, otherwise the first default location.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}

// setup loads the config and builds the logger every working command needs.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Logging, debug || cfg.App.Debug)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(serveCmd)
}
