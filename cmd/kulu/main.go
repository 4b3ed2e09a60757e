// Kulu - Cloud Resource Telemetry and Optimization
// Discover. Measure. Recommend.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kulu-io/kulu/config"
	"github.com/kulu-io/kulu/storage"
)

func main() {
	Execute()
}

// setupLogging applies the configured level and console output
func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// loadConfig reads the config file named by the --config flag
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)
	return cfg, nil
}

// openStore opens the embedded database at the configured directory
func openStore(cfg *config.Config) (*storage.Store, error) {
	store, err := storage.Open(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage at %s: %w", cfg.Storage.Dir, err)
	}
	return store, nil
}
