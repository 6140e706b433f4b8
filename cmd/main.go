package main

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytplay/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	configPath := os.Getenv("YTPLAY_CONFIG")
	if configPath == "" {
		configPath = "config.toml"
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(configPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "path", configPath, "error", err)
		}
	}

	if err := config.ApplyEnv(); err != nil {
		logger.Fatalf("invalid environment: %v", err)
	}
	if err := shared.SetLogLevel(logger, config.Log.Level); err != nil {
		logger.Warn("ignoring log level", "error", err)
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "ytplay",
		Usage:    "Resolve, download and cache tracks for local playback",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("interrupted")
			os.Exit(130)
		}
		logger.Fatalf("application error: %v", err)
	}
}
