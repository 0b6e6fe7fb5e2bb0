package main

import (
	"context"
	"fmt"
	"os"

	"quarry/internal/app"
	"quarry/internal/config"
	"quarry/internal/log"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *log.Logger
)

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.config/quarry/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig runs before every command. A broken config file falls back to
// the defaults so the config subcommands stay usable.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadConfigFile(cfgFile)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, warningText(fmt.Sprintf("Warning: %v, using defaults", err)))
		cfg = config.New()
	}
	if cfg.Theme.Primary == "" {
		name := cfg.Theme.Name
		if name == "" {
			name = "default"
		}
		cfg.ApplyTheme(name)
	}
	applyTheme(cfg)

	opts := []log.Option{log.WithOutput(os.Stderr), log.WithLevel(cfg.Logging.Level)}
	if cfg.Logging.JSON {
		opts = append(opts, log.WithJSON())
	}
	if verbose {
		opts = append(opts, log.WithLevel("debug"))
	}
	logger = log.NewLogger(opts...)
	return nil
}

// openApp builds and starts the engine. The caller owns the Shutdown.
func openApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(ctx)
		return nil, err
	}
	return a, nil
}

// closeApp flushes state; failures were already logged.
func closeApp(ctx context.Context, a *app.App) {
	if err := a.Shutdown(context.WithoutCancel(ctx)); err != nil {
		logger.With(log.F("error", err)).Debug("Shutdown reported errors")
	}
}
