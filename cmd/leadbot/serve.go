package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/leadbot/internal/app"
	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/version"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent scheduler and admin API (main command)",
	Long: `Start leadbot with the specified configuration.
This opens the store, seeds the agent config on first run, schedules the
decision cycle, health checks and log retention, and serves the admin API
until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, false)
	if err != nil {
		return err
	}

	log.Info(version.FormatStartupMessage(),
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "storage", Value: cfg.Storage.Path},
		logger.Field{Key: "oracle", Value: cfg.Oracle.Backend},
		logger.Field{Key: "transport", Value: cfg.Transport.Backend},
		logger.Field{Key: "lock", Value: cfg.Lock.Backend},
		logger.Field{Key: "http", Value: cfg.HTTP.Enabled},
	)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.New(cfg, log).Run(ctx)
}
