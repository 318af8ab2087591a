package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/leadbot/internal/app"
	"github.com/aatumaykin/leadbot/internal/config"
	"github.com/aatumaykin/leadbot/internal/constants"
	"github.com/aatumaykin/leadbot/internal/logger"
)

var (
	configPath   string
	envFile      string
	logLevel     string
	outputFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "leadbot",
	Short: "Leadbot - autonomous outreach agent",
	Long: `Leadbot picks due leads on a schedule, asks an oracle what to send and
delivers the messages within business hours, hourly and daily budgets and an
error-rate safety switch.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case "text", "json", "yaml":
			return nil
		}
		return fmt.Errorf("unsupported output format %q (expected: text, json, yaml)", outputFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", constants.DefaultConfigPath, "Path to config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", constants.DefaultEnvPath, "Path to .env file, loaded when present")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format (text, json, yaml)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(resetCountersCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(leadsCmd)
	rootCmd.AddCommand(migrateCmd)
}

// loadConfig reads .env and the config file, applies flag overrides and
// validates the result.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvOptional(envFile); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, validationError(errs)
	}
	return cfg, nil
}

func validationError(errs []error) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = "  - " + e.Error()
	}
	return fmt.Errorf("configuration validation failed:\n%s", strings.Join(msgs, "\n"))
}

// newLogger builds the process logger. One-shot commands keep stdout for
// their own output.
func newLogger(cfg *config.Config, oneShot bool) (*logger.Logger, error) {
	output := cfg.Logging.Output
	if oneShot && output == "stdout" {
		output = "stderr"
	}
	log, err := logger.New(logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       output,
		RedactEmails: cfg.Logging.RedactEmails,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetDefault(log)
	return log, nil
}

// withApp initializes the application without starting background jobs,
// runs fn and shuts down.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, true)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a := app.New(cfg, log)
	if err := a.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Shutdown())
	}()

	return fn(ctx, a)
}
