package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/leadbot/internal/store"
)

var migrateTo int

// migrateCmd manages the SQLite schema.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply the embedded schema migrations. serve and the other commands
migrate to the latest version on open; --to moves the schema to an explicit
version, including down.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		target := store.TargetLatest
		if cmd.Flags().Changed("to") {
			if migrateTo < 1 {
				return fmt.Errorf("invalid version %d", migrateTo)
			}
			target = store.TargetVersion(uint(migrateTo))
		}
		return withStore(cmd, func(ctx context.Context, st *store.SQLite) error {
			if err := st.Migrate(target); err != nil {
				return err
			}
			return printSchemaVersion(cmd, ctx, st)
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.SQLite) error {
			return printSchemaVersion(cmd, ctx, st)
		})
	},
}

func init() {
	migrateCmd.Flags().IntVar(&migrateTo, "to", 0, "Target schema version")
	migrateCmd.AddCommand(migrateStatusCmd)
}

type schemaVersion struct {
	Version uint `json:"version" yaml:"version"`
	Latest  uint `json:"latest" yaml:"latest"`
	Dirty   bool `json:"dirty" yaml:"dirty"`
}

func printSchemaVersion(cmd *cobra.Command, ctx context.Context, st *store.SQLite) error {
	v, dirty, err := st.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	out := schemaVersion{Version: v, Latest: store.LatestMigrationVersion, Dirty: dirty}
	return render(cmd.OutOrStdout(), out, nil)
}

// withStore opens the store without migrating it.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, st *store.SQLite) error) (err error) {
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
	st, err := store.Open(ctx, store.Config{
		Path:         cfg.Storage.Path,
		BusyTimeout:  cfg.Storage.BusyTimeout,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		SkipMigrate:  true,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		err = errors.Join(err, st.Close())
	}()
	return fn(ctx, st)
}
