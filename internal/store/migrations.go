package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
)

// LatestMigrationVersion must be bumped together with every new file in
// migrations/.
const LatestMigrationVersion uint = 2

//go:embed migrations/*.sql
var migrationFiles embed.FS

// ErrMigrationDowngrade is returned when the database schema is newer than
// this binary knows about.
var ErrMigrationDowngrade = errors.New("database downgrade detected")

// MigrationTarget selects where applyMigrations should end up.
type MigrationTarget func(mig *migrate.Migrate) error

var (
	// TargetLatest migrates to the newest embedded version.
	TargetLatest MigrationTarget = func(mig *migrate.Migrate) error {
		return mig.Up()
	}

	// TargetVersion migrates up or down to an explicit version.
	TargetVersion = func(version uint) MigrationTarget {
		return func(mig *migrate.Migrate) error {
			return mig.Migrate(version)
		}
	}
)

// migrationLogger adapts slog to migrate.Logger.
type migrationLogger struct {
	log *slog.Logger
}

func (m *migrationLogger) Printf(format string, v ...any) {
	format = strings.TrimRight(format, "\n")
	m.log.Info(fmt.Sprintf(format, v...))
}

func (m *migrationLogger) Verbose() bool {
	return false
}

// applyMigrations runs the embedded migrations against db. A dirty schema or
// a schema newer than LatestMigrationVersion stops startup.
func applyMigrations(db *sql.DB, target MigrationTarget, latest uint, log *slog.Logger) error {
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	return runMigrations(migrationFiles, driver, "migrations", target, latest, log)
}

func runMigrations(fsys fs.FS, driver database.Driver, path string,
	target MigrationTarget, latest uint, log *slog.Logger) error {

	src, err := httpfs.New(http.FS(fsys), path)
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	mig, err := migrate.NewWithInstance("migrations", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	version, dirty, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("unable to determine current migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in a dirty state at version %v, manual intervention required", version)
	}
	if version > latest {
		return fmt.Errorf("%w: db_version=%v, latest_migration_version=%v",
			ErrMigrationDowngrade, version, latest)
	}

	log.InfoContext(context.Background(), "applying migrations",
		"current_db_version", version,
		"latest_migration_version", latest)

	mig.Log = &migrationLogger{log: log}
	if err := target(mig); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	after, _, err := driver.Version()
	if err != nil {
		return fmt.Errorf("unable to get db version: %w", err)
	}
	log.InfoContext(context.Background(), "database version after migration",
		"current_db_version", after)
	return nil
}

// SchemaVersion reports the applied migration version.
func (s *SQLite) SchemaVersion(ctx context.Context) (uint, bool, error) {
	var (
		version int64
		dirty   bool
		tables  int
	)
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`).Scan(&tables); err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	if tables == 0 {
		return 0, false, nil
	}
	err := s.db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return uint(version), dirty, nil
}

// Migrate moves the schema to target; used by the migrate command.
func (s *SQLite) Migrate(target MigrationTarget) error {
	return applyMigrations(s.db, target, LatestMigrationVersion, s.log.StdLogger())
}
