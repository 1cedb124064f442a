package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// DefaultMigrationsSource is relative to the daemon's working directory.
const DefaultMigrationsSource = "file://migrations"

// ErrDirtySchema means a previous migration failed halfway and needs a
// manual `migrate force`.
var ErrDirtySchema = errors.New("schema is dirty")

// MigrationState describes the schema after Migrate.
type MigrationState struct {
	Version uint
	// Applied is false when the schema was already current.
	Applied bool
}

// WithMigrator opens a dedicated connection for golang-migrate and hands the
// migrator to fn. The connection is closed when fn returns.
func WithMigrator(databaseURL, source string, fn func(m *migrate.Migrate) error) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	if source == "" {
		source = DefaultMigrationsSource
	}
	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to load migrations from %s: %w", source, err)
	}
	return fn(m)
}

// Migrate applies every pending up migration.
func Migrate(databaseURL, source string) (MigrationState, error) {
	var state MigrationState
	err := WithMigrator(databaseURL, source, func(m *migrate.Migrate) error {
		upErr := m.Up()
		if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
			return fmt.Errorf("failed to apply migrations: %w", upErr)
		}
		state.Applied = upErr == nil

		version, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			return nil
		case err != nil:
			return fmt.Errorf("failed to read schema version: %w", err)
		case dirty:
			return fmt.Errorf("version %d: %w", version, ErrDirtySchema)
		}
		state.Version = version
		return nil
	})
	return state, err
}
