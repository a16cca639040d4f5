package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

const migrationsTable = "schema_migrations"

func migrationsPath(driver string) (string, error) {
	switch driver {
	case DriverSQLite, "":
		return "migrations/sqlite", nil
	case DriverPostgres:
		return "migrations/postgres", nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

func newMigrator(db *sql.DB, driver string) (*migrate.Migrate, error) {
	if db == nil {
		return nil, errors.New("migrate: nil db")
	}
	path, err := migrationsPath(driver)
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(migrationsFS, path)
	if err != nil {
		return nil, fmt.Errorf("migrate %s: init source: %w", path, err)
	}

	var (
		dbDriver migratedb.Driver
		name     string
	)
	if driver == DriverPostgres {
		name = DriverPostgres
		dbDriver, err = migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: migrationsTable})
	} else {
		name = DriverSQLite
		dbDriver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{MigrationsTable: migrationsTable})
	}
	if err != nil {
		return nil, fmt.Errorf("migrate %s: init db driver: %w", path, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, name, dbDriver)
	if err != nil {
		return nil, fmt.Errorf("migrate %s: init migrator: %w", path, err)
	}
	return m, nil
}

// Migrate applies every pending migration for driver. An up-to-date schema
// is not an error.
func Migrate(db *sql.DB, driver string) error {
	m, err := newMigrator(db, driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Version reports the applied schema version and whether the last
// migration left the schema dirty. Version 0 means nothing is applied.
func Version(db *sql.DB, driver string) (uint, bool, error) {
	m, err := newMigrator(db, driver)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migrate version: %w", err)
	}
	return v, dirty, nil
}

// Migrations lists the embedded up-migration files for driver.
func Migrations(driver string) ([]string, error) {
	path, err := migrationsPath(driver)
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(migrationsFS, path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
