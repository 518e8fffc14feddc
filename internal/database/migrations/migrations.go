package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// ErrStale is returned by CheckStatus when the database cannot be brought
// up to date by migrating forward and has to be recreated.
var ErrStale = errors.New("cache schema is stale")

// CheckStatus compares the database schema version with the migrations
// compiled into the binary. It returns the number of pending migrations,
// or ErrStale when the database is dirty or ahead of the binary.
func CheckStatus(db *sql.DB) (int, error) {
	m, err := newMigrate(db)
	if err != nil {
		return 0, fmt.Errorf("creating migrate instance: %w", err)
	}
	// m is not closed: closing it would close the caller's db.

	latest, err := LatestVersion()
	if err != nil {
		return 0, err
	}

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return int(latest), nil
		}
		return 0, fmt.Errorf("reading schema version: %w", err)
	}

	if dirty {
		return 0, fmt.Errorf("%w: dirty at version %d", ErrStale, version)
	}
	if version > latest {
		return 0, fmt.Errorf("%w: version %d is ahead of binary version %d", ErrStale, version, latest)
	}
	return int(latest - version), nil
}

// MigrateUp runs all pending migrations.
func MigrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// LatestVersion returns the highest migration version compiled in.
func LatestVersion() (uint, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return 0, fmt.Errorf("reading migration files: %w", err)
	}
	defer src.Close()
	return latestVersion(src)
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("creating source driver: %w", err)
	}

	dbDriver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("creating database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	return m, nil
}

func latestVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(version)
		if err != nil {
			// end of the migration list
			break
		}
		version = next
	}
	return version, nil
}
