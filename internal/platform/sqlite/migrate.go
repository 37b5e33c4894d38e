package sqlite

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// BuildMigrateURL builds a golang-migrate database URL for the given path,
// handling the Windows drive-letter form ("C:\..." -> "sqlite:///C:/...").
func BuildMigrateURL(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	urlPath := filepath.ToSlash(absPath)

	if runtime.GOOS == "windows" && len(urlPath) >= 2 && urlPath[1] == ':' {
		urlPath = "/" + urlPath
	}

	if !strings.HasPrefix(urlPath, "/") {
		urlPath = "/" + urlPath
	}

	return "sqlite://" + urlPath, nil
}

// ApplyMigrations applies all pending migrations to the database at dbPath.
// Safe to call repeatedly: an already-migrated database is not an error.
// migrationsPath is a golang-migrate source URL, e.g. "file://migrations/sqlite".
func ApplyMigrations(dbPath, migrationsPath string) error {
	databaseURL, err := BuildMigrateURL(dbPath)
	if err != nil {
		return fmt.Errorf("failed to build database URL: %w", err)
	}

	m, err := migrate.New(migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// MigrationVersion returns the currently applied migration version.
// A database with no applied migrations reports version 0, not an error.
func MigrationVersion(dbPath, migrationsPath string) (uint, bool, error) {
	databaseURL, err := BuildMigrateURL(dbPath)
	if err != nil {
		return 0, false, fmt.Errorf("failed to build database URL: %w", err)
	}

	m, err := migrate.New(migrationsPath, databaseURL)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	return version, dirty, nil
}
