package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
)

// migrationTableName is the table goose uses to track applied migrations.
const migrationTableName = "schema_migrations"

// migrationsDir is the migrations path relative to the project root.
const migrationsDir = "internal/platform/postgres/migrations"

// slogGooseLogger adapts the goose logger interface to slog.
type slogGooseLogger struct {
	log *slog.Logger
}

func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	l.log.Info(fmt.Sprintf(format, v...))
}

// Fatalf deliberately does not exit; the error flows back to run() which
// handles exit consistently.
func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(format, v...))
}

// migrate applies all pending schema migrations.
func (app *application) migrate() error {
	dir, err := findMigrationsDir()
	if err != nil {
		return err
	}

	goose.SetLogger(&slogGooseLogger{log: app.logger})
	goose.SetTableName(migrationTableName)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	app.logger.Info("applying database migrations", "dir", dir)
	if err := goose.Up(app.db, dir); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

// findMigrationsDir locates the migrations directory by walking up from the
// working directory to the module root (identified by go.mod).
func findMigrationsDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	dir := cwd
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			candidate := filepath.Join(dir, migrationsDir)
			if info, err := os.Stat(candidate); err == nil && info.IsDir() {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("migrations directory %s not found above %s", migrationsDir, cwd)
}
