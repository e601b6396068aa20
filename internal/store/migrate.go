package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultMigrationsDir is where the repo checkout keeps its schema.
const DefaultMigrationsDir = "./db/migrations"

// ApplyMigrations runs every pending *.up.sql file in migrationsDir in
// lexical order, one transaction per file. Applied versions are
// recorded in schema_migrations and skipped on later runs, so startup
// always converges on the newest schema.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	if migrationsDir == "" {
		migrationsDir = DefaultMigrationsDir
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	pending, err := pendingMigrations(ctx, db, migrationsDir)
	if err != nil {
		return err
	}
	for _, version := range pending {
		if err := runMigration(ctx, db, migrationsDir, version); err != nil {
			return err
		}
		log.Printf("store: applied migration %s", version)
	}
	return nil
}

// pendingMigrations lists the up migrations on disk that have no
// schema_migrations row yet, sorted by version.
func pendingMigrations(ctx context.Context, db *sql.DB, migrationsDir string) ([]string, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var pending []string
	for _, entry := range entries {
		version := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(version, ".up.sql") {
			continue
		}
		var applied bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version,
		).Scan(&applied)
		if err != nil {
			return nil, fmt.Errorf("check migration %s: %w", version, err)
		}
		if !applied {
			pending = append(pending, version)
		}
	}
	sort.Strings(pending)
	return pending, nil
}

func runMigration(ctx context.Context, db *sql.DB, migrationsDir, version string) error {
	contents, err := os.ReadFile(filepath.Join(migrationsDir, version))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", version, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}
