// Package migrate applies the embedded schema migrations for each supported SQL dialect.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Dialect selects the migration set and the bookkeeping SQL.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

type dialectSQL struct {
	createTable string
	exists      string
	insert      string
}

var dialects = map[Dialect]dialectSQL{
	Postgres: {
		createTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		exists: `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`,
		insert: `INSERT INTO schema_migrations (version) VALUES ($1)`,
	},
	SQLite: {
		createTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		exists: `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)`,
		insert: `INSERT INTO schema_migrations (version) VALUES (?)`,
	},
}

// Run applies all SQL migrations embedded for the dialect. It is safe to call multiple times.
func Run(ctx context.Context, db *sql.DB, dialect Dialect) error {
	q, ok := dialects[dialect]
	if !ok {
		return fmt.Errorf("unsupported migration dialect %q", dialect)
	}

	if _, err := db.ExecContext(ctx, q.createTable); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	files, err := Files(dialect)
	if err != nil {
		return err
	}

	for _, f := range files {
		info := migrationInfo{
			versionStr: strings.TrimSuffix(f, ".sql"),
			file:       f,
			dir:        "migrations/" + string(dialect),
		}
		if applyErr := applyMigration(ctx, db, q, info); applyErr != nil {
			return applyErr
		}
	}
	return nil
}

// Files lists the embedded migration file names for the dialect in apply order.
func Files(dialect Dialect) ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// migrationInfo holds information about a migration for processing.
type migrationInfo struct {
	versionStr string
	file       string
	dir        string
}

func migrationExists(ctx context.Context, db *sql.DB, q dialectSQL, info migrationInfo) (bool, error) {
	var exists bool
	if err := db.QueryRowContext(ctx, q.exists, info.versionStr).Scan(&exists); err != nil {
		return false, fmt.Errorf("check migration %s: %w", info.file, err)
	}
	return exists, nil
}

func applyMigration(ctx context.Context, db *sql.DB, q dialectSQL, info migrationInfo) error {
	exists, err := migrationExists(ctx, db, q, info)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	sqlBytes, err := migrationsFS.ReadFile(info.dir + "/" + info.file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", info.file, err)
	}

	logger := slog.Default().With("component", "migrations")
	logger.InfoContext(ctx, "applying migration", "version", info.versionStr, "dir", info.dir)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			logger.ErrorContext(ctx, "failed to rollback transaction", "err", rollbackErr, "migration_file", info.file)
		}
	}()

	if _, execErr := tx.ExecContext(ctx, string(sqlBytes)); execErr != nil {
		return fmt.Errorf("exec migration %s: %w", info.file, execErr)
	}
	if _, insertErr := tx.ExecContext(ctx, q.insert, info.versionStr); insertErr != nil {
		return fmt.Errorf("record migration %s: %w", info.file, insertErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit migration %s: %w", info.file, commitErr)
	}

	return nil
}
