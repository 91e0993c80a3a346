package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrationLockID keys the advisory lock held while a schema step is applied,
// so two processes starting against one database apply each step once.
const migrationLockID = 0x61747464 // "attd"

// migration is one numbered schema step, loaded from migrations/NNN_name.sql.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// loadMigrations parses the migration files of fsys, ordered by version.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	paths, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	seen := make(map[int]string, len(paths))
	steps := make([]migration, 0, len(paths))
	for _, p := range paths {
		base := path.Base(p)
		num, name, ok := strings.Cut(strings.TrimSuffix(base, ".sql"), "_")
		version, err := strconv.Atoi(num)
		if !ok || name == "" || err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s: name must look like 001_description.sql", base)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, base, version)
		}
		seen[version] = base

		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", base, err)
		}
		steps = append(steps, migration{Version: version, Name: name, SQL: string(content)})
	}

	slices.SortFunc(steps, func(a, b migration) int { return a.Version - b.Version })
	return steps, nil
}

func (p *Pool) ensureVersionTable(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS attendance_schema_versions (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema version table: %w", err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func currentVersion(ctx context.Context, q queryRower) (int, error) {
	var version int
	err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM attendance_schema_versions").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// SchemaVersion returns the highest applied migration version, 0 for an empty database.
func (p *Pool) SchemaVersion(ctx context.Context) (int, error) {
	if err := p.ensureVersionTable(ctx); err != nil {
		return 0, err
	}
	return currentVersion(ctx, p.db)
}

// Migrate applies every embedded migration newer than the database's schema version.
// Each step runs in its own transaction.
func (p *Pool) Migrate(ctx context.Context, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	steps, err := loadMigrations(migrationFiles)
	if err != nil {
		return err
	}
	if err := p.ensureVersionTable(ctx); err != nil {
		return err
	}

	for _, step := range steps {
		applied, err := p.applyStep(ctx, step)
		if err != nil {
			return err
		}
		if applied {
			logger.Info("applied database migration", "version", step.Version, "name", step.Name)
		}
	}
	return nil
}

// applyStep runs one migration unless another process already did.
func (p *Pool) applyStep(ctx context.Context, step migration) (bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin migration %03d: %w", step.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		return false, fmt.Errorf("lock migration %03d: %w", step.Version, err)
	}

	current, err := currentVersion(ctx, tx)
	if err != nil {
		return false, err
	}
	if current >= step.Version {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
		return false, fmt.Errorf("execute migration %03d_%s: %w", step.Version, step.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO attendance_schema_versions (version, name) VALUES ($1, $2)", step.Version, step.Name); err != nil {
		return false, fmt.Errorf("record migration %03d: %w", step.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit migration %03d: %w", step.Version, err)
	}
	return true, nil
}
