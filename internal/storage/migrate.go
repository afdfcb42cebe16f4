package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration directions
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Migration is one embedded schema change
type Migration struct {
	Version string
	SQL     string
}

// Migrations returns the embedded migrations for direction in the order they
// must run: ascending for up, descending for down.
func Migrations(direction string) ([]Migration, error) {
	suffix, err := migrationSuffix(direction)
	if err != nil {
		return nil, err
	}

	names, err := fs.Glob(migrationFiles, "migrations/*"+suffix)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)
	if direction == DirectionDown {
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
	}

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		content, err := migrationFiles.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		out = append(out, Migration{
			Version: strings.TrimSuffix(path.Base(name), suffix),
			SQL:     string(content),
		})
	}
	return out, nil
}

func migrationSuffix(direction string) (string, error) {
	switch direction {
	case DirectionUp:
		return ".up.sql", nil
	case DirectionDown:
		return ".down.sql", nil
	default:
		return "", fmt.Errorf("migration direction must be '%s' or '%s', got: %s", DirectionUp, DirectionDown, direction)
	}
}

// pending filters migrations to those still to run, honoring steps (0 = all)
func pending(migrations []Migration, applied map[string]bool, direction string, steps int) []Migration {
	var out []Migration
	for _, m := range migrations {
		if applied[m.Version] != (direction == DirectionDown) {
			continue
		}
		if steps > 0 && len(out) >= steps {
			break
		}
		out = append(out, m)
	}
	return out
}

// Migrate applies the embedded migrations in direction and returns the
// versions it ran. Each migration runs in its own transaction together with
// its schema_migrations bookkeeping.
func Migrate(ctx context.Context, pool *pgxpool.Pool, direction string, steps int) ([]string, error) {
	migrations, err := Migrations(direction)
	if err != nil {
		return nil, err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, m := range pending(migrations, applied, direction, steps) {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return ran, fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return ran, fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}

		if direction == DirectionUp {
			_, err = tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version)
		} else {
			_, err = tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", m.Version)
		}
		if err != nil {
			tx.Rollback(ctx)
			return ran, fmt.Errorf("failed to update migrations table: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return ran, fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}
		ran = append(ran, m.Version)
	}

	return ran, nil
}

func appliedVersions(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
