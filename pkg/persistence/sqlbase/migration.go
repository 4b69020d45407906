// Package sqlbase provides the base functionality for SQL database persistence.
package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// migrationLockKey identifies the session advisory lock held while migrating.
const migrationLockKey = 7_310_215

// Migrator applies numbered schema migrations in ascending order. Processes sharing a database
// serialize on an advisory lock, so each version is applied exactly once.
type Migrator struct {
	db       *sql.DB
	logger   *slog.Logger
	versions []int
	steps    map[int]string
}

// NewMigrator creates a migrator for the given version -> statement map.
func NewMigrator(logger *slog.Logger, db *sql.DB, migrations map[int]string) *Migrator {
	return &Migrator{
		db:       db,
		logger:   logger,
		versions: slices.Sorted(maps.Keys(migrations)),
		steps:    migrations,
	}
}

// Latest returns the highest known version, 0 without migrations.
func (m *Migrator) Latest() int {
	if len(m.versions) == 0 {
		return 0
	}

	return m.versions[len(m.versions)-1]
}

// Version returns the highest applied version.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	return appliedVersion(ctx, m.db)
}

// Up brings the schema to the latest version.
func (m *Migrator) Up(ctx context.Context) (err error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("failed to lock schema migrations: %w", err)
	}

	defer func() {
		_, unlockErr := conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey)
		if err == nil && unlockErr != nil {
			err = fmt.Errorf("failed to unlock schema migrations: %w", unlockErr)
		}
	}()

	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	current, err := appliedVersion(ctx, conn)
	if err != nil {
		return err
	}

	pending := 0

	for _, version := range m.versions {
		if version <= current {
			continue
		}

		if err := m.apply(ctx, conn, version); err != nil {
			return err
		}

		pending++
	}

	m.logger.InfoContext(ctx, "Schema is up to date", "version", max(current, m.Latest()), "applied", pending)

	return nil
}

func (m *Migrator) apply(ctx context.Context, conn *sql.Conn, version int) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.steps[version]); err != nil {
		return fmt.Errorf("migration %d: %w", version, err)
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		return fmt.Errorf("migration %d: failed to record version: %w", version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %d: %w", version, err)
	}

	m.logger.InfoContext(ctx, "Applied migration", "version", version)

	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func appliedVersion(ctx context.Context, q queryer) (int, error) {
	var version int

	if err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to query schema version: %w", err)
	}

	return version, nil
}
