package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration is one versioned schema change
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns all schema migrations in order. The SQL sticks to
// the subset PostgreSQL and SQLite share: TEXT columns,
// CURRENT_TIMESTAMP defaults, IF NOT EXISTS guards.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS ratchet_roles (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					description TEXT,
					permissions TEXT NOT NULL DEFAULT '[]',
					parent_roles TEXT NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_ratchet_roles_name ON ratchet_roles(name);
			`,
		},
		{
			Version:     2,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS ratchet_users (
					id TEXT PRIMARY KEY,
					roles TEXT NOT NULL DEFAULT '[]',
					permissions TEXT NOT NULL DEFAULT '[]',
					attributes TEXT NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
	}
}

// runMigrations applies pending migrations, each in its own transaction,
// tracked in ratchet_migrations.
func runMigrations(ctx context.Context, db *sql.DB, logger *logrus.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ratchet_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM ratchet_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate migrations: %w", err)
	}

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		logger.Infof("running migration %d: %s", migration.Version, migration.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO ratchet_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}
	return nil
}
