package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one forward schema step. Statements run in order; MySQL
// commits DDL implicitly, so a failed step is re-run from its first
// statement and every statement must tolerate that.
type Migration struct {
	Version    string
	Name       string
	Statements []string
}

// Migrations is the ordered schema history of the parking store.
var Migrations = []Migration{
	{
		Version: "20240101000001",
		Name:    "create_credentials",
		Statements: []string{`
CREATE TABLE IF NOT EXISTS credentials (
    id         VARCHAR(64)  NOT NULL PRIMARY KEY,
    name       VARCHAR(255) NOT NULL DEFAULT '',
    role       ENUM('owner','user') NOT NULL DEFAULT 'user',
    balance    BIGINT       NOT NULL DEFAULT 0,
    created_at DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	},
	{
		Version: "20240101000002",
		Name:    "create_slots",
		Statements: []string{`
CREATE TABLE IF NOT EXISTS slots (
    slot_id    INT UNSIGNED NOT NULL PRIMARY KEY,
    status     ENUM('free','occupied') NOT NULL DEFAULT 'free',
    updated_at DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3),
    KEY idx_slots_status (status)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	},
	{
		// open_credential_id is non-NULL only while the session is open, so
		// the unique key admits one open session per credential and any
		// number of closed ones. Deletes cascade in the repository because
		// MySQL forbids ON DELETE CASCADE on a column a stored generated
		// column depends on.
		Version: "20240101000003",
		Name:    "create_sessions",
		Statements: []string{`
CREATE TABLE IF NOT EXISTS sessions (
    id                 BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
    credential_id      VARCHAR(64)  NOT NULL,
    entry_time         DATETIME(3)  NOT NULL,
    exit_time          DATETIME(3)  NULL,
    duration_seconds   BIGINT       NULL,
    amount             BIGINT       NULL,
    payment_status     ENUM('unpaid','paid') NOT NULL DEFAULT 'unpaid',
    open_credential_id VARCHAR(64) AS (IF(exit_time IS NULL, credential_id, NULL)) STORED,
    UNIQUE KEY uq_sessions_open (open_credential_id),
    KEY idx_sessions_credential_entry (credential_id, entry_time),
    CONSTRAINT fk_sessions_credential FOREIGN KEY (credential_id) REFERENCES credentials (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`},
	},
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    VARCHAR(32)  NOT NULL PRIMARY KEY,
    name       VARCHAR(128) NOT NULL,
    applied_at DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// Migrate applies every migration not yet recorded in schema_migrations and
// returns the names of those it applied.
func Migrate(ctx context.Context, db *sql.DB) ([]string, error) {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[string]bool{}
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var done []string
	for _, m := range Migrations {
		if applied[m.Version] {
			continue
		}
		for _, stmt := range m.Statements {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return done, fmt.Errorf("migration %s %s: %w", m.Version, m.Name, err)
			}
		}
		if _, err := db.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
			return done, fmt.Errorf("record migration %s: %w", m.Version, err)
		}
		done = append(done, m.Name)
	}
	return done, nil
}
