package sqlstore

import (
	"context"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// They are valid for every dialect and use IF NOT EXISTS so they can be
// re-applied.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		job_group         TEXT    NOT NULL,
		job_name          TEXT    NOT NULL,
		job_type          TEXT    NOT NULL,
		durable           INTEGER NOT NULL DEFAULT 1,
		requests_recovery INTEGER NOT NULL DEFAULT 0,
		track_executions  INTEGER NOT NULL DEFAULT 0,
		record            TEXT    NOT NULL DEFAULT '',
		created_at        BIGINT  NOT NULL,
		updated_at        BIGINT  NOT NULL,
		PRIMARY KEY (job_group, job_name)
	)`,

	`CREATE TABLE IF NOT EXISTS triggers (
		job_group       TEXT   NOT NULL,
		job_name        TEXT   NOT NULL,
		kind            TEXT   NOT NULL,
		cron_expression TEXT   NOT NULL DEFAULT '',
		interval_ns     BIGINT NOT NULL DEFAULT 0,
		start_at        BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (job_group, job_name)
	)`,
}

// Migrate creates or updates the schema to the latest version.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlstore: create schema_version: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlstore: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := s.exec(ctx, s.db, "INSERT INTO schema_version (version) VALUES (?) ON CONFLICT (version) DO NOTHING", schemaVersion); err != nil {
		return fmt.Errorf("sqlstore: record schema version: %w", err)
	}

	return nil
}
