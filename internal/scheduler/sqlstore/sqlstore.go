// Package sqlstore implements scheduler.Store on top of database/sql. It is
// shared by the SQLite and Postgres store modules.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/scheduler"
)

// Compile-time interface check.
var _ scheduler.Store = (*Store)(nil)

// Store persists jobs and triggers in two tables keyed by (group, name).
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// New wraps db. Call Migrate before use.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the store's SQL dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exec(ctx context.Context, q execer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, q execer, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit: %w", err)
	}
	return nil
}

const jobColumns = "job_group, job_name, job_type, durable, requests_recovery, track_executions, record, created_at, updated_at"

// ListJobs implements scheduler.Store.
func (s *Store) ListJobs(ctx context.Context) ([]scheduler.JobDetail, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+jobColumns+" FROM jobs ORDER BY job_group, job_name")
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []scheduler.JobDetail
	for rows.Next() {
		d, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: list jobs: %w", err)
	}
	return out, nil
}

// GetJob implements scheduler.Store.
func (s *Store) GetJob(ctx context.Context, id job.Identity) (scheduler.JobDetail, error) {
	row := s.queryRow(ctx, s.db, "SELECT "+jobColumns+" FROM jobs WHERE job_group = ? AND job_name = ?", id.Group, id.Name)
	d, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return scheduler.JobDetail{}, scheduler.ErrJobNotFound
	}
	return d, err
}

// CreateJob implements scheduler.Store.
func (s *Store) CreateJob(ctx context.Context, detail scheduler.JobDetail, trigger scheduler.Trigger) error {
	record, err := encodeRecord(detail.Record)
	if err != nil {
		return err
	}
	now := s.now().UnixMilli()
	trigger.Identity = detail.Identity

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `
			INSERT INTO jobs (`+jobColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (job_group, job_name) DO NOTHING`,
			detail.Identity.Group, detail.Identity.Name, detail.Type,
			boolInt(detail.Durable), boolInt(detail.RequestsRecovery), boolInt(detail.TrackExecutions),
			record, now, now,
		)
		if err != nil {
			return fmt.Errorf("sqlstore: insert job: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return scheduler.ErrJobExists
		}
		return s.upsertTrigger(ctx, tx, trigger)
	})
}

// SaveTrigger implements scheduler.Store.
func (s *Store) SaveTrigger(ctx context.Context, trigger scheduler.Trigger) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, "UPDATE jobs SET updated_at = ? WHERE job_group = ? AND job_name = ?",
			s.now().UnixMilli(), trigger.Identity.Group, trigger.Identity.Name)
		if err != nil {
			return fmt.Errorf("sqlstore: touch job: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return scheduler.ErrJobNotFound
		}
		return s.upsertTrigger(ctx, tx, trigger)
	})
}

func (s *Store) upsertTrigger(ctx context.Context, tx *sql.Tx, t scheduler.Trigger) error {
	var startAt int64
	if !t.StartAt.IsZero() {
		startAt = t.StartAt.UnixMilli()
	}
	_, err := s.exec(ctx, tx, `
		INSERT INTO triggers (job_group, job_name, kind, cron_expression, interval_ns, start_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_group, job_name) DO UPDATE SET
			kind = excluded.kind,
			cron_expression = excluded.cron_expression,
			interval_ns = excluded.interval_ns,
			start_at = excluded.start_at`,
		t.Identity.Group, t.Identity.Name, string(t.Kind), t.CronExpression, int64(t.Interval), startAt,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: save trigger: %w", err)
	}
	return nil
}

// GetTrigger implements scheduler.Store.
func (s *Store) GetTrigger(ctx context.Context, id job.Identity) (scheduler.Trigger, error) {
	var (
		kind     string
		expr     string
		interval int64
		startAt  int64
	)
	err := s.queryRow(ctx, s.db, `
		SELECT kind, cron_expression, interval_ns, start_at
		FROM triggers WHERE job_group = ? AND job_name = ?`,
		id.Group, id.Name,
	).Scan(&kind, &expr, &interval, &startAt)
	if errors.Is(err, sql.ErrNoRows) {
		return scheduler.Trigger{}, scheduler.ErrTriggerNotFound
	}
	if err != nil {
		return scheduler.Trigger{}, fmt.Errorf("sqlstore: get trigger: %w", err)
	}

	t := scheduler.Trigger{
		Identity:       id,
		Kind:           scheduler.TriggerKind(kind),
		CronExpression: expr,
		Interval:       time.Duration(interval),
	}
	if startAt != 0 {
		t.StartAt = time.UnixMilli(startAt)
	}
	return t, nil
}

// DeleteJob implements scheduler.Store.
func (s *Store) DeleteJob(ctx context.Context, id job.Identity) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, "DELETE FROM triggers WHERE job_group = ? AND job_name = ?", id.Group, id.Name); err != nil {
			return fmt.Errorf("sqlstore: delete trigger: %w", err)
		}
		res, err := s.exec(ctx, tx, "DELETE FROM jobs WHERE job_group = ? AND job_name = ?", id.Group, id.Name)
		if err != nil {
			return fmt.Errorf("sqlstore: delete job: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlstore: delete job: %w", err)
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// SaveExecutionRecord implements scheduler.Store.
func (s *Store) SaveExecutionRecord(ctx context.Context, id job.Identity, rec job.ExecutionRecord) error {
	record, err := encodeRecord(&rec)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, s.db, "UPDATE jobs SET record = ?, updated_at = ? WHERE job_group = ? AND job_name = ?",
		record, s.now().UnixMilli(), id.Group, id.Name)
	if err != nil {
		return fmt.Errorf("sqlstore: save execution record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return scheduler.ErrJobNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (scheduler.JobDetail, error) {
	var (
		d                        scheduler.JobDetail
		durable, recovery, track int
		record                   string
		createdAt, updatedAt     int64
	)
	err := row.Scan(&d.Identity.Group, &d.Identity.Name, &d.Type,
		&durable, &recovery, &track, &record, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, err
	}
	if err != nil {
		return d, fmt.Errorf("sqlstore: scan job: %w", err)
	}
	d.Durable = durable != 0
	d.RequestsRecovery = recovery != 0
	d.TrackExecutions = track != 0
	d.CreatedAt = time.UnixMilli(createdAt)
	d.UpdatedAt = time.UnixMilli(updatedAt)
	if record != "" {
		var rec job.ExecutionRecord
		if err := json.Unmarshal([]byte(record), &rec); err != nil {
			return d, fmt.Errorf("sqlstore: decode execution record of %s: %w", d.Identity, err)
		}
		d.Record = &rec
	}
	return d, nil
}

func encodeRecord(rec *job.ExecutionRecord) (string, error) {
	if rec == nil {
		return "", nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("sqlstore: encode execution record: %w", err)
	}
	return string(data), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
