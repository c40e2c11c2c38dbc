// Package sqlite persists scheduler jobs and triggers in a local SQLite
// database. It uses modernc.org/sqlite (pure Go, no CGO) in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/cronsync/internal/core"
	"github.com/flemzord/cronsync/internal/metrics"
	"github.com/flemzord/cronsync/internal/scheduler"
	"github.com/flemzord/cronsync/internal/scheduler/sqlstore"

	_ "modernc.org/sqlite" // SQLite driver registration
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ scheduler.Store      = (*Store)(nil)
	_ scheduler.Maintainer = (*Store)(nil)
	_ core.Configurable    = (*Module)(nil)
	_ core.Provisioner     = (*Module)(nil)
	_ core.Validator       = (*Module)(nil)
	_ core.Stopper         = (*Module)(nil)
)

// Module provides the scheduler store backed by a SQLite file.
type Module struct {
	config Config
	db     *sql.DB
	logger *slog.Logger
	store  *Store
}

// Store is the SQL store with SQLite housekeeping.
type Store struct {
	*sqlstore.Store
	walEnabled bool
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. It opens and migrates the
// database and registers the store service.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	db, err := Open(context.Background(), m.config)
	if err != nil {
		return err
	}

	m.db = db
	m.store = &Store{Store: sqlstore.New(db, sqlstore.SQLite), walEnabled: m.config.walEnabled()}
	if err := m.store.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return err
	}

	ctx.RegisterService(scheduler.ServiceStore, m.store)
	registerDBStats(ctx, db, "sqlite")

	m.logger.Info("sqlite store provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.db.PingContext(context.Background()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("sqlite store stopping")
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// Open opens the database file described by cfg, creating its directory.
// The pool is limited to one connection (SQLite serialises writes) so
// PRAGMAs apply to every statement.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	cfg.defaults()
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(1)

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}
	return db, nil
}

// Maintain implements scheduler.Maintainer: it refreshes query planner
// statistics and truncates the WAL.
func (s *Store) Maintain(ctx context.Context) error {
	if _, err := s.DB().ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("sqlite: optimize: %w", err)
	}
	if !s.walEnabled {
		return nil
	}
	if _, err := s.DB().ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("sqlite: wal checkpoint: %w", err)
	}
	return nil
}

// registerDBStats exports connection pool statistics when the application
// provides a Prometheus registerer.
func registerDBStats(ctx *core.AppContext, db *sql.DB, name string) {
	svc, ok := ctx.Service(metrics.ServiceRegisterer)
	if !ok {
		return
	}
	reg, ok := svc.(prometheus.Registerer)
	if !ok {
		return
	}
	if err := reg.Register(collectors.NewDBStatsCollector(db, name)); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			ctx.Logger.Warn("sqlite: registering db stats", "error", err)
		}
	}
}
