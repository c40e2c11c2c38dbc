// Package postgres persists scheduler jobs and triggers in PostgreSQL
// through lib/pq, for deployments sharing one job store across hosts.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/cronsync/internal/core"
	"github.com/flemzord/cronsync/internal/metrics"
	"github.com/flemzord/cronsync/internal/scheduler"
	"github.com/flemzord/cronsync/internal/scheduler/sqlstore"
	"github.com/flemzord/cronsync/internal/security"

	_ "github.com/lib/pq" // PostgreSQL driver registration
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

// Module provides the scheduler store backed by PostgreSQL.
type Module struct {
	config Config
	db     *sql.DB
	logger *slog.Logger
	store  *Store
}

// Store is the SQL store with PostgreSQL housekeeping.
type Store struct {
	*sqlstore.Store
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.postgres",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("postgres: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner. It connects, migrates the schema
// and registers the store service.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if err := m.config.validate(); err != nil {
		return err
	}
	if svc, ok := ctx.Service(security.ServiceRedactor); ok {
		if r, ok := svc.(*security.Redactor); ok {
			r.AddLiteral(password(m.config.DSN))
		}
	}

	db, err := sql.Open("postgres", m.config.DSN)
	if err != nil {
		return fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(m.config.MaxOpenConns)
	db.SetMaxIdleConns(m.config.MaxIdleConns)
	db.SetConnMaxLifetime(m.config.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(context.Background(), m.config.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("postgres: ping failed: %w", err)
	}

	store := &Store{Store: sqlstore.New(db, sqlstore.Postgres)}
	if err := store.Migrate(pingCtx); err != nil {
		_ = db.Close()
		return err
	}

	m.db = db
	m.store = store
	ctx.RegisterService(scheduler.ServiceStore, store)

	if svc, ok := ctx.Service(metrics.ServiceRegisterer); ok {
		if reg, ok := svc.(prometheus.Registerer); ok {
			if err := reg.Register(collectors.NewDBStatsCollector(db, "postgres")); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					m.logger.Warn("postgres: registering db stats", "error", err)
				}
			}
		}
	}

	m.logger.Info("postgres store provisioned", "max_open_conns", m.config.MaxOpenConns)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}
	m.logger.Info("postgres store stopping")
	return m.db.Close()
}

// Maintain implements scheduler.Maintainer by refreshing planner statistics
// of the scheduler tables.
func (s *Store) Maintain(ctx context.Context) error {
	for _, table := range []string{"jobs", "triggers"} {
		if _, err := s.DB().ExecContext(ctx, "ANALYZE "+table); err != nil {
			return fmt.Errorf("postgres: analyze %s: %w", table, err)
		}
	}
	return nil
}
