package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flemzord/cronsync/internal/config"
	"github.com/flemzord/cronsync/internal/core"
	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/metrics"
	"github.com/flemzord/cronsync/internal/placeholder"
	"github.com/flemzord/cronsync/internal/reconcile"
	"github.com/flemzord/cronsync/internal/scheduler"
	"github.com/flemzord/cronsync/internal/security"
	"github.com/flemzord/cronsync/internal/timed"
)

// WireParams configures Wire.
type WireParams struct {
	// DataDir is the root of persistent module data.
	DataDir string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level

	// LogOutput defaults to os.Stderr.
	LogOutput io.Writer

	// AuditOutput receives audit events as JSONL. Optional.
	AuditOutput io.Writer

	// Registry resolves job types. Defaults to job.DefaultRegistry.
	Registry *job.Registry
}

// Runtime is a wired application: modules loaded and provisioned, the
// scheduler built but not started.
type Runtime struct {
	App        *core.App
	Context    *core.AppContext
	Engine     *scheduler.Engine
	Catalog    *job.Catalog
	Reconciler *reconcile.Reconciler
	Wrapper    *timed.Wrapper
	Resolver   *placeholder.Resolver
	Prometheus *prometheus.Registry
	Redactor   *security.Redactor
	Audit      *security.AuditLogger
	Logger     *slog.Logger
}

// Wire builds the application for cfg. The config must already be
// validated. The scheduler is appended to the module lifecycle: App.Start
// reconciles and starts it after every configured module, App.Stop stops it
// before them.
func Wire(cfg *config.Config, params WireParams) (*Runtime, error) {
	redactor := security.NewRedactor()
	for _, s := range security.LiteralsFromProperties(cfg.Properties) {
		redactor.AddLiteral(s)
	}

	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	inner := slog.NewTextHandler(out, &slog.HandlerOptions{Level: params.LogLevel})
	logger := slog.New(security.NewRedactingHandler(inner, redactor))

	audit := security.NewAuditLogger(security.AuditLoggerConfig{
		Writer:   params.AuditOutput,
		Redactor: redactor,
	})

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sink, err := metrics.NewPrometheusSink(promReg, logger.With("component", "metrics"))
	if err != nil {
		return nil, err
	}

	resolver := placeholder.New(cfg.Properties)

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, fmt.Errorf("app: scheduler timezone: %w", err)
	}

	appCtx := core.NewAppContext(logger, params.DataDir)
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService(security.ServiceRedactor, redactor)
	appCtx.RegisterService(security.ServiceAudit, audit)
	appCtx.RegisterService(metrics.ServiceGatherer, promReg)
	appCtx.RegisterService(metrics.ServiceRegisterer, prometheus.Registerer(promReg))

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return nil, err
	}

	var store scheduler.Store
	if svc, ok := appCtx.Service(scheduler.ServiceStore); ok {
		s, ok := svc.(scheduler.Store)
		if !ok {
			application.Unload()
			return nil, fmt.Errorf("app: service %s is %T, not a scheduler store", scheduler.ServiceStore, svc)
		}
		store = s
	}

	registry := params.Registry
	if registry == nil {
		registry = job.DefaultRegistry
	}

	var wrapper *timed.Wrapper
	engine := scheduler.NewEngine(scheduler.EngineConfig{
		Store:    store,
		Registry: registry,
		Executor: func(ctx context.Context, j job.Job, jc *job.Context) {
			wrapper.Execute(ctx, j, jc)
		},
		Env:      &jobEnv{ctx: appCtx, resolver: resolver},
		Location: loc,
		Logger:   logger.With("component", "scheduler"),
	})
	wrapper = timed.New(timed.Config{
		Metrics: metrics.NewRegistry(sink),
		Records: engine,
		Logger:  logger.With("component", "timed"),
	})

	catalog := &job.Catalog{
		Registry: registry,
		Roots:    cfg.Scheduler.PackagesToScan,
	}
	reconciler := reconcile.New(reconcile.Config{
		Discovery:    catalog,
		Backend:      engine,
		Resolver:     resolver,
		DefaultGroup: cfg.Scheduler.DefaultGroup,
		Disabled:     !cfg.Scheduler.IsEnabled(),
		Logger:       logger.With("component", "reconcile"),
	})

	appCtx.RegisterService(scheduler.ServiceStore, engine.Store())
	appCtx.RegisterService(scheduler.ServiceEngine, engine)
	appCtx.RegisterService(reconcile.ServiceName, reconciler)
	appCtx.RegisterService(timed.ServiceName, wrapper)

	application.AppendModule("scheduler", &schedulerModule{
		reconciler: reconciler,
		engine:     engine,
		audit:      audit,
		logger:     logger.With("component", "scheduler"),
	})

	return &Runtime{
		App:        application,
		Context:    appCtx,
		Engine:     engine,
		Catalog:    catalog,
		Reconciler: reconciler,
		Wrapper:    wrapper,
		Resolver:   resolver,
		Prometheus: promReg,
		Redactor:   redactor,
		Audit:      audit,
		Logger:     logger,
	}, nil
}

// schedulerModule runs the initial reconciliation pass, which starts the
// engine, as part of the App lifecycle.
type schedulerModule struct {
	reconciler *reconcile.Reconciler
	engine     *scheduler.Engine
	audit      *security.AuditLogger
	logger     *slog.Logger
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "scheduler"}
}

func (m *schedulerModule) Start() error {
	report, err := m.reconciler.Reconcile(context.Background())
	if errors.Is(err, reconcile.ErrDisabled) {
		m.logger.Info("scheduler disabled, jobs are not reconciled")
		return nil
	}
	if err != nil {
		return err
	}
	m.audit.Log(security.AuditEvent{
		Type:   security.EventReconcile,
		Detail: "startup",
		Metadata: map[string]string{
			"created":     strconv.Itoa(len(report.Created)),
			"rescheduled": strconv.Itoa(len(report.Rescheduled)),
			"deleted":     strconv.Itoa(len(report.Deleted)),
		},
	})
	return nil
}

func (m *schedulerModule) Stop(ctx context.Context) error {
	return m.engine.Stop(ctx)
}

// jobEnv exposes the application context to jobs.
type jobEnv struct {
	ctx      *core.AppContext
	resolver *placeholder.Resolver
}

func (e *jobEnv) Logger() *slog.Logger { return e.ctx.Logger }

func (e *jobEnv) Service(name string) (any, bool) { return e.ctx.Service(name) }

func (e *jobEnv) Resolve(raw string) string { return e.resolver.Resolve(raw) }
