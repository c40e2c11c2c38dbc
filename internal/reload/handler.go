package reload

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/flemzord/cronsync/internal/config"
	"github.com/flemzord/cronsync/internal/core"
	"github.com/flemzord/cronsync/internal/reconcile"
	"github.com/flemzord/cronsync/internal/security"
)

// schedulerGrace bounds how long a reload waits for running jobs when it
// stops or restarts the engine.
const schedulerGrace = 30 * time.Second

// Reconciler re-runs reconciliation with a new default group.
type Reconciler interface {
	SetDefaultGroup(group string)
	SetEnabled(enabled bool)
	Reconcile(ctx context.Context) (reconcile.Report, error)
}

// RootSetter receives the reloaded scheduler.packages_to_scan.
type RootSetter interface {
	SetRoots(roots []string)
}

// Scheduler is the engine behind the reconciler.
type Scheduler interface {
	SetLocation(ctx context.Context, loc *time.Location) error
	Stop(ctx context.Context) error
}

// PropertySetter receives the reloaded placeholder properties.
type PropertySetter interface {
	SetProperties(props map[string]string)
}

// HandlerConfig configures a Handler. Only App and Logger are required.
type HandlerConfig struct {
	App *core.App

	// AppContext is the root context whose services modules see on reload.
	AppContext *core.AppContext

	Properties PropertySetter
	Reconciler Reconciler
	Roots      RootSetter
	Scheduler  Scheduler
	Redactor   *security.Redactor
	Audit      *security.AuditLogger
	Logger     *slog.Logger
}

// Handler reloads application configuration, re-runs reconciliation and
// notifies modules.
type Handler struct {
	app        *core.App
	appCtx     *core.AppContext
	properties PropertySetter
	reconciler Reconciler
	roots      RootSetter
	scheduler  Scheduler
	redactor   *security.Redactor
	audit      *security.AuditLogger
	logger     *slog.Logger
}

// NewHandler creates a reload handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCtx := cfg.AppContext
	if appCtx == nil {
		appCtx = core.NewAppContext(logger, "")
	}
	return &Handler{
		app:        cfg.App,
		appCtx:     appCtx,
		properties: cfg.Properties,
		reconciler: cfg.Reconciler,
		roots:      cfg.Roots,
		scheduler:  cfg.Scheduler,
		redactor:   cfg.Redactor,
		audit:      cfg.Audit,
		logger:     logger,
	}
}

// HandleReload loads a fresh config from disk, validates it, and applies it.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.handleReload(ctx, cfg)
}

// HandleReloadFromConfig applies a pre-loaded, already-validated config.
// The caller is responsible for calling config.Validate before this
// method; it will not re-validate.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	return h.handleReload(ctx, cfg)
}

// handleReload swaps the properties first so the pass resolves schedules
// against the new values. A failed pass leaves the previous schedules in
// place; the engine keeps running. Disabling the scheduler stops the engine.
func (h *Handler) handleReload(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	if h.redactor != nil {
		for _, s := range security.LiteralsFromProperties(cfg.Properties) {
			h.redactor.AddLiteral(s)
		}
	}
	if h.properties != nil {
		h.properties.SetProperties(cfg.Properties)
	}
	if h.roots != nil {
		h.roots.SetRoots(cfg.Scheduler.PackagesToScan)
	}

	meta := map[string]string{"properties": strconv.Itoa(len(cfg.Properties))}

	if err := h.applyScheduler(ctx, cfg.Scheduler, meta); err != nil {
		return err
	}

	if h.app != nil {
		if err := h.app.ReloadModules(h.appCtx.WithModuleConfigs(cfg.Modules)); err != nil {
			h.emit("module reload failed", meta)
			return fmt.Errorf("reloading modules: %w", err)
		}
	}

	h.emit("applied", meta)
	h.logger.Info("configuration reloaded successfully")
	return nil
}

// applyScheduler turns scheduling on or off, moves the engine to the new
// time zone and re-runs reconciliation.
func (h *Handler) applyScheduler(ctx context.Context, sc config.SchedulerConfig, meta map[string]string) error {
	enabled := sc.IsEnabled()
	if h.reconciler != nil {
		h.reconciler.SetDefaultGroup(sc.DefaultGroup)
		// Set before stopping so no concurrent pass restarts the engine.
		h.reconciler.SetEnabled(enabled)
	}

	if !enabled {
		meta["scheduler"] = "disabled"
		if h.scheduler == nil {
			return nil
		}
		stopCtx, cancel := context.WithTimeout(ctx, schedulerGrace)
		defer cancel()
		if err := h.scheduler.Stop(stopCtx); err != nil {
			h.emit("scheduler stop failed", meta)
			return fmt.Errorf("stopping scheduler: %w", err)
		}
		h.logger.Info("scheduler disabled by reload, engine stopped")
		return nil
	}

	if h.scheduler != nil {
		loc, err := sc.Location()
		if err != nil {
			return fmt.Errorf("scheduler timezone: %w", err)
		}
		moveCtx, cancel := context.WithTimeout(ctx, schedulerGrace)
		defer cancel()
		if err := h.scheduler.SetLocation(moveCtx, loc); err != nil {
			h.emit("timezone change failed", meta)
			return fmt.Errorf("changing scheduler timezone: %w", err)
		}
	}

	if h.reconciler == nil {
		return nil
	}
	report, err := h.reconciler.Reconcile(ctx)
	if err != nil {
		h.emit("reconcile failed", meta)
		return fmt.Errorf("reconciling: %w", err)
	}
	meta["created"] = strconv.Itoa(len(report.Created))
	meta["rescheduled"] = strconv.Itoa(len(report.Rescheduled))
	meta["deleted"] = strconv.Itoa(len(report.Deleted))
	return nil
}

func (h *Handler) emit(detail string, meta map[string]string) {
	h.audit.Log(security.AuditEvent{
		Type:     security.EventConfigReload,
		Detail:   detail,
		Metadata: meta,
	})
}
