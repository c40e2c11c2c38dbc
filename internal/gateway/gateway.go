// Package gateway serves the scheduler over HTTP: health, Prometheus
// metrics, the job API and a live stream of executions. It binds to
// loopback by default and follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/cronsync/internal/core"
	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/metrics"
	"github.com/flemzord/cronsync/internal/reconcile"
	"github.com/flemzord/cronsync/internal/scheduler"
	"github.com/flemzord/cronsync/internal/security"
	"github.com/flemzord/cronsync/internal/timed"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)

	_ JobService  = (*scheduler.Engine)(nil)
	_ Reconciler  = (*reconcile.Reconciler)(nil)
	_ EventSource = (*timed.Wrapper)(nil)
)

// JobService is the scheduler surface exposed by the job API.
type JobService interface {
	Jobs(ctx context.Context) ([]scheduler.JobState, error)
	Job(ctx context.Context, id job.Identity) (scheduler.JobState, error)
	RunNow(ctx context.Context, id job.Identity) error
	Running() bool
}

// Reconciler runs or previews reconciliation passes.
type Reconciler interface {
	Reconcile(ctx context.Context) (reconcile.Report, error)
	Plan(ctx context.Context) (reconcile.Report, error)
	State() reconcile.State
}

// EventSource publishes execution events.
type EventSource interface {
	Subscribe(buffer int) (<-chan timed.Event, func())
	Subscribers() int
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	// closing is cancelled on Stop to end hijacked stream connections.
	closing context.Context
	cancel  context.CancelFunc

	// Resolved lazily at Start() via service registry.
	jobs       JobService
	reconciler Reconciler
	events     EventSource
	gatherer   prometheus.Gatherer
	audit      *security.AuditLogger
	limiter    *security.RateLimiter
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: decode config: %w", err)
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.limiter = security.NewRateLimiter(g.config.Auth.RateLimit)

	if svc, ok := ctx.Service(security.ServiceRedactor); ok {
		if r, ok := svc.(*security.Redactor); ok {
			for _, s := range g.config.Auth.secrets() {
				r.AddLiteral(s)
			}
		}
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	if g.config.Auth.BasicUser != "" && g.config.Auth.BasicPass == "" {
		return errors.New("gateway: basic_user requires basic_pass")
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	g.resolveServices()
	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway: no auth configured, job API disabled")
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	go func() {
		g.logger.Info("gateway: listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway: serve error", "error", err)
		}
	}()

	return nil
}

// resolveServices binds optional services; a missing one disables the
// endpoints that need it.
func (g *Gateway) resolveServices() {
	if svc, ok := g.appCtx.Service(scheduler.ServiceEngine); ok {
		g.jobs, _ = svc.(JobService)
	}
	if svc, ok := g.appCtx.Service(reconcile.ServiceName); ok {
		g.reconciler, _ = svc.(Reconciler)
	}
	if svc, ok := g.appCtx.Service(timed.ServiceName); ok {
		g.events, _ = svc.(EventSource)
	}
	if svc, ok := g.appCtx.Service(metrics.ServiceGatherer); ok {
		g.gatherer, _ = svc.(prometheus.Gatherer)
	}
	if svc, ok := g.appCtx.Service(security.ServiceAudit); ok {
		g.audit, _ = svc.(*security.AuditLogger)
	}
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.cancel()

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway: shutting down")
	return g.server.Shutdown(shutdownCtx)
}
