package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/job/jobtest"
	"github.com/flemzord/cronsync/internal/metrics"
	"github.com/flemzord/cronsync/internal/reconcile"
	"github.com/flemzord/cronsync/internal/scheduler"
	"github.com/flemzord/cronsync/internal/security"
	"github.com/flemzord/cronsync/internal/security/securitytest"
	"github.com/flemzord/cronsync/internal/timed"
)

const testToken = "test-token"

var tickID = job.Identity{Name: "Tick", Group: "test"}

type fixture struct {
	gw       *Gateway
	srv      *httptest.Server
	engine   *scheduler.Engine
	rec      *reconcile.Reconciler
	wrapper  *timed.Wrapper
	mock     *jobtest.MockJob
	audit    *securitytest.AuditRecorder
	resolver jobtest.MapResolver
}

// newFixture wires a real engine, reconciler and wrapper behind the gateway
// router. The Tick job runs every hour, so it only fires when run manually.
func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	cfg.defaults()

	f := &fixture{
		mock:     &jobtest.MockJob{},
		resolver: jobtest.MapResolver{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	promReg := prometheus.NewRegistry()
	sink, err := metrics.NewPrometheusSink(promReg, logger)
	if err != nil {
		t.Fatal(err)
	}

	reg := job.NewRegistry()
	if err := reg.Add(job.Definition{Type: "Tick", New: func() job.Job { return f.mock }}); err != nil {
		t.Fatal(err)
	}

	// The wrapper writes records through the engine, which runs jobs
	// through the wrapper.
	f.engine = scheduler.NewEngine(scheduler.EngineConfig{
		Store:    scheduler.NewMemoryStore(),
		Registry: reg,
		Executor: func(ctx context.Context, j job.Job, jc *job.Context) {
			f.wrapper.Execute(ctx, j, jc)
		},
		Location: time.UTC,
		Logger:   logger,
	})
	f.wrapper = timed.New(timed.Config{
		Metrics: metrics.NewRegistry(sink),
		Records: f.engine,
		Logger:  logger,
	})

	f.rec = reconcile.New(reconcile.Config{
		Discovery: &jobtest.StaticDiscovery{Candidates: []job.Candidate{{
			Type:            "Tick",
			Package:         "example.com/jobs",
			Descriptor:      job.Descriptor{Cron: "${tick.cron:0 0 * * * *}"},
			TrackExecutions: true,
		}}},
		Backend:      f.engine,
		Resolver:     f.resolver,
		DefaultGroup: "test",
		Logger:       logger,
	})

	var auditLogger *security.AuditLogger
	auditLogger, f.audit = securitytest.NewAuditLogger()

	f.gw = &Gateway{
		config:     cfg,
		logger:     logger,
		startedAt:  time.Now(),
		jobs:       f.engine,
		reconciler: f.rec,
		events:     f.wrapper,
		gatherer:   promReg,
		audit:      auditLogger,
		limiter:    security.NewRateLimiter(cfg.Auth.RateLimit),
	}
	f.srv = httptest.NewServer(f.gw.buildRouter())

	t.Cleanup(func() {
		f.gw.cancel()
		f.srv.Close()
		_ = f.engine.Stop(context.Background())
	})
	return f
}

func authConfig() Config {
	return Config{Auth: AuthConfig{BearerToken: testToken}}
}

func (f *fixture) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, f.srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
