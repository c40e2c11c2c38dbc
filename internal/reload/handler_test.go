package reload

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/cronsync/internal/config"
	"github.com/flemzord/cronsync/internal/core"
	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/reconcile"
	"github.com/flemzord/cronsync/internal/security"
	"github.com/flemzord/cronsync/internal/security/securitytest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeReconciler records the default group and the properties it saw.
type fakeReconciler struct {
	mu       sync.Mutex
	props    *fakeProperties
	group    string
	disabled bool
	passes   int
	seen     map[string]string
	err      error
}

func (f *fakeReconciler) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled = !enabled
}

func (f *fakeReconciler) SetDefaultGroup(group string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.group = group
}

func (f *fakeReconciler) Reconcile(context.Context) (reconcile.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passes++
	if f.props != nil {
		f.seen = f.props.get()
	}
	if f.err != nil {
		return reconcile.Report{}, f.err
	}
	return reconcile.Report{Created: []job.Identity{{Name: "Tick", Group: f.group}}}, nil
}

// fakeScheduler records engine stops and time zone changes.
type fakeScheduler struct {
	mu    sync.Mutex
	stops int
	loc   *time.Location
}

func (f *fakeScheduler) SetLocation(_ context.Context, loc *time.Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loc = loc
	return nil
}

func (f *fakeScheduler) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

type fakeRoots struct {
	roots []string
}

func (f *fakeRoots) SetRoots(roots []string) { f.roots = roots }

type fakeProperties struct {
	mu    sync.Mutex
	props map[string]string
}

func (f *fakeProperties) SetProperties(props map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props = props
}

func (f *fakeProperties) get() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.props
}

// reloadModule counts Reload calls.
type reloadModule struct {
	calls int
}

func (m *reloadModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "test.reload", New: func() core.Module { return &reloadModule{} }}
}

func (m *reloadModule) Reload(*core.AppContext) error {
	m.calls++
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cronsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	return path
}

func TestHandler_HandleReload_FileNotFound(t *testing.T) {
	t.Parallel()
	h := NewHandler(HandlerConfig{Logger: testLogger()})

	if err := h.HandleReload(context.Background(), "/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestHandler_HandleReload_InvalidConfig(t *testing.T) {
	t.Parallel()
	rec := &fakeReconciler{}
	h := NewHandler(HandlerConfig{Reconciler: rec, Logger: testLogger()})

	path := writeFile(t, "version: \"1\"\nmodules:\n  fake.mod: {}\n")
	err := h.HandleReload(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "validating") {
		t.Fatalf("error = %v, want validation error", err)
	}
	if rec.passes != 0 {
		t.Error("an invalid config must not reach the reconciler")
	}
}

func TestHandler_HandleReload_Applies(t *testing.T) {
	t.Parallel()
	logger := testLogger()
	props := &fakeProperties{}
	rec := &fakeReconciler{props: props}
	redactor := security.NewRedactor()
	audit, events := securitytest.NewAuditLogger()

	appCtx := core.NewAppContext(logger, t.TempDir())
	app := core.NewApp(appCtx)
	mod := &reloadModule{}
	app.AppendModule("test.reload", mod)

	h := NewHandler(HandlerConfig{
		App:        app,
		AppContext: appCtx,
		Properties: props,
		Reconciler: rec,
		Redactor:   redactor,
		Audit:      audit,
		Logger:     logger,
	})

	path := writeFile(t, `
version: "1"
scheduler:
  default_group: ops
properties:
  tick.cron: "0 */5 * * * *"
  heartbeat.secret: hunter22
`)
	if err := h.HandleReload(context.Background(), path); err != nil {
		t.Fatalf("HandleReload: %v", err)
	}

	if rec.group != "ops" || rec.passes != 1 {
		t.Errorf("reconciler group=%q passes=%d", rec.group, rec.passes)
	}
	if rec.seen["tick.cron"] != "0 */5 * * * *" {
		t.Errorf("reconcile ran before properties were swapped: %v", rec.seen)
	}
	if mod.calls != 1 {
		t.Errorf("Reload calls = %d, want 1", mod.calls)
	}
	if got := redactor.Redact("secret hunter22"); strings.Contains(got, "hunter22") {
		t.Errorf("secret property not redacted: %q", got)
	}

	evs := events.Events()
	if len(evs) != 1 || evs[0].Type != security.EventConfigReload || evs[0].Detail != "applied" {
		t.Fatalf("audit events = %+v", evs)
	}
	if evs[0].Metadata["created"] != "1" || evs[0].Metadata["properties"] != "2" {
		t.Errorf("metadata = %v", evs[0].Metadata)
	}
}

func TestHandler_ReconcileFailure(t *testing.T) {
	t.Parallel()
	rec := &fakeReconciler{err: errors.New("reconcile: job a.b: bad cron")}
	audit, events := securitytest.NewAuditLogger()
	h := NewHandler(HandlerConfig{Reconciler: rec, Audit: audit, Logger: testLogger()})

	err := h.HandleReloadFromConfig(context.Background(), &config.Config{Version: "1"})
	if err == nil || !strings.Contains(err.Error(), "bad cron") {
		t.Fatalf("error = %v", err)
	}
	if events.Count(security.EventConfigReload) != 1 || events.Events()[0].Detail != "reconcile failed" {
		t.Errorf("audit events = %+v", events.Events())
	}
}

func TestHandler_SchedulerDisabledStopsEngine(t *testing.T) {
	t.Parallel()
	rec := &fakeReconciler{}
	sched := &fakeScheduler{}
	audit, events := securitytest.NewAuditLogger()
	h := NewHandler(HandlerConfig{Reconciler: rec, Scheduler: sched, Audit: audit, Logger: testLogger()})

	off := false
	cfg := &config.Config{Version: "1", Scheduler: config.SchedulerConfig{Enabled: &off}}
	if err := h.HandleReloadFromConfig(context.Background(), cfg); err != nil {
		t.Fatalf("HandleReloadFromConfig: %v", err)
	}
	if rec.passes != 0 {
		t.Errorf("passes = %d, want 0", rec.passes)
	}
	if !rec.disabled {
		t.Error("reconciler left enabled")
	}
	if sched.stops != 1 {
		t.Errorf("engine stops = %d, want 1", sched.stops)
	}
	if evs := events.Events(); len(evs) != 1 || evs[0].Metadata["scheduler"] != "disabled" {
		t.Errorf("audit events = %+v", evs)
	}

	on := true
	cfg.Scheduler.Enabled = &on
	if err := h.HandleReloadFromConfig(context.Background(), cfg); err != nil {
		t.Fatalf("re-enable: %v", err)
	}
	if rec.disabled || rec.passes != 1 || sched.stops != 1 {
		t.Errorf("after re-enable disabled=%v passes=%d stops=%d", rec.disabled, rec.passes, sched.stops)
	}
}

func TestHandler_AppliesRootsAndTimezone(t *testing.T) {
	t.Parallel()
	rec := &fakeReconciler{}
	sched := &fakeScheduler{}
	roots := &fakeRoots{}
	h := NewHandler(HandlerConfig{Reconciler: rec, Scheduler: sched, Roots: roots, Logger: testLogger()})

	cfg := &config.Config{Version: "1", Scheduler: config.SchedulerConfig{
		PackagesToScan: []string{"example.com/app/reports"},
		Timezone:       "UTC",
	}}
	if err := h.HandleReloadFromConfig(context.Background(), cfg); err != nil {
		t.Fatalf("HandleReloadFromConfig: %v", err)
	}
	if len(roots.roots) != 1 || roots.roots[0] != "example.com/app/reports" {
		t.Errorf("roots = %v", roots.roots)
	}
	if sched.loc != time.UTC {
		t.Errorf("location = %v, want UTC", sched.loc)
	}
	if rec.passes != 1 {
		t.Errorf("passes = %d, want 1", rec.passes)
	}
}

func TestHandler_HandleReloadFromConfig_CancelledContext(t *testing.T) {
	t.Parallel()
	h := NewHandler(HandlerConfig{Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.HandleReloadFromConfig(ctx, &config.Config{Version: "1"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
