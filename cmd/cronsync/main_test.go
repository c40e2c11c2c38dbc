package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/cronsync/internal/config"
	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/reconcile"
	"github.com/flemzord/cronsync/internal/schedule"
	"github.com/flemzord/cronsync/internal/scheduler"
	"github.com/flemzord/cronsync/pkg/app"
)

func TestRenderConfig_LoadsAndValidates(t *testing.T) {
	t.Parallel()

	data, err := renderConfig(initAnswers{
		Store:        storeSQLite,
		DefaultGroup: "ops",
		Timezone:     "Europe/Paris",
		Gateway:      true,
		GatewayBind:  "127.0.0.1:9090",
		Heartbeat:    true,
		HeartbeatURL: "https://hc.example.com/ping",
	})
	if err != nil {
		t.Fatalf("renderConfig: %v", err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, data)
	}
	if err := config.Validate(&cfg); err != nil {
		t.Fatalf("Validate: %v\n%s", err, data)
	}
	if cfg.Scheduler.DefaultGroup != "ops" || cfg.Scheduler.Timezone != "Europe/Paris" {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Properties["heartbeat.url"] != "https://hc.example.com/ping" {
		t.Errorf("properties = %v", cfg.Properties)
	}
	if got := config.Resolve(&cfg); !slices.Equal(got, []string{"store.sqlite", "gateway.http"}) {
		t.Errorf("modules = %v", got)
	}
}

func TestRenderConfig_Stores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		store   string
		want    string
		wantErr bool
	}{
		{store: storeSQLite, want: "store.sqlite"},
		{store: storePostgres, want: "${CRONSYNC_POSTGRES_DSN}"},
		{store: storeMemory},
		{store: "redis", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.store, func(t *testing.T) {
			t.Parallel()
			data, err := renderConfig(initAnswers{Store: tt.store})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.want == "" {
				if strings.Contains(string(data), "modules:") {
					t.Errorf("memory store should not configure modules:\n%s", data)
				}
				return
			}
			if !strings.Contains(string(data), tt.want) {
				t.Errorf("missing %q in:\n%s", tt.want, data)
			}
		})
	}
}

func TestValidateHTTPURL(t *testing.T) {
	t.Parallel()

	for in, ok := range map[string]bool{
		"https://example.com/ping": true,
		"http://localhost:8080":    true,
		"ftp://example.com":        false,
		"example.com":              false,
		"":                         false,
	} {
		if err := validateHTTPURL(in); (err == nil) != ok {
			t.Errorf("validateHTTPURL(%q) = %v", in, err)
		}
	}
}

func TestServiceArguments(t *testing.T) {
	t.Parallel()

	got := serviceArguments(app.RunParams{
		ConfigPath: "/etc/cronsync/cronsync.yaml",
		DataDir:    "/var/lib/cronsync",
		LogLevel:   slog.LevelDebug,
	})
	want := []string{
		"--config", "/etc/cronsync/cronsync.yaml",
		"--data-dir", "/var/lib/cronsync",
		"--debug",
		"service", "run",
	}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPrintPlan(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printPlan(&buf, reconcile.Report{
		Created: []job.Identity{{Name: "a", Group: "g"}},
		Deleted: []job.Identity{{Name: "old", Group: "g"}},
	})
	out := buf.String()
	for _, want := range []string{"Create:", "+ g.a", "Delete:", "- g.old"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Reschedule:") {
		t.Errorf("empty section printed:\n%s", out)
	}

	buf.Reset()
	printPlan(&buf, reconcile.Report{})
	if !strings.Contains(buf.String(), "No jobs declared.") {
		t.Errorf("got %q", buf.String())
	}
}

func TestPrintDeclarations(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printDeclarations(&buf, []schedule.Declaration{{
		Identity: job.Identity{Name: "report", Group: "ops"},
		Type:     "ReportJob",
		Spec:     schedule.Cron{Expression: "0 0 6 * * *"},
	}})
	out := buf.String()
	if !strings.Contains(out, "GROUP") || !strings.Contains(out, "cron(0 0 6 * * *)") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

type fakeStates struct {
	states []scheduler.JobState
}

func (f *fakeStates) Jobs(context.Context) ([]scheduler.JobState, error) { return f.states, nil }

func (f *fakeStates) Job(_ context.Context, id job.Identity) (scheduler.JobState, error) {
	for _, st := range f.states {
		if st.Detail.Identity == id {
			return st, nil
		}
	}
	return scheduler.JobState{}, scheduler.ErrJobNotFound
}

type fakePlanner struct {
	decls  []schedule.Declaration
	report reconcile.Report
}

func (f *fakePlanner) Plan(context.Context) (reconcile.Report, error) { return f.report, nil }
func (f *fakePlanner) Declarations() ([]schedule.Declaration, error) { return f.decls, nil }

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("content is %T, want text", res.Content[0])
	}
	return text.Text
}

func TestMCPTools(t *testing.T) {
	t.Parallel()

	report := job.Identity{Name: "report", Group: "ops"}
	finished := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tools := &mcpTools{
		states: &fakeStates{states: []scheduler.JobState{{
			Detail: scheduler.JobDetail{
				Identity: report,
				Type:     "ReportJob",
				Record:   &job.ExecutionRecord{LastFinishTime: finished, LastSuccess: true},
			},
		}}},
		planner: &fakePlanner{
			decls: []schedule.Declaration{
				{Identity: report, Type: "ReportJob", Spec: schedule.Cron{Expression: "0 0 6 * * *"}},
				{Identity: job.Identity{Name: "new", Group: "ops"}, Type: "NewJob", Spec: schedule.FixedDelay{Period: time.Minute}},
			},
			report: reconcile.Report{Created: []job.Identity{{Name: "new", Group: "ops"}}},
		},
	}
	ctx := context.Background()

	res, err := tools.listJobs(ctx, mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("list_jobs: %v", err)
	}
	var summaries []jobSummary
	if err := json.Unmarshal([]byte(resultText(t, res)), &summaries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(summaries) != 2 || !summaries[0].Stored || summaries[0].LastRun == nil || summaries[1].Stored {
		t.Errorf("summaries = %+v", summaries)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = "get_job"
	req.Params.Arguments = map[string]any{"group": "ops", "name": "missing"}
	res, err = tools.getJob(ctx, req)
	if err != nil {
		t.Fatalf("get_job: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "not found") {
		t.Errorf("missing job result = %+v", res)
	}

	req.Params.Arguments = map[string]any{"group": "ops"}
	if res, _ = tools.getJob(ctx, req); !res.IsError {
		t.Error("get_job without name should fail")
	}

	res, err = tools.plan(ctx, mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !strings.Contains(resultText(t, res), `"name": "new"`) {
		t.Errorf("plan = %s", resultText(t, res))
	}
}

func TestStoreOptions(t *testing.T) {
	t.Parallel()

	var values []string
	for _, opt := range storeOptions() {
		values = append(values, opt.Value)
	}
	want := []string{storePostgres, storeSQLite, storeMemory}
	if !slices.Equal(values, want) {
		t.Errorf("store options = %v, want %v", values, want)
	}
}
