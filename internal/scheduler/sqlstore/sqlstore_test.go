package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/scheduler"

	_ "modernc.org/sqlite" // SQLite driver registration
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s := New(db, SQLite)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestStore_MigrateIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var v int
	if err := s.DB().QueryRow("SELECT MAX(version) FROM schema_version").Scan(&v); err != nil || v != schemaVersion {
		t.Fatalf("schema version = %d, %v", v, err)
	}
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	id := job.Identity{Name: "nightly", Group: "reports"}
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	detail := scheduler.JobDetail{Identity: id, Type: "ReportJob", Durable: true, TrackExecutions: true}
	trig := scheduler.Trigger{Kind: scheduler.KindInterval, Interval: 5 * time.Second, StartAt: start}
	if err := s.CreateJob(ctx, detail, trig); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(ctx, detail, trig); !errors.Is(err, scheduler.ErrJobExists) {
		t.Fatalf("duplicate err = %v, want ErrJobExists", err)
	}

	got, err := s.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Type != "ReportJob" || !got.Durable || !got.TrackExecutions || got.RequestsRecovery || got.Record != nil {
		t.Errorf("GetJob = %+v", got)
	}

	gotTrig, err := s.GetTrigger(ctx, id)
	if err != nil {
		t.Fatalf("GetTrigger: %v", err)
	}
	if gotTrig.Kind != scheduler.KindInterval || gotTrig.Interval != 5*time.Second || !gotTrig.StartAt.Equal(start) {
		t.Errorf("GetTrigger = %+v", gotTrig)
	}

	if err := s.SaveTrigger(ctx, scheduler.Trigger{Identity: id, Kind: scheduler.KindCron, CronExpression: "0 0 * * * ?"}); err != nil {
		t.Fatalf("SaveTrigger: %v", err)
	}
	gotTrig, _ = s.GetTrigger(ctx, id)
	if gotTrig.Kind != scheduler.KindCron || gotTrig.CronExpression != "0 0 * * * ?" || !gotTrig.StartAt.IsZero() {
		t.Errorf("after SaveTrigger = %+v", gotTrig)
	}

	rec := job.ExecutionRecord{
		LastFireTime:       start,
		LastFinishTime:     start.Add(1500 * time.Millisecond),
		LastDurationMillis: 1500,
		LastSuccess:        false,
		LastErrorMessage:   "boom",
		ExecutionID:        "f47ac10b-58cc-4372-a567-0e02b2c3d479",
	}
	if err := s.SaveExecutionRecord(ctx, id, rec); err != nil {
		t.Fatalf("SaveExecutionRecord: %v", err)
	}
	got, _ = s.GetJob(ctx, id)
	if got.Record == nil || got.Record.LastErrorMessage != "boom" || got.Record.LastDurationMillis != 1500 || !got.Record.LastFireTime.Equal(start) {
		t.Errorf("record = %+v", got.Record)
	}

	deleted, err := s.DeleteJob(ctx, id)
	if err != nil || !deleted {
		t.Fatalf("DeleteJob = %v, %v", deleted, err)
	}
	if _, err := s.GetJob(ctx, id); !errors.Is(err, scheduler.ErrJobNotFound) {
		t.Errorf("GetJob after delete err = %v", err)
	}
	if _, err := s.GetTrigger(ctx, id); !errors.Is(err, scheduler.ErrTriggerNotFound) {
		t.Errorf("GetTrigger after delete err = %v", err)
	}
}

func TestStore_MissingJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	id := job.Identity{Name: "x", Group: "y"}

	if err := s.SaveTrigger(ctx, scheduler.Trigger{Identity: id, Kind: scheduler.KindCron, CronExpression: "@daily"}); !errors.Is(err, scheduler.ErrJobNotFound) {
		t.Errorf("SaveTrigger err = %v", err)
	}
	if err := s.SaveExecutionRecord(ctx, id, job.ExecutionRecord{}); !errors.Is(err, scheduler.ErrJobNotFound) {
		t.Errorf("SaveExecutionRecord err = %v", err)
	}
	if deleted, err := s.DeleteJob(ctx, id); err != nil || deleted {
		t.Errorf("DeleteJob = %v, %v", deleted, err)
	}
}

func TestStore_ListJobsSorted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	for _, id := range []job.Identity{{Name: "b", Group: "2"}, {Name: "a", Group: "2"}, {Name: "z", Group: "1"}} {
		if err := s.CreateJob(ctx, scheduler.JobDetail{Identity: id, Type: "T"}, scheduler.Trigger{Kind: scheduler.KindCron, CronExpression: "@hourly"}); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := s.ListJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"1.z", "2.a", "2.b"}
	if len(jobs) != len(want) {
		t.Fatalf("got %d jobs", len(jobs))
	}
	for i, d := range jobs {
		if d.Identity.String() != want[i] {
			t.Errorf("jobs[%d] = %s, want %s", i, d.Identity, want[i])
		}
	}
}

func TestStore_BacksEngine(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	reg := job.NewRegistry()
	if err := reg.Add(job.Definition{Type: "T", New: func() job.Job { return job.Func(func(context.Context, *job.Context) error { return nil }) }}); err != nil {
		t.Fatal(err)
	}
	e := scheduler.NewEngine(scheduler.EngineConfig{Store: s, Registry: reg, Location: time.UTC})
	id := job.Identity{Name: "n", Group: "g"}

	if err := e.CreateDurable(ctx, scheduler.JobDetail{Identity: id, Type: "T", Durable: true}, scheduler.Trigger{Kind: scheduler.KindCron, CronExpression: "@daily"}); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = e.Stop(ctx) }()

	st, err := e.Job(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Scheduled || st.Next.IsZero() {
		t.Errorf("state = %+v", st)
	}
}

func TestDialect_Rebind(t *testing.T) {
	t.Parallel()

	q := "SELECT a FROM t WHERE x = ? AND y = ?"
	if got := SQLite.rebind(q); got != q {
		t.Errorf("sqlite rebind = %q", got)
	}
	if got := Postgres.rebind(q); got != "SELECT a FROM t WHERE x = $1 AND y = $2" {
		t.Errorf("postgres rebind = %q", got)
	}
}
