package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flemzord/cronsync/internal/job"
)

func TestMemoryStore_CRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	id := job.Identity{Name: "n", Group: "g"}
	detail := JobDetail{Identity: id, Type: "T", Durable: true}
	trig := Trigger{Identity: id, Kind: KindCron, CronExpression: "@hourly"}

	if err := s.CreateJob(ctx, detail, trig); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(ctx, detail, trig); !errors.Is(err, ErrJobExists) {
		t.Fatalf("duplicate CreateJob err = %v, want ErrJobExists", err)
	}

	got, err := s.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Type != "T" || got.CreatedAt.IsZero() {
		t.Errorf("GetJob = %+v", got)
	}

	trig.CronExpression = "@daily"
	if err := s.SaveTrigger(ctx, trig); err != nil {
		t.Fatalf("SaveTrigger: %v", err)
	}
	gotTrig, err := s.GetTrigger(ctx, id)
	if err != nil || gotTrig.CronExpression != "@daily" {
		t.Fatalf("GetTrigger = %+v, %v", gotTrig, err)
	}

	rec := job.ExecutionRecord{LastSuccess: true, LastDurationMillis: 12}
	if err := s.SaveExecutionRecord(ctx, id, rec); err != nil {
		t.Fatalf("SaveExecutionRecord: %v", err)
	}
	got, _ = s.GetJob(ctx, id)
	if got.Record == nil || got.Record.LastDurationMillis != 12 {
		t.Fatalf("record = %+v", got.Record)
	}
	got.Record.LastDurationMillis = 99
	again, _ := s.GetJob(ctx, id)
	if again.Record.LastDurationMillis != 12 {
		t.Error("GetJob must return a copy of the record")
	}

	deleted, err := s.DeleteJob(ctx, id)
	if err != nil || !deleted {
		t.Fatalf("DeleteJob = %v, %v", deleted, err)
	}
	if _, err := s.GetJob(ctx, id); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetJob after delete err = %v", err)
	}
	if _, err := s.GetTrigger(ctx, id); !errors.Is(err, ErrTriggerNotFound) {
		t.Errorf("GetTrigger after delete err = %v", err)
	}
	deleted, _ = s.DeleteJob(ctx, id)
	if deleted {
		t.Error("second delete should report false")
	}
}

func TestMemoryStore_MissingJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	id := job.Identity{Name: "x", Group: "y"}

	if err := s.SaveTrigger(ctx, Trigger{Identity: id, Kind: KindInterval, Interval: time.Second}); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("SaveTrigger err = %v", err)
	}
	if err := s.SaveExecutionRecord(ctx, id, job.ExecutionRecord{}); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("SaveExecutionRecord err = %v", err)
	}
}

func TestMemoryStore_ListSorted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []job.Identity{{Name: "b", Group: "2"}, {Name: "a", Group: "2"}, {Name: "z", Group: "1"}} {
		if err := s.CreateJob(ctx, JobDetail{Identity: id, Type: "T"}, Trigger{Kind: KindCron, CronExpression: "@hourly"}); err != nil {
			t.Fatal(err)
		}
	}
	jobs, err := s.ListJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, d := range jobs {
		got = append(got, d.Identity.String())
	}
	want := []string{"1.z", "2.a", "2.b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
