// Package scheduler persists job definitions with their triggers and fires
// them on a robfig/cron dispatch loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/schedule"
)

// Service names under which scheduler components are published in the
// application context.
const (
	ServiceEngine = "scheduler.engine"
	ServiceStore  = "scheduler.store"
)

var (
	// ErrJobNotFound is returned when no job is stored under an identity.
	ErrJobNotFound = errors.New("scheduler: job not found")

	// ErrTriggerNotFound is returned when a stored job has no trigger.
	ErrTriggerNotFound = errors.New("scheduler: trigger not found")

	// ErrJobExists is returned when creating a job whose identity is taken.
	ErrJobExists = errors.New("scheduler: job already exists")

	// ErrUnknownType is returned when a job type is not in the job registry.
	ErrUnknownType = errors.New("scheduler: unknown job type")

	// ErrNotRunning is returned by operations that need a started engine.
	ErrNotRunning = errors.New("scheduler: engine not running")

	// ErrJobRunning is returned when a manual run overlaps a running execution.
	ErrJobRunning = errors.New("scheduler: job already running")
)

// TriggerKind distinguishes cron triggers from fixed-interval triggers.
type TriggerKind string

const (
	KindCron     TriggerKind = "cron"
	KindInterval TriggerKind = "interval"
)

// Trigger describes when a job fires.
type Trigger struct {
	Identity       job.Identity  `json:"identity"`
	Kind           TriggerKind   `json:"kind"`
	CronExpression string        `json:"cron_expression,omitempty"`
	Interval       time.Duration `json:"interval,omitempty"`
	StartAt        time.Time     `json:"start_at"`
}

// Schedule converts the trigger into a robfig schedule.
func (t Trigger) Schedule() (cron.Schedule, error) {
	switch t.Kind {
	case KindCron:
		s, err := schedule.ParseCron(t.CronExpression)
		if err != nil {
			return nil, fmt.Errorf("scheduler: trigger %s: %w", t.Identity, err)
		}
		return s, nil
	case KindInterval:
		if t.Interval <= 0 {
			return nil, fmt.Errorf("scheduler: trigger %s: interval must be positive", t.Identity)
		}
		return newIntervalSchedule(t.StartAt, t.Interval), nil
	default:
		return nil, fmt.Errorf("scheduler: trigger %s: unknown kind %q", t.Identity, t.Kind)
	}
}

// JobDetail is the durable definition of a job in the store.
type JobDetail struct {
	Identity         job.Identity         `json:"identity"`
	Type             string               `json:"type"`
	Durable          bool                 `json:"durable"`
	RequestsRecovery bool                 `json:"requests_recovery"`
	TrackExecutions  bool                 `json:"track_executions"`
	Record           *job.ExecutionRecord `json:"record,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// JobState is a point-in-time view of a stored job and its live entry.
type JobState struct {
	Detail  JobDetail `json:"detail"`
	Trigger *Trigger  `json:"trigger,omitempty"`

	// Scheduled is true when the job has a live entry in the dispatch loop.
	Scheduled bool      `json:"scheduled"`
	Running   bool      `json:"running"`
	Next      time.Time `json:"next,omitempty"`
	Prev      time.Time `json:"prev,omitempty"`
}

// Store persists job details and their triggers. Implementations must be
// safe for concurrent use.
type Store interface {
	// ListJobs returns every stored job, sorted by identity.
	ListJobs(ctx context.Context) ([]JobDetail, error)

	// GetJob returns ErrJobNotFound when the identity is unknown.
	GetJob(ctx context.Context, id job.Identity) (JobDetail, error)

	// CreateJob stores a job together with its trigger. It returns
	// ErrJobExists when the identity is taken.
	CreateJob(ctx context.Context, detail JobDetail, trigger Trigger) error

	// SaveTrigger replaces the trigger of an existing job.
	SaveTrigger(ctx context.Context, trigger Trigger) error

	// GetTrigger returns ErrTriggerNotFound when the job has no trigger.
	GetTrigger(ctx context.Context, id job.Identity) (Trigger, error)

	// DeleteJob removes a job and its trigger. It reports whether the job existed.
	DeleteJob(ctx context.Context, id job.Identity) (bool, error)

	// SaveExecutionRecord overwrites the execution record of an existing job.
	SaveExecutionRecord(ctx context.Context, id job.Identity, rec job.ExecutionRecord) error
}

// Maintainer is implemented by stores with periodic housekeeping, such as
// refreshing planner statistics.
type Maintainer interface {
	Maintain(ctx context.Context) error
}
