// Package job defines schedulable jobs, their declared scheduling intent and
// the explicit registration used to discover them.
package job

import (
	"context"
	"log/slog"
	"time"
)

// Identity uniquely identifies a schedulable unit within the scheduler backend.
type Identity struct {
	Name  string `json:"name"`
	Group string `json:"group"`
}

// String renders the identity as group.name.
func (id Identity) String() string {
	return id.Group + "." + id.Name
}

// Less orders identities by group, then name.
func (id Identity) Less(other Identity) bool {
	if id.Group != other.Group {
		return id.Group < other.Group
	}
	return id.Name < other.Name
}

// Job is the business logic fired by the scheduler. A single instance serves
// every fire of its registration, so Run must be safe for concurrent use when
// fires can overlap.
type Job interface {
	Run(ctx context.Context, jc *Context) error
}

// Func adapts a plain function to Job.
type Func func(ctx context.Context, jc *Context) error

// Run implements Job.
func (f Func) Run(ctx context.Context, jc *Context) error { return f(ctx, jc) }

// Context describes a single fire of a job.
type Context struct {
	Identity Identity

	// Type is the registered job type.
	Type string

	// FireTime is when the dispatcher fired the job.
	FireTime time.Time

	// ScheduledFireTime is the trigger time the fire was planned for. Zero for
	// manual runs.
	ScheduledFireTime time.Time

	// Manual is true when the run was requested outside the trigger.
	Manual bool

	// TrackExecutions is true when an ExecutionRecord is written after the run.
	TrackExecutions bool

	// Previous is the last persisted execution record, if the job tracks executions.
	Previous *ExecutionRecord
}

// ExecutionRecord is the last-run metadata stored on a tracked job.
// It is overwritten on every execution, never accumulated.
type ExecutionRecord struct {
	LastFireTime       time.Time `json:"last_fire_time"`
	LastFinishTime     time.Time `json:"last_finish_time"`
	LastDurationMillis int64     `json:"last_duration_ms"`
	LastSuccess        bool      `json:"last_success"`
	LastErrorMessage   string    `json:"last_error_message"`
	ExecutionID        string    `json:"execution_id"`
}

// Env exposes application resources to jobs during provisioning.
type Env interface {
	Logger() *slog.Logger
	Service(name string) (any, bool)
	Resolve(raw string) string
}

// Provisioner is implemented by jobs that need setup before their first fire.
type Provisioner interface {
	Provision(env Env) error
}
