// Package maintenance registers MaintenanceJob, which runs the
// housekeeping of the persistent scheduler store.
//
// Properties:
//
//	maintenance.enabled  schedule the job (default true)
//	maintenance.cron     when to run (default 0 30 3 * * *, daily at 03:30)
//	maintenance.timeout  upper bound of one run (default 5m)
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/scheduler"
)

func init() {
	job.Register(job.Definition{
		Type: "MaintenanceJob",
		Schedule: job.Descriptor{
			Cron:    "${maintenance.cron:0 30 3 * * *}",
			Enabled: "${maintenance.enabled:true}",
		},
		TrackExecutions: true,
		New:             func() job.Job { return &Job{} },
	})
}

// Compile-time interface guards.
var (
	_ job.Job         = (*Job)(nil)
	_ job.Provisioner = (*Job)(nil)
)

// Job calls Maintain on the scheduler store. Stores without housekeeping,
// such as the in-memory store, make it a no-op.
type Job struct {
	store   scheduler.Maintainer
	timeout time.Duration
	logger  *slog.Logger
}

// Provision implements job.Provisioner.
func (j *Job) Provision(env job.Env) error {
	j.logger = env.Logger().With("job", "maintenance")

	raw := env.Resolve("${maintenance.timeout:5m}")
	timeout, err := time.ParseDuration(raw)
	if err != nil || timeout <= 0 {
		return fmt.Errorf("maintenance: invalid maintenance.timeout %q", raw)
	}
	j.timeout = timeout

	if svc, ok := env.Service(scheduler.ServiceStore); ok {
		j.store, _ = svc.(scheduler.Maintainer)
	}
	return nil
}

// Run implements job.Job.
func (j *Job) Run(ctx context.Context, jc *job.Context) error {
	if j.store == nil {
		j.logger.Debug("maintenance: store has no housekeeping")
		return nil
	}
	if prev := jc.Previous; prev != nil && !prev.LastSuccess {
		j.logger.Warn("maintenance: previous run failed",
			"at", prev.LastFireTime,
			"error", prev.LastErrorMessage,
		)
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	if err := j.store.Maintain(ctx); err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}
	j.logger.Info("maintenance: store maintained", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}
