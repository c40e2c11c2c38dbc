// Package trigger builds scheduler triggers from validated specs and applies
// them idempotently to a scheduler backend.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/schedule"
	"github.com/flemzord/cronsync/internal/scheduler"
)

// Action is what Ensure did to the backend.
type Action string

const (
	Created     Action = "created"
	Rescheduled Action = "rescheduled"
)

// Backend is the part of the scheduler backend Ensure needs.
type Backend interface {
	Exists(ctx context.Context, id job.Identity) (bool, error)
	CreateDurable(ctx context.Context, detail scheduler.JobDetail, trigger scheduler.Trigger) error
	Reschedule(ctx context.Context, trigger scheduler.Trigger) error
}

// Build converts a spec into a trigger. Interval triggers start at
// now + InitialDelay. Disabled specs have no trigger.
func Build(id job.Identity, spec schedule.Spec, now time.Time) (scheduler.Trigger, error) {
	switch s := spec.(type) {
	case schedule.Cron:
		return scheduler.Trigger{
			Identity:       id,
			Kind:           scheduler.KindCron,
			CronExpression: s.Expression,
		}, nil
	case schedule.FixedDelay:
		return scheduler.Trigger{
			Identity: id,
			Kind:     scheduler.KindInterval,
			Interval: s.Period,
			StartAt:  now.Add(s.InitialDelay),
		}, nil
	case schedule.Disabled:
		return scheduler.Trigger{}, fmt.Errorf("trigger: job %s is disabled: %s", id, s.Reason)
	default:
		return scheduler.Trigger{}, fmt.Errorf("trigger: job %s: unsupported spec %T", id, spec)
	}
}

// NewJobDetail returns the durable job definition stored for a declaration.
// Recovery of jobs interrupted by a crash is never requested.
func NewJobDetail(decl schedule.Declaration) scheduler.JobDetail {
	return scheduler.JobDetail{
		Identity:         decl.Identity,
		Type:             decl.Type,
		Durable:          true,
		RequestsRecovery: false,
		TrackExecutions:  decl.TrackExecutions,
	}
}

// Ensure creates the job with its trigger when it does not exist, and
// otherwise replaces only its trigger, leaving the stored job and its
// execution record intact.
func Ensure(ctx context.Context, b Backend, detail scheduler.JobDetail, trigger scheduler.Trigger) (Action, error) {
	trigger.Identity = detail.Identity

	exists, err := b.Exists(ctx, detail.Identity)
	if err != nil {
		return "", fmt.Errorf("trigger: %w", err)
	}
	if exists {
		if err := b.Reschedule(ctx, trigger); err != nil {
			return "", fmt.Errorf("trigger: reschedule %s: %w", detail.Identity, err)
		}
		return Rescheduled, nil
	}
	if err := b.CreateDurable(ctx, detail, trigger); err != nil {
		return "", fmt.Errorf("trigger: create %s: %w", detail.Identity, err)
	}
	return Created, nil
}
