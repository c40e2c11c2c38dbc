// Package reconcile synchronizes the scheduler backend with the declared
// job set: it creates new jobs, reschedules existing ones and deletes jobs
// that are no longer declared.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/schedule"
	"github.com/flemzord/cronsync/internal/scheduler"
	"github.com/flemzord/cronsync/internal/trigger"
)

// State is the phase of a reconciliation pass.
type State int32

const (
	Idle State = iota
	Scanning
	Diffing
	Mutating
	Started
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Diffing:
		return "diffing"
	case Mutating:
		return "mutating"
	case Started:
		return "started"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ServiceName is the service name of the application's reconciler.
const ServiceName = "scheduler.reconciler"

// ErrDisabled is returned by Reconcile while scheduling is turned off.
var ErrDisabled = errors.New("reconcile: scheduler disabled")

// Discovery enumerates candidate job declarations.
type Discovery interface {
	ListCandidateJobs() ([]job.Candidate, error)
}

// Backend is the scheduler backend being reconciled.
type Backend interface {
	trigger.Backend
	ListIdentities(ctx context.Context) ([]job.Identity, error)
	Delete(ctx context.Context, id job.Identity) (bool, error)
	Start(ctx context.Context) error
}

// detailReader is implemented by backends that expose stored job details.
type detailReader interface {
	Job(ctx context.Context, id job.Identity) (scheduler.JobState, error)
}

// Config configures a Reconciler.
type Config struct {
	Discovery Discovery
	Backend   Backend
	Resolver  schedule.Resolver

	// DefaultGroup is used for jobs declaring no group. It may contain placeholders.
	DefaultGroup string

	// Disabled makes Reconcile refuse to run until SetEnabled(true).
	Disabled bool

	Logger *slog.Logger
}

// Report summarizes a reconciliation pass or plan.
type Report struct {
	Created     []job.Identity `json:"created"`
	Rescheduled []job.Identity `json:"rescheduled"`
	Deleted     []job.Identity `json:"deleted"`
	Disabled    []job.Identity `json:"disabled"`
}

// Reconciler runs reconciliation passes. Passes are serialized and may be
// repeated, e.g. after a configuration reload.
type Reconciler struct {
	discovery Discovery
	backend   Backend
	resolver  schedule.Resolver
	logger    *slog.Logger
	now       func() time.Time

	mu           sync.Mutex
	defaultGroup string
	disabled     bool
	state        atomic.Int32
}

// New creates a reconciler in the Idle state.
func New(cfg Config) *Reconciler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		discovery:    cfg.Discovery,
		backend:      cfg.Backend,
		resolver:     cfg.Resolver,
		logger:       logger,
		now:          time.Now,
		defaultGroup: cfg.DefaultGroup,
		disabled:     cfg.Disabled,
	}
}

// State returns the current phase.
func (r *Reconciler) State() State {
	return State(r.state.Load())
}

// SetDefaultGroup changes the default group used by subsequent passes.
func (r *Reconciler) SetDefaultGroup(group string) {
	r.mu.Lock()
	r.defaultGroup = group
	r.mu.Unlock()
}

// SetEnabled turns reconciliation on or off. It waits for a running pass,
// so once it returns with false no pass can start the backend.
func (r *Reconciler) SetEnabled(enabled bool) {
	r.mu.Lock()
	r.disabled = !enabled
	r.mu.Unlock()
}

// Enabled reports whether Reconcile runs.
func (r *Reconciler) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.disabled
}

// plan is the outcome of scanning and diffing.
type plan struct {
	declared []schedule.Declaration
	existing map[job.Identity]bool
	toRemove []job.Identity
	disabled []job.Identity
}

// Reconcile makes the backend's job set match the declared set and starts
// the backend. A configuration or discovery error aborts the pass before
// any mutation. While disabled it returns ErrDisabled and leaves the backend
// untouched.
func (r *Reconciler) Reconcile(ctx context.Context) (report Report, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disabled {
		return Report{}, ErrDisabled
	}

	defer func() {
		if err != nil {
			r.setState(Idle)
		}
	}()

	p, err := r.scanAndDiff(ctx)
	if err != nil {
		return Report{}, err
	}

	r.setState(Mutating)
	now := r.now()
	for _, decl := range p.declared {
		trig, err := trigger.Build(decl.Identity, decl.Spec, now)
		if err != nil {
			return report, fmt.Errorf("reconcile: %w", err)
		}
		detail := trigger.NewJobDetail(decl)
		action, err := trigger.Ensure(ctx, r.backend, detail, trig)
		if err != nil {
			return report, fmt.Errorf("reconcile: %w", err)
		}
		switch action {
		case trigger.Created:
			report.Created = append(report.Created, decl.Identity)
		case trigger.Rescheduled:
			report.Rescheduled = append(report.Rescheduled, decl.Identity)
			r.warnStaleDetail(ctx, detail)
		}
		r.logger.Debug("reconcile: job ensured",
			"job", decl.Identity.String(),
			"action", string(action),
			"schedule", decl.Spec.String(),
		)
	}

	for _, id := range p.toRemove {
		if _, err := r.backend.Delete(ctx, id); err != nil {
			return report, fmt.Errorf("reconcile: delete %s: %w", id, err)
		}
		report.Deleted = append(report.Deleted, id)
		r.logger.Info("reconcile: removed job no longer declared", "job", id.String())
	}
	report.Disabled = p.disabled

	r.setState(Started)
	if err := r.backend.Start(ctx); err != nil {
		return report, fmt.Errorf("reconcile: start backend: %w", err)
	}

	r.logger.Info("reconcile: completed",
		"created", len(report.Created),
		"rescheduled", len(report.Rescheduled),
		"deleted", len(report.Deleted),
		"disabled", len(report.Disabled),
	)
	return report, nil
}

// warnStaleDetail logs when a rescheduled job's stored definition no longer
// matches its declaration. Rescheduling replaces only the trigger; the job
// has to be deleted for a new type or tracking flag to apply.
func (r *Reconciler) warnStaleDetail(ctx context.Context, declared scheduler.JobDetail) {
	br, ok := r.backend.(detailReader)
	if !ok {
		return
	}
	st, err := br.Job(ctx, declared.Identity)
	if err != nil {
		return
	}
	stored := st.Detail
	if stored.Type == declared.Type && stored.TrackExecutions == declared.TrackExecutions {
		return
	}
	r.logger.Warn("reconcile: stored job differs from its declaration, only the trigger was replaced",
		"job", declared.Identity.String(),
		"stored_type", stored.Type,
		"declared_type", declared.Type,
		"stored_track_executions", stored.TrackExecutions,
		"declared_track_executions", declared.TrackExecutions,
	)
}

// Plan reports what Reconcile would do without mutating the backend.
func (r *Reconciler) Plan(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	decls, err := r.scan()
	if err != nil {
		return Report{}, err
	}
	p, err := r.diff(ctx, decls)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, decl := range p.declared {
		if p.existing[decl.Identity] {
			report.Rescheduled = append(report.Rescheduled, decl.Identity)
		} else {
			report.Created = append(report.Created, decl.Identity)
		}
	}
	report.Deleted = p.toRemove
	report.Disabled = p.disabled
	return report, nil
}

// Declarations returns every parsed declaration, disabled ones included,
// sorted by identity.
func (r *Reconciler) Declarations() ([]schedule.Declaration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scan()
}

func (r *Reconciler) scanAndDiff(ctx context.Context) (plan, error) {
	r.setState(Scanning)
	decls, err := r.scan()
	if err != nil {
		return plan{}, err
	}
	r.setState(Diffing)
	return r.diff(ctx, decls)
}

// scan lists and parses every candidate. r.mu must be held.
func (r *Reconciler) scan() ([]schedule.Declaration, error) {
	candidates, err := r.discovery.ListCandidateJobs()
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	seen := make(map[job.Identity]string, len(candidates))
	decls := make([]schedule.Declaration, 0, len(candidates))
	for _, c := range candidates {
		decl, err := schedule.Parse(c, r.defaultGroup, r.resolver)
		if err != nil {
			return nil, fmt.Errorf("reconcile: %w", err)
		}
		if other, dup := seen[decl.Identity]; dup {
			return nil, fmt.Errorf("reconcile: %w", &schedule.ConfigurationError{
				Identity: decl.Identity,
				Reason:   fmt.Sprintf("duplicate job identity declared by %s and %s", other, c.Type),
			})
		}
		seen[decl.Identity] = c.Type
		if decl.InitialDelayIgnored {
			r.logger.Warn("reconcile: initial delay ignored for cron job", "job", decl.Identity.String())
		}
		decls = append(decls, decl)
	}

	slices.SortFunc(decls, func(a, b schedule.Declaration) int {
		switch {
		case a.Identity.Less(b.Identity):
			return -1
		case b.Identity.Less(a.Identity):
			return 1
		}
		return 0
	})
	return decls, nil
}

func (r *Reconciler) diff(ctx context.Context, decls []schedule.Declaration) (plan, error) {
	ids, err := r.backend.ListIdentities(ctx)
	if err != nil {
		return plan{}, fmt.Errorf("reconcile: list existing jobs: %w", err)
	}

	p := plan{existing: make(map[job.Identity]bool, len(ids))}
	for _, id := range ids {
		p.existing[id] = true
	}

	declared := make(map[job.Identity]bool, len(decls))
	for _, decl := range decls {
		if schedule.IsDisabled(decl.Spec) {
			p.disabled = append(p.disabled, decl.Identity)
			continue
		}
		declared[decl.Identity] = true
		p.declared = append(p.declared, decl)
	}

	for _, id := range ids {
		if !declared[id] {
			p.toRemove = append(p.toRemove, id)
		}
	}
	return p, nil
}

func (r *Reconciler) setState(s State) {
	r.state.Store(int32(s))
}
