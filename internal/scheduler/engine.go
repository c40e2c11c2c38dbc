package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flemzord/cronsync/internal/job"
)

// Executor runs one fire of a job. It owns error handling: the engine never
// sees the job's outcome.
type Executor func(ctx context.Context, j job.Job, jc *job.Context)

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Store defaults to a MemoryStore.
	Store Store

	// Registry resolves job types. Defaults to job.DefaultRegistry.
	Registry *job.Registry

	// Executor defaults to running the job and logging its error.
	Executor Executor

	// Env is passed to jobs implementing job.Provisioner.
	Env job.Env

	// Location is the time zone of cron expressions. Defaults to time.Local.
	Location *time.Location

	Logger *slog.Logger
}

// entry is a job with a live entry in the dispatch loop.
type entry struct {
	cronID  cron.EntryID
	detail  JobDetail
	trigger Trigger
	job     job.Job

	// lock prevents overlapping executions of the same job.
	lock    sync.Mutex
	running atomic.Bool
}

// Engine is the scheduler backend: durable jobs and their triggers in a
// Store, fired by a robfig/cron loop once started. Mutations on a running
// engine update the live entries in place.
type Engine struct {
	store    Store
	registry *job.Registry
	executor Executor
	env      job.Env
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	entries map[job.Identity]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	manual  sync.WaitGroup
}

// NewEngine creates a stopped engine.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		store:    cfg.Store,
		registry: cfg.Registry,
		env:      cfg.Env,
		loc:      cfg.Location,
		logger:   cfg.Logger,
		now:      time.Now,
		entries:  make(map[job.Identity]*entry),
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.store == nil {
		e.logger.Warn("scheduler: no store configured, using in-memory store; jobs will not survive a restart")
		e.store = NewMemoryStore()
	}
	if e.registry == nil {
		e.registry = job.DefaultRegistry
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	e.executor = cfg.Executor
	if e.executor == nil {
		e.executor = e.runAndLog
	}
	return e
}

// Store returns the engine's persistent store.
func (e *Engine) Store() Store { return e.store }

// Running reports whether the dispatch loop is started.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// ListIdentities returns the identities of every stored job.
func (e *Engine) ListIdentities(ctx context.Context) ([]job.Identity, error) {
	details, err := e.store.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler: listing jobs: %w", err)
	}
	ids := make([]job.Identity, len(details))
	for i, d := range details {
		ids[i] = d.Identity
	}
	return ids, nil
}

// Exists reports whether a job is stored under id.
func (e *Engine) Exists(ctx context.Context, id job.Identity) (bool, error) {
	_, err := e.store.GetJob(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrJobNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("scheduler: checking job %s: %w", id, err)
	}
}

// CreateDurable stores a new job together with its trigger and, when the
// engine is running, schedules it.
func (e *Engine) CreateDurable(ctx context.Context, detail JobDetail, trigger Trigger) error {
	trigger.Identity = detail.Identity
	if _, err := trigger.Schedule(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var j job.Job
	if e.running {
		var err error
		if j, err = e.instantiate(detail); err != nil {
			return err
		}
	}
	if err := e.store.CreateJob(ctx, detail, trigger); err != nil {
		return fmt.Errorf("scheduler: creating job %s: %w", detail.Identity, err)
	}
	if e.running {
		return e.scheduleLocked(detail, trigger, j)
	}
	return nil
}

// Reschedule replaces the trigger of an existing job. The job detail and its
// execution record are left untouched.
func (e *Engine) Reschedule(ctx context.Context, trigger Trigger) error {
	if _, err := trigger.Schedule(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.SaveTrigger(ctx, trigger); err != nil {
		return fmt.Errorf("scheduler: rescheduling job %s: %w", trigger.Identity, err)
	}
	if !e.running {
		return nil
	}

	if ent, ok := e.entries[trigger.Identity]; ok {
		e.cron.Remove(ent.cronID)
		delete(e.entries, trigger.Identity)
		return e.scheduleLocked(ent.detail, trigger, ent.job)
	}

	detail, err := e.store.GetJob(ctx, trigger.Identity)
	if err != nil {
		return fmt.Errorf("scheduler: rescheduling job %s: %w", trigger.Identity, err)
	}
	j, err := e.instantiate(detail)
	if err != nil {
		return err
	}
	return e.scheduleLocked(detail, trigger, j)
}

// Delete removes a job and its trigger. It reports whether the job existed.
// Executions already in flight are not interrupted.
func (e *Engine) Delete(ctx context.Context, id job.Identity) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	deleted, err := e.store.DeleteJob(ctx, id)
	if err != nil {
		return false, fmt.Errorf("scheduler: deleting job %s: %w", id, err)
	}
	if ent, ok := e.entries[id]; ok {
		e.cron.Remove(ent.cronID)
		delete(e.entries, id)
	}
	return deleted, nil
}

// SaveExecutionRecord overwrites the execution record of a stored job.
func (e *Engine) SaveExecutionRecord(ctx context.Context, id job.Identity, rec job.ExecutionRecord) error {
	if err := e.store.SaveExecutionRecord(ctx, id, rec); err != nil {
		return fmt.Errorf("scheduler: saving execution record for %s: %w", id, err)
	}
	return nil
}

// Start loads every stored job and begins dispatching. Calling Start on a
// running engine is a no-op. Stored jobs whose type is not registered are
// logged and skipped.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	details, err := e.store.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: loading jobs: %w", err)
	}

	logger := cronLogger{logger: e.logger}
	e.cron = cron.New(
		cron.WithLocation(e.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger)),
	)
	e.entries = make(map[job.Identity]*entry)
	e.ctx, e.cancel = context.WithCancel(context.Background())

	for _, detail := range details {
		trigger, err := e.store.GetTrigger(ctx, detail.Identity)
		if errors.Is(err, ErrTriggerNotFound) {
			e.logger.Debug("scheduler: durable job without trigger", "job", detail.Identity.String())
			continue
		}
		if err != nil {
			e.cancel()
			return fmt.Errorf("scheduler: loading trigger for %s: %w", detail.Identity, err)
		}
		j, err := e.instantiate(detail)
		if err != nil {
			e.logger.Warn("scheduler: skipping stored job",
				"job", detail.Identity.String(),
				"type", detail.Type,
				"error", err,
			)
			continue
		}
		if err := e.scheduleLocked(detail, trigger, j); err != nil {
			e.logger.Warn("scheduler: skipping stored job",
				"job", detail.Identity.String(),
				"error", err,
			)
		}
	}

	e.cron.Start()
	e.running = true
	e.logger.Info("scheduler: engine started", "jobs", len(e.entries), "location", e.loc.String())
	return nil
}

// Location returns the time zone cron expressions are evaluated in.
func (e *Engine) Location() *time.Location {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loc
}

// SetLocation changes the time zone of cron expressions. A running engine
// is restarted so every entry is rescheduled in the new zone; in-flight
// executions are waited for as in Stop.
func (e *Engine) SetLocation(ctx context.Context, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	e.mu.Lock()
	if e.loc.String() == loc.String() {
		e.mu.Unlock()
		return nil
	}
	e.loc = loc
	running := e.running
	e.mu.Unlock()

	e.logger.Info("scheduler: time zone changed", "location", loc.String())
	if !running {
		return nil
	}
	if err := e.Stop(ctx); err != nil {
		return err
	}
	return e.Start(ctx)
}

// Stop halts dispatching and waits for in-flight executions, bounded by ctx.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	c := e.cron
	cancel := e.cancel
	e.entries = make(map[job.Identity]*entry)
	e.mu.Unlock()

	cancel()
	stopped := c.Stop()

	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		e.manual.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("scheduler: engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: waiting for running jobs: %w", ctx.Err())
	}
}

// RunNow fires a scheduled job immediately, outside its trigger. The run is
// asynchronous; RunNow returns once it has been started.
func (e *Engine) RunNow(_ context.Context, id job.Identity) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return ErrNotRunning
	}
	ent, ok := e.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !ent.lock.TryLock() {
		return fmt.Errorf("%w: %s", ErrJobRunning, id)
	}

	ctx := e.ctx
	fireTime := e.now()
	e.manual.Add(1)
	go func() {
		defer e.manual.Done()
		defer ent.lock.Unlock()
		e.execute(ctx, ent, fireTime, time.Time{}, true)
	}()
	return nil
}

// Job returns the state of a single stored job.
func (e *Engine) Job(ctx context.Context, id job.Identity) (JobState, error) {
	detail, err := e.store.GetJob(ctx, id)
	if err != nil {
		return JobState{}, fmt.Errorf("scheduler: job %s: %w", id, err)
	}
	states, err := e.states(ctx, []JobDetail{detail})
	if err != nil {
		return JobState{}, err
	}
	return states[0], nil
}

// Jobs returns the state of every stored job, sorted by identity.
func (e *Engine) Jobs(ctx context.Context) ([]JobState, error) {
	details, err := e.store.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler: listing jobs: %w", err)
	}
	return e.states(ctx, details)
}

func (e *Engine) states(ctx context.Context, details []JobDetail) ([]JobState, error) {
	e.mu.Lock()
	live := make(map[job.Identity]*entry, len(e.entries))
	for id, ent := range e.entries {
		live[id] = ent
	}
	c := e.cron
	running := e.running
	e.mu.Unlock()

	byID := make(map[cron.EntryID]cron.Entry)
	if running && c != nil {
		for _, ce := range c.Entries() {
			byID[ce.ID] = ce
		}
	}

	out := make([]JobState, 0, len(details))
	for _, d := range details {
		st := JobState{Detail: d}
		trigger, err := e.store.GetTrigger(ctx, d.Identity)
		switch {
		case err == nil:
			st.Trigger = &trigger
		case !errors.Is(err, ErrTriggerNotFound):
			return nil, fmt.Errorf("scheduler: trigger for %s: %w", d.Identity, err)
		}
		if ent, ok := live[d.Identity]; ok {
			st.Scheduled = true
			st.Running = ent.running.Load()
			if ce, ok := byID[ent.cronID]; ok {
				st.Next = ce.Next
				st.Prev = ce.Prev
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// scheduleLocked adds a live entry. e.mu must be held.
func (e *Engine) scheduleLocked(detail JobDetail, trigger Trigger, j job.Job) error {
	sched, err := trigger.Schedule()
	if err != nil {
		return err
	}
	ent := &entry{detail: detail, trigger: trigger, job: j}
	ent.cronID = e.cron.Schedule(sched, e.dispatch(detail.Identity))
	e.entries[detail.Identity] = ent
	e.logger.Debug("scheduler: job scheduled",
		"job", detail.Identity.String(),
		"kind", string(trigger.Kind),
	)
	return nil
}

// dispatch returns the cron job that fires id.
func (e *Engine) dispatch(id job.Identity) cron.Job {
	return cron.FuncJob(func() {
		fireTime := e.now()

		e.mu.Lock()
		ent, ok := e.entries[id]
		c := e.cron
		ctx := e.ctx
		e.mu.Unlock()
		if !ok {
			return
		}

		// TryLock is atomic: if the previous fire is still running, skip this one.
		if !ent.lock.TryLock() {
			e.logger.Warn("scheduler: job still running, skipping fire", "job", id.String())
			return
		}
		defer ent.lock.Unlock()

		// The dispatch loop records the planned time as Prev before it serves
		// the snapshot request.
		scheduled := c.Entry(ent.cronID).Prev
		if scheduled.IsZero() {
			scheduled = fireTime
		}
		e.execute(ctx, ent, fireTime, scheduled, false)
	})
}

// execute runs one fire. ent.lock must be held.
func (e *Engine) execute(ctx context.Context, ent *entry, fireTime, scheduled time.Time, manual bool) {
	ent.running.Store(true)
	defer ent.running.Store(false)

	jc := &job.Context{
		Identity:          ent.detail.Identity,
		Type:              ent.detail.Type,
		FireTime:          fireTime,
		ScheduledFireTime: scheduled,
		Manual:            manual,
		TrackExecutions:   ent.detail.TrackExecutions,
	}
	if ent.detail.TrackExecutions {
		if d, err := e.store.GetJob(ctx, ent.detail.Identity); err == nil {
			jc.Previous = d.Record
		}
	}
	e.executor(ctx, ent.job, jc)
}

func (e *Engine) instantiate(detail JobDetail) (job.Job, error) {
	def, ok := e.registry.Lookup(detail.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q (job %s)", ErrUnknownType, detail.Type, detail.Identity)
	}
	j := def.New()
	if p, ok := j.(job.Provisioner); ok && e.env != nil {
		if err := p.Provision(e.env); err != nil {
			return nil, fmt.Errorf("scheduler: provisioning job %s: %w", detail.Identity, err)
		}
	}
	return j, nil
}

func (e *Engine) runAndLog(ctx context.Context, j job.Job, jc *job.Context) {
	if err := j.Run(ctx, jc); err != nil {
		e.logger.Error("scheduler: job failed",
			"job", jc.Identity.String(),
			"error", err,
		)
	}
}
