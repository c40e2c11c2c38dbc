// Package timed wraps job executions to record their duration and outcome
// as metrics, trace spans and, for tracked jobs, a persisted execution record.
package timed

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/metrics"
)

// ServiceName is the service name of the application's wrapper, the source
// of execution events.
const ServiceName = "scheduler.executions"

const tracerName = "github.com/flemzord/cronsync/internal/timed"

// unknownError is stored when a failure carries no message.
const unknownError = "Unknown error"

// RecordWriter persists the execution record of a tracked job.
type RecordWriter interface {
	SaveExecutionRecord(ctx context.Context, id job.Identity, rec job.ExecutionRecord) error
}

// Failure describes a failed execution.
type Failure struct {
	Class   string
	Message string
	Err     error
}

// Result is the outcome of one execution. Failure is nil on success.
type Result struct {
	ExecutionID string
	Duration    time.Duration
	Failure     *Failure
}

// Succeeded reports whether the job returned without error.
func (r Result) Succeeded() bool { return r.Failure == nil }

// Config configures a Wrapper.
type Config struct {
	// Metrics receives the execution timers. Defaults to a registry that
	// discards records.
	Metrics *metrics.Registry

	// Records persists execution records of tracked jobs. Optional.
	Records RecordWriter

	// Tracer defaults to the global OpenTelemetry tracer provider.
	Tracer trace.Tracer

	Logger *slog.Logger
}

// Wrapper executes jobs with timing, tracing and outcome recording.
type Wrapper struct {
	metrics *metrics.Registry
	records RecordWriter
	tracer  trace.Tracer
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

// New creates a wrapper.
func New(cfg Config) *Wrapper {
	w := &Wrapper{
		metrics: cfg.Metrics,
		records: cfg.Records,
		tracer:  cfg.Tracer,
		logger:  cfg.Logger,
		now:     time.Now,
		subs:    make(map[int]chan Event),
	}
	if w.metrics == nil {
		w.metrics = metrics.NewRegistry(nil)
	}
	if w.tracer == nil {
		w.tracer = otel.Tracer(tracerName)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Execute runs j and records its outcome. A job error or panic is logged and
// reported in the Result; it is never propagated.
func (w *Wrapper) Execute(ctx context.Context, j job.Job, jc *job.Context) Result {
	id := jc.Identity
	ctx, span := w.tracer.Start(ctx, "job "+id.String(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("job.name", id.Name),
			attribute.String("job.group", id.Group),
			attribute.String("job.type", jc.Type),
			attribute.Bool("job.manual", jc.Manual),
		),
	)
	defer span.End()

	start := time.Now()
	err := run(ctx, j, jc)
	duration := time.Since(start)
	finish := w.now()

	res := Result{ExecutionID: uuid.NewString(), Duration: duration}
	span.SetAttributes(attribute.String("job.execution_id", res.ExecutionID))

	if err != nil {
		class := ErrorClass(err)
		msg := err.Error()
		if msg == "" {
			msg = unknownError
		}
		res.Failure = &Failure{
			Class:   class,
			Message: msg,
			Err:     &ExecutionError{Identity: id, Class: class, Err: err},
		}
		w.metrics.Timer(metrics.TimerScheduledJobException, metrics.NewKey(id.Name, id.Group, class)).Record(duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		w.logger.Error("timed: job failed",
			"job", id.String(),
			"class", class,
			"duration", duration,
			"error", err,
		)
	} else {
		w.metrics.Timer(metrics.TimerScheduledJob, metrics.NewKey(id.Name, id.Group, metrics.OutcomeNone)).Record(duration)
		span.SetStatus(codes.Ok, "")
		w.logger.Debug("timed: job completed", "job", id.String(), "duration", duration)
	}

	// Duration is measured from the planned fire time, so it includes any
	// dispatch latency.
	anchor := jc.ScheduledFireTime
	if anchor.IsZero() {
		anchor = jc.FireTime
	}
	if anchor.IsZero() {
		anchor = finish.Add(-duration)
	}

	if jc.TrackExecutions && w.records != nil {
		rec := job.ExecutionRecord{
			LastFireTime:       anchor,
			LastFinishTime:     finish,
			LastDurationMillis: finish.Sub(anchor).Milliseconds(),
			LastSuccess:        res.Succeeded(),
			ExecutionID:        res.ExecutionID,
		}
		if res.Failure != nil {
			rec.LastErrorMessage = res.Failure.Message
		}
		if err := w.records.SaveExecutionRecord(context.WithoutCancel(ctx), id, rec); err != nil {
			w.logger.Warn("timed: cannot save execution record", "job", id.String(), "error", err)
		}
	}

	w.publish(newEvent(jc, res, anchor, finish))
	return res
}

func run(ctx context.Context, j job.Job, jc *job.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return j.Run(ctx, jc)
}
