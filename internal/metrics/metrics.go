// Package metrics records job execution timings through a pluggable sink.
package metrics

import (
	"sync"
	"time"
)

// Timer names recorded for job executions.
const (
	TimerScheduledJob          = "scheduled_job"
	TimerScheduledJobException = "scheduled_job_exception"
)

// OutcomeNone is the outcome of a successful execution.
const OutcomeNone = "none"

// Timer records durations.
type Timer interface {
	Record(d time.Duration)
}

// Sink creates timers. Implementations must be safe for concurrent use.
type Sink interface {
	Timer(name string, tags map[string]string) Timer
}

// Key identifies the timer of a job outcome.
type Key struct {
	Job     string
	Group   string
	Outcome string
}

// NewKey returns the key for an execution outcome. An empty outcome means
// success.
func NewKey(job, group, outcome string) Key {
	if outcome == "" {
		outcome = OutcomeNone
	}
	return Key{Job: job, Group: group, Outcome: outcome}
}

// Tags returns the timer tags. The exception tag is only set for failures.
func (k Key) Tags() map[string]string {
	tags := map[string]string{"job": k.Job, "group": k.Group}
	if k.Outcome != "" && k.Outcome != OutcomeNone {
		tags["exception"] = k.Outcome
	}
	return tags
}

type timerKey struct {
	name string
	key  Key
}

// Registry memoizes timers per name and key for its lifetime.
type Registry struct {
	sink Sink

	mu     sync.RWMutex
	timers map[timerKey]Timer
}

// NewRegistry creates a registry over sink. A nil sink discards every record.
func NewRegistry(sink Sink) *Registry {
	if sink == nil {
		sink = NopSink{}
	}
	return &Registry{sink: sink, timers: make(map[timerKey]Timer)}
}

// Timer returns the memoized timer for name and key, creating it on first use.
func (r *Registry) Timer(name string, key Key) Timer {
	tk := timerKey{name: name, key: key}

	r.mu.RLock()
	t, ok := r.timers[tk]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have created it between the locks.
	if t, ok := r.timers[tk]; ok {
		return t
	}
	t = r.sink.Timer(name, key.Tags())
	r.timers[tk] = t
	return t
}

// Len returns the number of memoized timers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.timers)
}

// NopSink discards every record.
type NopSink struct{}

// Timer implements Sink.
func (NopSink) Timer(string, map[string]string) Timer { return nopTimer{} }

type nopTimer struct{}

func (nopTimer) Record(time.Duration) {}
