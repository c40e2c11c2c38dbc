// Package jobtest provides test doubles for the job package.
package jobtest

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/flemzord/cronsync/internal/job"
)

// MockJob is a configurable test double for job.Job.
type MockJob struct {
	RunFunc func(ctx context.Context, jc *job.Context) error

	mu       sync.Mutex
	calls    int
	lastCall time.Time
	contexts []job.Context
}

// Compile-time interface check.
var _ job.Job = (*MockJob)(nil)

// Run implements job.Job and records the call.
func (m *MockJob) Run(ctx context.Context, jc *job.Context) error {
	m.mu.Lock()
	m.calls++
	m.lastCall = time.Now()
	if jc != nil {
		m.contexts = append(m.contexts, *jc)
	}
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, jc)
	}
	return nil
}

// CallCount returns the number of times Run was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastCall returns the time of the last Run call.
func (m *MockJob) LastCall() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCall
}

// Contexts returns copies of the job contexts received so far.
func (m *MockJob) Contexts() []job.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]job.Context, len(m.contexts))
	copy(out, m.contexts)
	return out
}

// StaticDiscovery returns a fixed candidate list.
type StaticDiscovery struct {
	Candidates []job.Candidate
	Err        error
}

// ListCandidateJobs implements reconcile.Discovery.
func (d *StaticDiscovery) ListCandidateJobs() ([]job.Candidate, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	out := make([]job.Candidate, len(d.Candidates))
	copy(out, d.Candidates)
	return out, nil
}

// MapResolver resolves ${key} and ${key:default} against a fixed map.
// Unresolvable tokens are left in place.
type MapResolver map[string]string

// Resolve implements the placeholder resolver contract.
func (r MapResolver) Resolve(raw string) string {
	var b strings.Builder
	rest := raw
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end += start
		b.WriteString(rest[:start])

		key, def, hasDef := strings.Cut(rest[start+2:end], ":")
		if val, ok := r[key]; ok {
			b.WriteString(val)
		} else if hasDef {
			b.WriteString(def)
		} else {
			b.WriteString(rest[start : end+1])
		}
		rest = rest[end+1:]
	}
}

// Env is a job.Env over fixed properties and services.
type Env struct {
	Properties MapResolver
	Services   map[string]any

	// Log defaults to slog.Default().
	Log *slog.Logger
}

// Compile-time interface check.
var _ job.Env = (*Env)(nil)

// Logger implements job.Env.
func (e *Env) Logger() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

// Service implements job.Env.
func (e *Env) Service(name string) (any, bool) {
	svc, ok := e.Services[name]
	return svc, ok
}

// Resolve implements job.Env.
func (e *Env) Resolve(raw string) string {
	return e.Properties.Resolve(raw)
}
