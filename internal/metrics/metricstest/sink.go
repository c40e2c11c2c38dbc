// Package metricstest provides test doubles for the metrics package.
package metricstest

import (
	"maps"
	"sync"
	"time"

	"github.com/flemzord/cronsync/internal/metrics"
)

// Record is a single recorded duration.
type Record struct {
	Name     string
	Tags     map[string]string
	Duration time.Duration
}

// Sink records every duration in memory.
type Sink struct {
	mu      sync.Mutex
	created int
	records []Record
}

// Compile-time interface check.
var _ metrics.Sink = (*Sink)(nil)

// Timer implements metrics.Sink.
func (s *Sink) Timer(name string, tags map[string]string) metrics.Timer {
	s.mu.Lock()
	s.created++
	s.mu.Unlock()
	return &timer{sink: s, name: name, tags: maps.Clone(tags)}
}

// Created returns how many timers were created.
func (s *Sink) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// Records returns copies of the recorded durations.
func (s *Sink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

type timer struct {
	sink *Sink
	name string
	tags map[string]string
}

func (t *timer) Record(d time.Duration) {
	t.sink.mu.Lock()
	t.sink.records = append(t.sink.records, Record{Name: t.name, Tags: t.tags, Duration: d})
	t.sink.mu.Unlock()
}
