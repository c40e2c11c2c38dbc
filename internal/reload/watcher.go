// Package reload applies configuration changes to a running scheduler,
// triggered by file polling or SIGHUP.
package reload

import (
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// ConfigPath is the path to the configuration file to watch.
	ConfigPath string

	// PollInterval is how often to check for file changes.
	// Defaults to 5 seconds if zero.
	PollInterval time.Duration
}

func (c WatcherConfig) pollIntervalOrDefault() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// EventType describes the type of file change event.
type EventType string

const (
	// EventModified indicates the config file content changed.
	EventModified EventType = "modified"
)

// Event represents a file change notification.
type Event struct {
	Type       EventType
	ConfigPath string
}

// fingerprint identifies a version of the file. The content hash is only
// computed when the cheap stat fields move, so touching the file without
// editing it emits nothing.
type fingerprint struct {
	modTime time.Time
	size    int64
	sum     [sha256.Size]byte
}

// Watcher polls a configuration file for content changes.
type Watcher struct {
	cfg     WatcherConfig
	events  chan Event
	stop    chan struct{}
	stopped chan struct{}
	last    fingerprint
	present bool

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	return &Watcher{
		cfg:     cfg,
		events:  make(chan Event, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start records the current version of the file and begins polling.
// Only the first call has an effect.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.last, w.present = w.fingerprint(fingerprint{})
		w.started.Store(true)
		go w.poll(ctx)
	})
}

// Events returns the channel of file change events. It holds at most one
// pending event; changes observed while one is pending are coalesced.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop stops the watcher and waits for the polling goroutine to exit.
// Safe to call multiple times and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.pollIntervalOrDefault())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if w.check() {
				select {
				case w.events <- Event{Type: EventModified, ConfigPath: w.cfg.ConfigPath}:
				default:
				}
			}
		}
	}
}

// check reports whether the file content differs from the last version seen.
// A missing file is not a change.
func (w *Watcher) check() bool {
	fp, ok := w.fingerprint(w.last)
	if !ok {
		return false
	}
	changed := !w.present || fp.sum != w.last.sum
	w.last, w.present = fp, true
	return changed
}

// fingerprint stats the file and hashes it unless modTime and size match prev.
func (w *Watcher) fingerprint(prev fingerprint) (fingerprint, bool) {
	info, err := os.Stat(w.cfg.ConfigPath)
	if err != nil {
		return fingerprint{}, false
	}
	fp := fingerprint{modTime: info.ModTime(), size: info.Size()}
	if fp.modTime.Equal(prev.modTime) && fp.size == prev.size {
		fp.sum = prev.sum
		return fp, true
	}
	raw, err := os.ReadFile(w.cfg.ConfigPath)
	if err != nil {
		return fingerprint{}, false
	}
	fp.sum = sha256.Sum256(raw)
	return fp, true
}
