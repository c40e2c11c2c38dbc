package metrics

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every exported metric.
const DefaultNamespace = "cronsync"

// Service names of the application's Prometheus registry: the gatherer served
// on the metrics endpoint and the registerer modules add collectors to.
const (
	ServiceGatherer   = "metrics.gatherer"
	ServiceRegisterer = "metrics.registerer"
)

// jobBuckets span sub-second jobs to hour-long batch runs.
var jobBuckets = []float64{.005, .025, .1, .5, 1, 5, 15, 60, 300, 900, 3600}

// PrometheusSink exports timers as histograms named
// <namespace>_<timer>_seconds, labelled by the timer tags.
type PrometheusSink struct {
	namespace string
	reg       prometheus.Registerer
	logger    *slog.Logger

	mu   sync.Mutex
	vecs map[string]*histogram
}

type histogram struct {
	vec    *prometheus.HistogramVec
	labels []string
}

// Compile-time interface check.
var _ Sink = (*PrometheusSink)(nil)

// NewPrometheusSink registers the job histograms on reg.
func NewPrometheusSink(reg prometheus.Registerer, logger *slog.Logger) (*PrometheusSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PrometheusSink{
		namespace: DefaultNamespace,
		reg:       reg,
		logger:    logger,
		vecs:      make(map[string]*histogram),
	}
	for _, spec := range []struct {
		name   string
		help   string
		labels []string
	}{
		{TimerScheduledJob, "Duration of successful scheduled job executions.", []string{"group", "job"}},
		{TimerScheduledJobException, "Duration of failed scheduled job executions.", []string{"exception", "group", "job"}},
	} {
		if _, err := s.register(spec.name, spec.help, spec.labels); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Timer implements Sink. Unknown timer names get a histogram on first use.
// A tag set that does not match the histogram's labels yields a timer that
// discards records.
func (s *PrometheusSink) Timer(name string, tags map[string]string) Timer {
	s.mu.Lock()
	h, ok := s.vecs[name]
	s.mu.Unlock()

	if !ok {
		labels := make([]string, 0, len(tags))
		for k := range tags {
			labels = append(labels, k)
		}
		slices.Sort(labels)
		var err error
		if h, err = s.register(name, "Duration of "+strings.ReplaceAll(name, "_", " ")+".", labels); err != nil {
			s.logger.Warn("metrics: cannot register timer", "timer", name, "error", err)
			return nopTimer{}
		}
	}

	obs, err := h.vec.GetMetricWith(prometheus.Labels(tags))
	if err != nil {
		s.logger.Warn("metrics: timer tags do not match histogram labels",
			"timer", name,
			"labels", h.labels,
			"error", err,
		)
		return nopTimer{}
	}
	return observerTimer{obs: obs}
}

func (s *PrometheusSink) register(name, help string, labels []string) (*histogram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.vecs[name]; ok {
		return h, nil
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: s.namespace,
		Name:      name + "_seconds",
		Help:      help,
		Buckets:   jobBuckets,
	}, labels)
	if s.reg != nil {
		if err := s.reg.Register(vec); err != nil {
			return nil, fmt.Errorf("metrics: register %s: %w", name, err)
		}
	}
	h := &histogram{vec: vec, labels: labels}
	s.vecs[name] = h
	return h, nil
}

type observerTimer struct {
	obs prometheus.Observer
}

func (t observerTimer) Record(d time.Duration) {
	t.obs.Observe(d.Seconds())
}
