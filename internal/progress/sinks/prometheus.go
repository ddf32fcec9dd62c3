package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/careermap/jobradar/internal/progress"
)

// PrometheusSink exports run lifecycle metrics via Prometheus. It owns
// the collectors for runs started/completed/running plus per-site fetch
// and record counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	fetchRequests *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	pageRecords   *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobradar_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobradar_runs_completed_total",
			Help: "Total crawl runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobradar_runs_running",
			Help: "Current number of running crawl runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobradar_run_duration_seconds",
			Help:    "Wall time per completed crawl run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"result"}),
		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobradar_fetch_requests_total",
			Help: "Fetch completions partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobradar_fetch_bytes_total",
			Help: "Bytes downloaded per site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobradar_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by site and status class.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"site", "status_class"}),
		pageRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobradar_page_records_total",
			Help: "Job records kept per site after extraction and filtering.",
		}, []string{"site"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.fetchRequests,
		s.fetchBytes,
		s.fetchDuration,
		s.pageRecords,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It
// is safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
			s.handleRunEvent(evt)
		case progress.StageFetchDone:
			s.handleFetchEvent(evt)
		case progress.StagePageDone:
			s.handlePageEvent(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) handleRunEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues("success").Inc()
		s.observeDuration(evt, "success")
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		s.observeDuration(evt, "error")
	}
	if evt.Stage != progress.StageRunStart && s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) observeDuration(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleFetchEvent(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.fetchRequests.WithLabelValues(site, statusClass).Inc()
	if evt.Bytes > 0 {
		s.fetchBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(site, statusClass).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handlePageEvent(evt progress.Event) {
	if evt.Records > 0 {
		s.pageRecords.WithLabelValues(evt.Site).Add(float64(evt.Records))
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
