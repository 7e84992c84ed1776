package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/sitepoke/internal/progress"
)

// PrometheusSink exports scan progress metrics via Prometheus. It owns all
// collectors for scans started/finished/running and per-record counters.
type PrometheusSink struct {
	scansStarted  prometheus.Counter
	scansFinished *prometheus.CounterVec
	scansRunning  prometheus.Gauge
	scanRuntime   *prometheus.HistogramVec

	recordsDone    *prometheus.CounterVec
	recordErrors   *prometheus.CounterVec
	recordDuration *prometheus.HistogramVec
	frontierSize   prometheus.Gauge

	tracker *scanTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		scansStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitepoke_scans_started_total",
			Help: "Total scans that have started.",
		}),
		scansFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitepoke_scans_finished_total",
			Help: "Total scans finished partitioned by result.",
		}, []string{"result"}),
		scansRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitepoke_scans_running",
			Help: "Current number of running scans.",
		}),
		scanRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitepoke_scan_runtime_seconds",
			Help:    "Wall time per finished scan.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"result"}),
		recordsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitepoke_records_processed_total",
			Help: "Processed records partitioned by kind and status class.",
		}, []string{"kind", "status_class"}),
		recordErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitepoke_record_errors_total",
			Help: "Per-target fetch errors partitioned by record kind.",
		}, []string{"kind"}),
		recordDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitepoke_record_duration_seconds",
			Help:    "Time spent processing one record across all targets.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"kind"}),
		frontierSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitepoke_frontier_size",
			Help: "Number of discovered URLs in the current frontier.",
		}),
		tracker: newScanTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.scansStarted,
		s.scansFinished,
		s.scansRunning,
		s.scanRuntime,
		s.recordsDone,
		s.recordErrors,
		s.recordDuration,
		s.frontierSize,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageScanStart, progress.StageScanDone, progress.StageScanAborted:
		s.handleScanEvent(evt)
	case progress.StageRecordDone:
		s.handleRecordEvent(evt)
	}
}

func (s *PrometheusSink) handleScanEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageScanStart:
		s.scansStarted.Inc()
		if s.tracker.start(evt.ScanID) {
			s.scansRunning.Inc()
		}
		return
	case progress.StageScanDone:
		s.finish(evt, "completed")
	case progress.StageScanAborted:
		s.finish(evt, "aborted")
	}
	if s.tracker.complete(evt.ScanID) {
		s.scansRunning.Dec()
	}
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.scansFinished.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.scanRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	s.frontierSize.Set(float64(evt.Total))
}

func (s *PrometheusSink) handleRecordEvent(evt progress.Event) {
	kind := evt.Kind
	if kind == "" {
		kind = "unknown"
	}
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.recordsDone.WithLabelValues(kind, statusClass).Inc()
	if evt.Errors > 0 {
		s.recordErrors.WithLabelValues(kind).Add(float64(evt.Errors))
	}
	if evt.Dur > 0 {
		s.recordDuration.WithLabelValues(kind).Observe(evt.Dur.Seconds())
	}
	s.frontierSize.Set(float64(evt.Total))
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type scanTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newScanTracker() *scanTracker {
	return &scanTracker{running: make(map[string]struct{})}
}

func (t *scanTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *scanTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
