// Package metrics implements Progress/Metrics (C11): counters, gauges,
// histograms for pipeline throughput and latency, plus anomaly callbacks
// that fire when a tracked rate crosses a configurable threshold.
package metrics

import (
	"net/http"
	"time"

	"github.com/podknow/seeder/pkg/metrics"
)

// Pipeline wraps the stdlib-only Prometheus-text registry with the named
// metrics §4.11 requires.
type Pipeline struct {
	reg *metrics.Registry

	FilesProcessed *metrics.Counter
	FilesFailed    *metrics.Counter
	UnitsCreated   *metrics.Counter
	APICalls       *metrics.Counter
	APIFailures    *metrics.Counter

	MemoryMB   *metrics.Gauge
	QueueDepth *metrics.Gauge

	UnitProcessingDuration *metrics.Histogram
	DBWriteLatencyMS       *metrics.Histogram

	anomalies *AnomalyTracker
}

// New builds a Pipeline registry with every counter/gauge/histogram §4.11
// names pre-registered, plus an anomaly tracker over api call outcomes.
func New() *Pipeline {
	reg := metrics.New()
	p := &Pipeline{
		reg:                    reg,
		FilesProcessed:         reg.Counter("files_processed", "episodes fully processed"),
		FilesFailed:            reg.Counter("files_failed", "episodes that reached a fatal failure"),
		UnitsCreated:           reg.Counter("units_created", "meaningful units persisted"),
		APICalls:               reg.Counter("api_calls", "outbound LLM/embedding calls"),
		APIFailures:            reg.Counter("api_failures", "outbound LLM/embedding calls that failed"),
		MemoryMB:               reg.Gauge("memory_mb", "resident memory in MB"),
		QueueDepth:             reg.Gauge("queue_depth", "unit queue depth"),
		UnitProcessingDuration: reg.Histogram("unit_processing_duration_s", "wall time to fully process one unit", nil),
		DBWriteLatencyMS:       reg.Histogram("db_write_latency_ms", "graph store write transaction latency", []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500}),
	}
	p.anomalies = NewAnomalyTracker(100, 0.20)
	return p
}

// Handler exposes the registry at the conventional /metrics path.
func (p *Pipeline) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.Write([]byte(p.reg.Render()))
	})
}

// RecordAPICall tallies an outbound call's outcome and feeds the anomaly
// tracker; subscribers registered via OnAnomaly are notified synchronously
// if the failure rate crosses its threshold.
func (p *Pipeline) RecordAPICall(success bool) {
	p.APICalls.Inc()
	if !success {
		p.APIFailures.Inc()
	}
	p.anomalies.Record(success)
}

// OnAnomaly registers a callback invoked whenever the API failure rate
// crosses its threshold. Safe to call before or after calls begin.
func (p *Pipeline) OnAnomaly(fn func(Anomaly)) {
	p.anomalies.Subscribe(fn)
}

// Anomaly describes one threshold crossing.
type Anomaly struct {
	Metric    string
	Rate      float64
	Threshold float64
	Window    int
	At        time.Time
}
