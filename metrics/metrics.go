// Package metrics records resolution run metrics in a dedicated Prometheus
// registry. Runs are batch jobs, so metrics are exported to a node_exporter
// textfile rather than served.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/caremarket/parentry/errors"
)

// Subsidiary outcomes
const (
	OutcomeAssigned  = "assigned"
	OutcomeOrphaned  = "orphaned"
	OutcomeProtected = "manual_protected"
	OutcomeSkipped   = "skipped"
)

// Recorder holds the metrics of one run. A nil *Recorder discards everything.
type Recorder struct {
	registry *prometheus.Registry

	subsidiaries *prometheus.CounterVec
	variants     *prometheus.CounterVec
	swept        *prometheus.CounterVec
	rowDuration  prometheus.Histogram
	lastRun      *prometheus.GaugeVec
	runDuration  prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		subsidiaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parentry",
			Name:      "subsidiaries_total",
			Help:      "Subsidiaries processed by outcome.",
		}, []string{"care_type", "outcome"}),
		variants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parentry",
			Name:      "name_variants_total",
			Help:      "Name variants recorded by context and result.",
		}, []string{"source_context", "result"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parentry",
			Name:      "swept_rows_total",
			Help:      "Stale automated subsidiary rows removed.",
		}, []string{"care_type"}),
		rowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "parentry",
			Name:      "subsidiary_duration_seconds",
			Help:      "Time to resolve and persist one subsidiary.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "parentry",
			Name:      "last_run_timestamp_seconds",
			Help:      "Completion time of the last run by status.",
		}, []string{"status"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "parentry",
			Name:      "last_run_duration_seconds",
			Help:      "Wall-clock duration of the last run.",
		}),
	}

	r.registry.MustRegister(r.subsidiaries, r.variants, r.swept, r.rowDuration, r.lastRun, r.runDuration)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Subsidiary counts one subsidiary outcome.
func (r *Recorder) Subsidiary(careType, outcome string, took time.Duration) {
	if r == nil {
		return
	}
	r.subsidiaries.WithLabelValues(careType, outcome).Inc()
	r.rowDuration.Observe(took.Seconds())
}

// Variant counts one variant write.
func (r *Recorder) Variant(sourceContext string, written, drifted bool) {
	if r == nil {
		return
	}
	result := "written"
	switch {
	case drifted && written:
		result = "drift_overwritten"
	case drifted:
		result = "drift_preserved"
	}
	r.variants.WithLabelValues(sourceContext, result).Inc()
}

// Swept counts rows removed by mark-and-sweep.
func (r *Recorder) Swept(careType string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.swept.WithLabelValues(careType).Add(float64(n))
}

// RunFinished records the terminal state of a run.
func (r *Recorder) RunFinished(status string, started, finished time.Time) {
	if r == nil {
		return
	}
	r.lastRun.WithLabelValues(status).Set(float64(finished.Unix()))
	r.runDuration.Set(finished.Sub(started).Seconds())
}

// WriteTextfile atomically writes all metrics to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrapf(err, "write metrics textfile %s", path)
	}
	return nil
}
