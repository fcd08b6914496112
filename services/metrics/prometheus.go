// Package metrics exposes reconciliation measurements to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/carematrix/core/reconcile"
	"github.com/trezcool/carematrix/core/training"
)

const namespace = "carematrix"

// Recorder is a reconcile.Recorder backed by its own registry.
type Recorder struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	locations     *prometheus.CounterVec
	writesApplied *prometheus.CounterVec
	writesHeld    prometheus.Counter
	anomalies     *prometheus.CounterVec
}

var _ reconcile.Recorder = (*Recorder)(nil)

func NewRecorder() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}
	r.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Reconciliation runs by dry-run mode",
	}, []string{"dry_run"})
	r.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Time spent reconciling a batch of matrices",
		Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
	})
	r.locations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "locations_total",
		Help:      "Locations processed by final status",
	}, []string{"status"})
	r.writesApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "writes_applied_total",
		Help:      "Training record writes applied per location",
	}, []string{"location"})
	r.writesHeld = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "writes_held_total",
		Help:      "Writes held back by conflicting validity periods",
	})
	r.anomalies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "anomalies_total",
		Help:      "Anomalies raised by kind",
	}, []string{"kind"})

	r.registry.MustRegister(
		r.runs, r.runDuration, r.locations,
		r.writesApplied, r.writesHeld, r.anomalies,
		collectors.NewGoCollector(),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) RunFinished(dryRun bool, d time.Duration) {
	r.runs.WithLabelValues(strconv.FormatBool(dryRun)).Inc()
	r.runDuration.Observe(d.Seconds())
}

func (r *Recorder) LocationFinished(_ string, status reconcile.LocationStatus) {
	r.locations.WithLabelValues(string(status)).Inc()
}

func (r *Recorder) WritesApplied(locationID string, n int) {
	if n > 0 {
		r.writesApplied.WithLabelValues(locationID).Add(float64(n))
	}
}

func (r *Recorder) WritesHeld(n int) {
	if n > 0 {
		r.writesHeld.Add(float64(n))
	}
}

func (r *Recorder) AnomaliesFound(kind training.AnomalyKind, n int) {
	if n > 0 {
		r.anomalies.WithLabelValues(string(kind)).Add(float64(n))
	}
}
