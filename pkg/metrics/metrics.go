// Package metrics records scheduling decisions as prometheus metrics and keeps
// per strategy selection statistics for hybrid strategies.
package metrics

import (
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

const namespace = "cadence"

// Recorder owns a private registry with the scheduler metrics
type Recorder struct {
	registry *prometheus.Registry

	updates     *prometheus.CounterVec
	intervals   *prometheus.HistogramVec
	delegates   *prometheus.CounterVec
	modelErrors *prometheus.CounterVec
	newItems    *prometheus.CounterVec
}

// NewRecorder creates a recorder and registers its collectors
func NewRecorder() (*Recorder, error) {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "updates_total",
				Help:      "Number of interval updates per strategy",
			},
			[]string{"strategy"},
		),
		intervals: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "update_interval_minutes",
				Help:      "Scheduled poll intervals in minutes",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 360, 720, 1440, 10080},
			},
			[]string{"strategy"},
		),
		delegates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delegate_total",
				Help:      "Inner strategy selected by hybrid strategies",
			},
			[]string{"strategy", "delegate"},
		),
		modelErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_errors_total",
				Help:      "Failed model store operations",
			},
			[]string{"operation"},
		),
		newItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "new_items_total",
				Help:      "New items observed at polls",
			},
			[]string{"strategy"},
		),
	}

	for _, c := range []prometheus.Collector{r.updates, r.intervals, r.delegates, r.modelErrors, r.newItems} {
		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return r, nil
}

// RecordUpdate counts one interval update
func (r *Recorder) RecordUpdate(strategy string, interval, newItems int) {
	r.updates.WithLabelValues(strategy).Inc()
	r.intervals.WithLabelValues(strategy).Observe(float64(interval))
	if newItems > 0 {
		r.newItems.WithLabelValues(strategy).Add(float64(newItems))
	}
}

// RecordDelegate counts the inner strategy chosen by a hybrid strategy
func (r *Recorder) RecordDelegate(strategy, delegate string) {
	r.delegates.WithLabelValues(strategy, delegate).Inc()
}

// RecordModelError counts a failed store operation such as "load" or "save"
func (r *Recorder) RecordModelError(operation string) {
	r.modelErrors.WithLabelValues(operation).Inc()
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the metrics over HTTP
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// WriteText writes all metrics in the prometheus text format
func (r *Recorder) WriteText(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	encoder := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", family.GetName(), err)
		}
	}
	return nil
}
