// Package metrics provides Prometheus instrumentation for the sentry.
//
// Metrics exposed:
//   - sentry_adapter_fetch_seconds: Histogram of metric fetch duration
//   - sentry_model_fit_seconds: Histogram of model fit duration
//   - sentry_retrains_total: Counter of retrain attempts by result
//   - sentry_model_ready: 1 once a model snapshot is published
//   - sentry_model_age_seconds: Age of the published snapshot
//   - sentry_model_samples: Training samples behind the published snapshot
//   - sentry_detections_total: Counter of detection cycles by status
//   - sentry_anomalies_total: Outliers seen across detection cycles
//   - sentry_last_anomalies: Outliers in the most recent cycle
//   - sentry_scale_actions_total: Scale outcomes by action and reason
//   - sentry_current_replicas: Replica count observed in the last cycle
//   - sentry_errors_total: Counter of errors by component and reason
//
// All metrics carry the workload as a constant label.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements controller.Recorder on top of Prometheus collectors.
type Metrics struct {
	AdapterFetchSeconds prometheus.Histogram
	ModelFitSeconds     prometheus.Histogram
	RetrainsTotal       *prometheus.CounterVec
	ModelReady          prometheus.Gauge
	ModelSamples        prometheus.Gauge
	DetectionsTotal     *prometheus.CounterVec
	AnomaliesTotal      prometheus.Counter
	LastAnomalies       prometheus.Gauge
	ScaleActionsTotal   *prometheus.CounterVec
	CurrentReplicas     prometheus.Gauge
	ErrorsTotal         *prometheus.CounterVec

	// fittedAt holds the snapshot time in unix nanoseconds, 0 when warming.
	fittedAt atomic.Int64
	now      func() time.Time
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default Prometheus registerer.
func New(workload string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"workload": workload}

	m := &Metrics{now: time.Now}

	m.AdapterFetchSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Name:        "sentry_adapter_fetch_seconds",
		Help:        "Time spent fetching a metric window",
		ConstLabels: labels,
		Buckets:     prometheus.DefBuckets,
	})
	m.ModelFitSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Name:        "sentry_model_fit_seconds",
		Help:        "Time spent fitting the anomaly model",
		ConstLabels: labels,
		Buckets:     []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	})
	m.RetrainsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name:        "sentry_retrains_total",
		Help:        "Retrain attempts by result",
		ConstLabels: labels,
	}, []string{"result"})
	m.ModelReady = factory.NewGauge(prometheus.GaugeOpts{
		Name:        "sentry_model_ready",
		Help:        "1 when a fitted model is published, 0 while warming",
		ConstLabels: labels,
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "sentry_model_age_seconds",
		Help:        "Age of the published model snapshot in seconds",
		ConstLabels: labels,
	}, m.modelAge)
	m.ModelSamples = factory.NewGauge(prometheus.GaugeOpts{
		Name:        "sentry_model_samples",
		Help:        "Number of samples the published model was fitted on",
		ConstLabels: labels,
	})
	m.DetectionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name:        "sentry_detections_total",
		Help:        "Detection cycles by status",
		ConstLabels: labels,
	}, []string{"status"})
	m.AnomaliesTotal = factory.NewCounter(prometheus.CounterOpts{
		Name:        "sentry_anomalies_total",
		Help:        "Outliers found across all detection cycles",
		ConstLabels: labels,
	})
	m.LastAnomalies = factory.NewGauge(prometheus.GaugeOpts{
		Name:        "sentry_last_anomalies",
		Help:        "Outliers found in the most recent detection cycle",
		ConstLabels: labels,
	})
	m.ScaleActionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name:        "sentry_scale_actions_total",
		Help:        "Scale outcomes by action and reason",
		ConstLabels: labels,
	}, []string{"action", "reason"})
	m.CurrentReplicas = factory.NewGauge(prometheus.GaugeOpts{
		Name:        "sentry_current_replicas",
		Help:        "Replica count observed in the last detection cycle",
		ConstLabels: labels,
	})
	m.ErrorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name:        "sentry_errors_total",
		Help:        "Total number of errors by component and reason",
		ConstLabels: labels,
	}, []string{"component", "reason"})

	return m
}

// RecordFetch records the time spent fetching a window.
func (m *Metrics) RecordFetch(seconds float64) {
	m.AdapterFetchSeconds.Observe(seconds)
}

// RecordFit records the time spent fitting.
func (m *Metrics) RecordFit(seconds float64) {
	m.ModelFitSeconds.Observe(seconds)
}

func (m *Metrics) RecordRetrain(result string) {
	m.RetrainsTotal.WithLabelValues(result).Inc()
}

// SetModel updates readiness and snapshot metadata.
func (m *Metrics) SetModel(ready bool, fittedAt time.Time, samples int) {
	if !ready {
		m.ModelReady.Set(0)
		m.fittedAt.Store(0)
		m.ModelSamples.Set(0)
		return
	}
	m.ModelReady.Set(1)
	m.fittedAt.Store(fittedAt.UnixNano())
	m.ModelSamples.Set(float64(samples))
}

func (m *Metrics) RecordDetect(status string, anomalies int) {
	m.DetectionsTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		m.AnomaliesTotal.Add(float64(anomalies))
		m.LastAnomalies.Set(float64(anomalies))
	}
}

func (m *Metrics) RecordScale(action, reason string) {
	m.ScaleActionsTotal.WithLabelValues(action, reason).Inc()
}

func (m *Metrics) SetReplicas(n int) {
	m.CurrentReplicas.Set(float64(n))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func (m *Metrics) modelAge() float64 {
	ns := m.fittedAt.Load()
	if ns == 0 {
		return 0
	}
	return m.now().Sub(time.Unix(0, ns)).Seconds()
}
