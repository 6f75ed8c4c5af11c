package controller

import "time"

// Recorder receives controller measurements. The Prometheus implementation
// lives in cmd/sentry/metrics; a nil Recorder disables instrumentation.
type Recorder interface {
	RecordFetch(seconds float64)
	RecordFit(seconds float64)
	RecordRetrain(result string)
	SetModel(ready bool, fittedAt time.Time, samples int)
	RecordDetect(status string, anomalies int)
	RecordScale(action, reason string)
	SetReplicas(n int)
	RecordError(component, reason string)
}

// Retrain results reported to RecordRetrain.
const (
	RetrainOK               = "ok"
	RetrainFetchFailed      = "fetch_failed"
	RetrainInsufficientData = "insufficient_data"
	RetrainFitFailed        = "fit_failed"
)
