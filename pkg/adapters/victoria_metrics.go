package adapters

import (
	"context"
	"errors"
	"net/http"
)

// VictoriaMetricsAdapter fetches time-series data from VictoriaMetrics via its
// Prometheus-compatible HTTP API. It issues a /api/v1/query_range call and
// shapes the result exactly like PrometheusAdapter.
type VictoriaMetricsAdapter struct {
	// ServerURL is the base URL to VictoriaMetrics, e.g. http://victoria-metrics:8428
	ServerURL string
	// Query is the MetricsQL/PromQL expression to evaluate.
	Query string
	// StepSeconds controls the resolution (defaults to 15s if <= 0).
	StepSeconds int
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (v *VictoriaMetricsAdapter) Name() string { return "victoria-metrics" }

// Collect implements Adapter.
func (v *VictoriaMetricsAdapter) Collect(ctx context.Context, windowSeconds int) (*Window, error) {
	if v.ServerURL == "" || v.Query == "" {
		return &Window{}, errors.New("victoria metrics adapter: ServerURL and Query are required")
	}
	// VictoriaMetrics returns Prometheus-compatible responses
	return queryRange(ctx, rangeQuery{
		source:        "victoria-metrics",
		serverURL:     v.ServerURL,
		query:         v.Query,
		stepSeconds:   v.StepSeconds,
		windowSeconds: windowSeconds,
		client:        v.HTTPClient,
	})
}
