package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Adapter kinds accepted by New.
const (
	KindPrometheus      = "prometheus"
	KindVictoriaMetrics = "victoriametrics"
	KindHTTP            = "http"
)

// New creates an adapter based on kind and a flat configuration map.
//
// Recognised keys: url, query (prometheus, victoriametrics); url, method,
// body, valuePath, timestampPath, timestampFormat, headers (JSON object),
// templateVars (JSON object) for http.
//
// timeout bounds every HTTP call the adapter makes; zero uses the 10s default.
func New(kind string, config map[string]string, stepSeconds int, timeout time.Duration) (Adapter, error) {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return NewWithClient(kind, config, stepSeconds, &http.Client{Timeout: timeout})
}

// NewWithClient is New with a caller-supplied client, for TLS or custom
// transports. The client must carry its own timeout.
func NewWithClient(kind string, config map[string]string, stepSeconds int, client *http.Client) (Adapter, error) {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	switch kind {
	case KindPrometheus:
		return newPrometheus(config, stepSeconds, client)
	case KindVictoriaMetrics:
		return newVictoriaMetrics(config, stepSeconds, client)
	case KindHTTP:
		return newHTTP(config, stepSeconds, client)
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be prometheus, victoriametrics, or http)", kind)
	}
}

func newPrometheus(config map[string]string, stepSeconds int, client *http.Client) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("prometheus adapter requires 'query' config")
	}
	url := config["url"]
	if url == "" {
		url = "http://localhost:9090"
	}
	return &PrometheusAdapter{
		ServerURL:   url,
		Query:       query,
		StepSeconds: stepSeconds,
		HTTPClient:  client,
	}, nil
}

func newVictoriaMetrics(config map[string]string, stepSeconds int, client *http.Client) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("victoriametrics adapter requires 'query' config")
	}
	url := config["url"]
	if url == "" {
		url = "http://localhost:8428"
	}
	return &VictoriaMetricsAdapter{
		ServerURL:   url,
		Query:       query,
		StepSeconds: stepSeconds,
		HTTPClient:  client,
	}, nil
}

func newHTTP(config map[string]string, stepSeconds int, client *http.Client) (Adapter, error) {
	a := &HTTPAdapter{
		URL:             config["url"],
		Method:          config["method"],
		Body:            config["body"],
		ValuePath:       config["valuePath"],
		TimestampPath:   config["timestampPath"],
		TimestampFormat: config["timestampFormat"],
		StepSeconds:     stepSeconds,
		HTTPClient:      client,
	}
	if a.Method == "" {
		a.Method = http.MethodGet
	}
	if a.TimestampFormat == "" {
		a.TimestampFormat = TimestampRFC3339
	}
	if raw := config["headers"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &a.Headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}
	if raw := config["templateVars"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &a.TemplateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}
	if err := a.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}
	return a, nil
}
