package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"
)

const (
	defaultStepSeconds = 15
	defaultHTTPTimeout = 10 * time.Second
)

// PrometheusAdapter fetches time-series data from the Prometheus HTTP API.
// It issues a /api/v1/query_range call and returns a *Window of samples.
//
// If multiple series are returned, values with the same timestamp are SUMMED.
type PrometheusAdapter struct {
	// ServerURL is the base URL to Prometheus, e.g. http://prometheus.monitoring.svc:9090
	ServerURL string
	// Query is the PromQL expression to evaluate.
	Query string
	// StepSeconds controls the resolution (defaults to 15s if <= 0).
	StepSeconds int
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (p *PrometheusAdapter) Name() string { return "prometheus" }

// Collect implements Adapter. It queries Prometheus for the last windowSeconds worth
// of data, at StepSeconds resolution. It respects the provided context for
// cancellation and deadlines.
func (p *PrometheusAdapter) Collect(ctx context.Context, windowSeconds int) (*Window, error) {
	if p.ServerURL == "" || p.Query == "" {
		return &Window{}, errors.New("prometheus adapter: ServerURL and Query are required")
	}
	return queryRange(ctx, rangeQuery{
		source:        "prometheus",
		serverURL:     p.ServerURL,
		query:         p.Query,
		stepSeconds:   p.StepSeconds,
		windowSeconds: windowSeconds,
		client:        p.HTTPClient,
	})
}

// rangeQuery holds the parameters shared by every Prometheus-compatible backend.
type rangeQuery struct {
	source        string
	serverURL     string
	query         string
	stepSeconds   int
	windowSeconds int
	client        *http.Client
}

// queryRange runs a /api/v1/query_range request and converts the matrix
// result into a sorted Window.
func queryRange(ctx context.Context, rq rangeQuery) (*Window, error) {
	step := rq.stepSeconds
	if step <= 0 {
		step = defaultStepSeconds
	}
	// end sits on the step grid; consecutive cycles sample the same points
	end := AlignTimestamp(time.Now().UTC(), step)
	start := end.Add(-time.Duration(rq.windowSeconds) * time.Second)

	u, err := url.Parse(rq.serverURL)
	if err != nil {
		return &Window{}, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"

	q := u.Query()
	q.Set("query", rq.query)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	q.Set("step", strconv.Itoa(step))
	u.RawQuery = q.Encode()

	cli := rq.client
	if cli == nil {
		cli = &http.Client{Timeout: defaultHTTPTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &Window{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return &Window{}, fmt.Errorf("%s: %w: %v", rq.source, ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Window{}, fmt.Errorf("%s: %w: status %d: %s", rq.source, ErrSourceUnavailable, resp.StatusCode, string(body))
	}

	var pr PrometheusRangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return &Window{}, fmt.Errorf("%s: %w: decode: %v", rq.source, ErrMalformedResponse, err)
	}
	if pr.Status == "" {
		return &Window{}, fmt.Errorf("%s: %w: missing status", rq.source, ErrMalformedResponse)
	}
	if pr.Status != "success" {
		return &Window{}, fmt.Errorf("%s: %w: status %q: %s", rq.source, ErrSourceUnavailable, pr.Status, pr.Error)
	}
	if pr.Data == nil || pr.Data.Result == nil {
		return &Window{}, fmt.Errorf("%s: %w: missing data.result", rq.source, ErrMalformedResponse)
	}

	return &Window{Samples: AggregateRangeResult(pr.Data.Result)}, nil
}

// PrometheusRangeResponse represents the response from Prometheus (and compatible systems).
type PrometheusRangeResponse struct {
	Status string               `json:"status"`
	Error  string               `json:"error,omitempty"`
	Data   *PrometheusRangeData `json:"data"`
}

// PrometheusRangeData contains the result data from a range query.
type PrometheusRangeData struct {
	ResultType string                 `json:"resultType"`
	Result     []PrometheusRangeSerie `json:"result"`
}

// PrometheusRangeSerie represents a single time series in the result.
type PrometheusRangeSerie struct {
	Metric map[string]string `json:"metric"`
	// Values is an array of [ <unix_time_float>, "<value_string>" ]
	Values [][]any `json:"values"`
}

// AggregateRangeResult flattens multiple series into samples sorted by
// timestamp, summing values at the same timestamp. Pairs with the wrong
// arity, an unparseable timestamp or a non-finite value are skipped.
func AggregateRangeResult(series []PrometheusRangeSerie) []Sample {
	acc := make(map[int64]float64)
	for _, s := range series {
		for _, pair := range s.Values {
			if len(pair) != 2 {
				continue
			}
			tsMilli, ok := parseUnixMilli(pair[0])
			if !ok {
				continue
			}
			val, ok := parseValue(pair[1])
			if !ok {
				continue
			}
			acc[tsMilli] += val
		}
	}

	samples := make([]Sample, 0, len(acc))
	for ts, v := range acc {
		samples = append(samples, Sample{TS: time.UnixMilli(ts).UTC(), Value: v})
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].TS.Before(samples[j].TS)
	})
	return samples
}

func parseUnixMilli(v any) (int64, bool) {
	var sec float64
	switch t := v.(type) {
	case float64:
		sec = t
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		sec = f
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		sec = f
	default:
		return 0, false
	}
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		return 0, false
	}
	return int64(math.Round(sec * 1000)), true
}

func parseValue(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case string:
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = t
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
