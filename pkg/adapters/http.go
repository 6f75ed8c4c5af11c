package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
)

// Timestamp formats understood by HTTPAdapter.
const (
	TimestampRFC3339   = "rfc3339"
	TimestampUnix      = "unix"
	TimestampUnixMilli = "unix_milli"
)

// HTTPAdapter calls an arbitrary JSON endpoint and extracts a series with
// gjson paths. ValuePath and TimestampPath must select arrays of equal length.
//
// Body and header values are Go templates with these variables:
//
//	{{.WindowSeconds}} {{.Start}} {{.End}} {{.Step}} {{.StartRFC3339}} {{.EndRFC3339}}
//
// plus anything set in TemplateVars.
type HTTPAdapter struct {
	URL string
	// Method defaults to GET.
	Method  string
	Headers map[string]string
	Body    string

	ValuePath     string
	TimestampPath string
	// TimestampFormat is one of rfc3339 (default), unix or unix_milli.
	TimestampFormat string

	// StepSeconds is only exposed to templates (defaults to 15s if <= 0).
	StepSeconds int

	HTTPClient   *http.Client
	TemplateVars map[string]string
}

func (h *HTTPAdapter) Name() string { return "http" }

// Collect implements Adapter.
func (h *HTTPAdapter) Collect(ctx context.Context, windowSeconds int) (*Window, error) {
	if err := h.ValidateConfig(); err != nil {
		return &Window{}, fmt.Errorf("http adapter: %w", err)
	}

	step := h.StepSeconds
	if step <= 0 {
		step = defaultStepSeconds
	}

	now := time.Now().UTC().Truncate(time.Second)
	start := now.Add(-time.Duration(windowSeconds) * time.Second)

	vars := map[string]any{
		"WindowSeconds": windowSeconds,
		"Start":         start.Unix(),
		"End":           now.Unix(),
		"Step":          step,
		"StartRFC3339":  start.Format(time.RFC3339),
		"EndRFC3339":    now.Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		vars[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if h.Body != "" {
		rendered, err := renderTemplate(h.Body, vars)
		if err != nil {
			return &Window{}, fmt.Errorf("render body template: %w", err)
		}
		body = strings.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, body)
	if err != nil {
		return &Window{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, vars)
		if err != nil {
			return &Window{}, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: defaultHTTPTimeout}
	}

	resp, err := cli.Do(req)
	if err != nil {
		return &Window{}, fmt.Errorf("http: %w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Window{}, fmt.Errorf("http: %w: status %d: %s", ErrSourceUnavailable, resp.StatusCode, string(msg))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Window{}, fmt.Errorf("http: %w: read body: %v", ErrSourceUnavailable, err)
	}
	if !gjson.ValidBytes(raw) {
		return &Window{}, fmt.Errorf("http: %w: invalid json", ErrMalformedResponse)
	}

	values := gjson.GetBytes(raw, h.ValuePath)
	timestamps := gjson.GetBytes(raw, h.TimestampPath)
	if !values.Exists() {
		return &Window{}, fmt.Errorf("http: %w: value path %q not found", ErrMalformedResponse, h.ValuePath)
	}
	if !timestamps.Exists() {
		return &Window{}, fmt.Errorf("http: %w: timestamp path %q not found", ErrMalformedResponse, h.TimestampPath)
	}

	valArr := values.Array()
	tsArr := timestamps.Array()
	if len(valArr) != len(tsArr) {
		return &Window{}, fmt.Errorf("http: %w: value count (%d) != timestamp count (%d)",
			ErrMalformedResponse, len(valArr), len(tsArr))
	}

	samples := make([]Sample, 0, len(valArr))
	for i := range valArr {
		v, ok := gjsonFloat(valArr[i])
		if !ok {
			continue
		}
		ts, err := h.parseTimestamp(tsArr[i])
		if err != nil {
			continue
		}
		samples = append(samples, Sample{TS: ts, Value: v})
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].TS.Before(samples[j].TS)
	})

	return &Window{Samples: samples}, nil
}

// gjsonFloat accepts JSON numbers and numeric strings.
func gjsonFloat(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
	case gjson.String:
		if _, ok := parseValue(r.Str); !ok {
			return 0, false
		}
	default:
		return 0, false
	}
	f := r.Float()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (h *HTTPAdapter) parseTimestamp(value gjson.Result) (time.Time, error) {
	switch h.TimestampFormat {
	case "", TimestampRFC3339:
		return time.Parse(time.RFC3339, value.String())
	case TimestampUnix:
		if value.Type != gjson.Number && value.Type != gjson.String {
			return time.Time{}, fmt.Errorf("not a number: %s", value.Raw)
		}
		sec := value.Float()
		return time.UnixMilli(int64(math.Round(sec * 1000))).UTC(), nil
	case TimestampUnixMilli:
		if value.Type != gjson.Number && value.Type != gjson.String {
			return time.Time{}, fmt.Errorf("not a number: %s", value.Raw)
		}
		return time.UnixMilli(value.Int()).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", h.TimestampFormat)
	}
}

func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}
	tmpl, err := template.New("").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ValidateConfig checks the static adapter configuration.
func (h *HTTPAdapter) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.ValuePath == "" {
		return errors.New("valuePath is required")
	}
	if h.TimestampPath == "" {
		return errors.New("timestampPath is required")
	}
	switch h.TimestampFormat {
	case "", TimestampRFC3339, TimestampUnix, TimestampUnixMilli:
		return nil
	default:
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, unix, or unix_milli)", h.TimestampFormat)
	}
}
