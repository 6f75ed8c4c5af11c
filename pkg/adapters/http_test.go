package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPAdapter_BasicGET(t *testing.T) {
	body := `{
        "data": [
            {"timestamp": "2025-01-01T00:02:00Z", "value": 120.8},
            {"timestamp": "2025-01-01T00:00:00Z", "value": 100.5},
            {"timestamp": "2025-01-01T00:01:00Z", "value": 110.2}
        ]
    }`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("expected Accept: application/json header")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{
		URL:           server.URL,
		ValuePath:     "data.#.value",
		TimestampPath: "data.#.timestamp",
	}

	w, err := adapter.Collect(context.Background(), 600)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	want := []float64{100.5, 110.2, 120.8}
	got := w.Values()
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
	if !w.Samples[0].TS.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected first timestamp %v", w.Samples[0].TS)
	}
}

func TestHTTPAdapter_POSTTemplatesAndHeaders(t *testing.T) {
	var gotBody, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"results": [{"ts": 1704067200, "val": 42.0}]}`)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{
		URL:             server.URL,
		Method:          http.MethodPost,
		Headers:         map[string]string{"Authorization": "Bearer {{.Token}}"},
		Body:            `{"window":"{{.WindowSeconds}}s","step":{{.Step}}}`,
		ValuePath:       "results.#.val",
		TimestampPath:   "results.#.ts",
		TimestampFormat: TimestampUnix,
		TemplateVars:    map[string]string{"Token": "secret"},
	}

	w, err := adapter.Collect(context.Background(), 300)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if gotBody != `{"window":"300s","step":15}` {
		t.Errorf("unexpected body %q", gotBody)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("unexpected Authorization %q", gotAuth)
	}
	if w.Len() != 1 || w.Samples[0].Value != 42 {
		t.Fatalf("unexpected window %+v", w.Samples)
	}
	if w.Samples[0].TS.Unix() != 1704067200 {
		t.Errorf("unexpected ts %v", w.Samples[0].TS)
	}
}

func TestHTTPAdapter_UnixMilliTimestamps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"points": [[1704067200000, 1.5], [1704067260000, 2.5]]}`)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{
		URL:             server.URL,
		ValuePath:       "points.#.1",
		TimestampPath:   "points.#.0",
		TimestampFormat: TimestampUnixMilli,
	}
	w, err := adapter.Collect(context.Background(), 300)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if w.Len() != 2 {
		t.Fatalf("expected 2 samples, got %d", w.Len())
	}
	if w.Samples[1].TS.Sub(w.Samples[0].TS) != time.Minute {
		t.Errorf("unexpected spacing %v", w.Samples[1].TS.Sub(w.Samples[0].TS))
	}
}

func TestHTTPAdapter_SkipsBadPoints(t *testing.T) {
	body := `{"data": [
        {"timestamp": "2025-01-01T00:00:00Z", "value": 1},
        {"timestamp": "2025-01-01T00:01:00Z", "value": "oops"},
        {"timestamp": "yesterday", "value": 3},
        {"timestamp": "2025-01-01T00:03:00Z", "value": null},
        {"timestamp": "2025-01-01T00:04:00Z", "value": "5"}
    ]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer server.Close()

	adapter := &HTTPAdapter{URL: server.URL, ValuePath: "data.#.value", TimestampPath: "data.#.timestamp"}
	w, err := adapter.Collect(context.Background(), 300)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	got := w.Values()
	if len(got) != 2 || got[0] != 1 || got[1] != 5 {
		t.Fatalf("expected [1 5], got %v", got)
	}
}

func TestHTTPAdapter_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, "boom", ErrSourceUnavailable},
		{"not found", http.StatusNotFound, "", ErrSourceUnavailable},
		{"invalid json", http.StatusOK, "{not json", ErrMalformedResponse},
		{"missing value path", http.StatusOK, `{"other": []}`, ErrMalformedResponse},
		{"length mismatch", http.StatusOK, `{"data": {"v": [1, 2], "t": ["2025-01-01T00:00:00Z"]}}`, ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			adapter := &HTTPAdapter{URL: server.URL, ValuePath: "data.v", TimestampPath: "data.t"}
			_, err := adapter.Collect(context.Background(), 300)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestHTTPAdapter_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	adapter := &HTTPAdapter{URL: url, ValuePath: "v", TimestampPath: "t"}
	_, err := adapter.Collect(context.Background(), 300)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestHTTPAdapter_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	adapter := &HTTPAdapter{URL: server.URL, ValuePath: "v", TimestampPath: "t"}
	if _, err := adapter.Collect(ctx, 300); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestHTTPAdapter_ValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		adapter HTTPAdapter
		wantErr string
	}{
		{"valid", HTTPAdapter{URL: "http://x", ValuePath: "v", TimestampPath: "t"}, ""},
		{"missing url", HTTPAdapter{ValuePath: "v", TimestampPath: "t"}, "url is required"},
		{"missing value path", HTTPAdapter{URL: "http://x", TimestampPath: "t"}, "valuePath is required"},
		{"missing timestamp path", HTTPAdapter{URL: "http://x", ValuePath: "v"}, "timestampPath is required"},
		{"bad format", HTTPAdapter{URL: "http://x", ValuePath: "v", TimestampPath: "t", TimestampFormat: "iso"}, "invalid timestampFormat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.adapter.ValidateConfig()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestHTTPAdapter_Name(t *testing.T) {
	if (&HTTPAdapter{}).Name() != "http" {
		t.Error("expected name http")
	}
}
