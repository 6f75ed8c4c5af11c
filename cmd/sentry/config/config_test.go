package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{"environment variable set", "SENTRY_TEST_VAR", "default", "from-env", "from-env"},
		{"environment variable not set", "SENTRY_NONEXISTENT_VAR", "default", "", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		want         int
	}{
		{"valid integer", "42", 10, 42},
		{"invalid integer", "not-a-number", 10, 10},
		{"not set", "", 99, 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("SENTRY_TEST_INT", tt.envValue)
			}
			if got := getEnvInt("SENTRY_TEST_INT", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue time.Duration
		want         time.Duration
	}{
		{"valid duration", "5m", time.Minute, 5 * time.Minute},
		{"invalid duration", "not-a-duration", 30 * time.Second, 30 * time.Second},
		{"not set", "", 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("SENTRY_TEST_DURATION", tt.envValue)
			}
			if got := getEnvDuration("SENTRY_TEST_DURATION", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	for in, want := range map[string]bool{"true": true, "1": true, "false": false, "yes": false} {
		t.Setenv("SENTRY_TEST_BOOL", in)
		if got := getEnvBool("SENTRY_TEST_BOOL", !want); got != want {
			t.Errorf("getEnvBool(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := ParseFlags([]string{"-workload=test-api"})
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":8080")
	}
	if cfg.Window != 5*time.Minute {
		t.Errorf("Window = %v, want 5m", cfg.Window)
	}
	if cfg.Step != 15*time.Second {
		t.Errorf("Step = %v, want 15s", cfg.Step)
	}
	if cfg.Model != ModelIsolationForest {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.Contamination != "0.1" {
		t.Errorf("Contamination = %q, want 0.1", cfg.Contamination)
	}
	if cfg.RetrainInterval != 5*time.Minute {
		t.Errorf("RetrainInterval = %v, want 5m", cfg.RetrainInterval)
	}
	if cfg.MinReplicas != 1 || cfg.MaxReplicas != 10 {
		t.Errorf("replicas = [%d, %d], want [1, 10]", cfg.MinReplicas, cfg.MaxReplicas)
	}
	if cfg.Storage != StoreFile {
		t.Errorf("Storage = %q, want file", cfg.Storage)
	}
	if cfg.TargetName != "test-api" {
		t.Errorf("TargetName = %q, want workload name", cfg.TargetName)
	}
	if cfg.LogFormat != "text" || cfg.LogLevel != "info" {
		t.Errorf("log = %s/%s, want text/info", cfg.LogFormat, cfg.LogLevel)
	}
}

func TestParseFlags_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("MIN_REPLICAS", "3")
	t.Setenv("MAX_REPLICAS", "30")
	t.Setenv("COOLDOWN", "5m")
	t.Setenv("ADAPTER_QUERY", "from_env")

	cfg, err := ParseFlags([]string{
		"-workload=my-api",
		"-max=50",
		"-model=mad",
		"-contamination=p5",
		"-adapter-query=from_flag",
		"-log-format=json",
	})
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	if cfg.MinReplicas != 3 {
		t.Errorf("MinReplicas = %d, want 3 from env", cfg.MinReplicas)
	}
	if cfg.MaxReplicas != 50 {
		t.Errorf("MaxReplicas = %d, want 50 from flag", cfg.MaxReplicas)
	}
	if cfg.Cooldown != 5*time.Minute {
		t.Errorf("Cooldown = %v, want 5m", cfg.Cooldown)
	}
	if cfg.AdapterConfig["query"] != "from_flag" {
		t.Errorf("query = %q, want from_flag", cfg.AdapterConfig["query"])
	}
	if cfg.Model != ModelMAD || cfg.Contamination != "p5" || cfg.LogFormat != "json" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestParseFlags_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentry.yaml")
	yaml := `
workload: checkout
adapter: victoriametrics
adapter_config:
  url: http://vm:8428
  query: sum(rate(requests_total[1m]))
window: 10m
cooldown: 90s
min_replicas: 2
max_replicas: 8
storage: redis
redis_addr: redis:6379
redis_ttl: 1h
tls:
  enabled: false
  cert_file: /etc/tls/tls.crt
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MAX_REPLICAS", "12")

	cfg, err := ParseFlags([]string{"-config-file", path, "-cooldown=3m"})
	if err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q", cfg.ConfigFile)
	}
	if cfg.Workload != "checkout" || cfg.Adapter != "victoriametrics" {
		t.Errorf("workload/adapter = %s/%s", cfg.Workload, cfg.Adapter)
	}
	if cfg.AdapterConfig["url"] != "http://vm:8428" {
		t.Errorf("adapter url = %q", cfg.AdapterConfig["url"])
	}
	if cfg.Window != 10*time.Minute {
		t.Errorf("Window = %v, want 10m from file", cfg.Window)
	}
	if cfg.Cooldown != 3*time.Minute {
		t.Errorf("Cooldown = %v, want 3m from flag", cfg.Cooldown)
	}
	if cfg.MinReplicas != 2 || cfg.MaxReplicas != 12 {
		t.Errorf("replicas = [%d, %d], want [2, 12]", cfg.MinReplicas, cfg.MaxReplicas)
	}
	if cfg.Storage != StoreRedis || cfg.RedisTTL != time.Hour {
		t.Errorf("storage = %s ttl %v", cfg.Storage, cfg.RedisTTL)
	}
	if cfg.TLS.CertFile != "/etc/tls/tls.crt" {
		t.Errorf("TLS.CertFile = %q", cfg.TLS.CertFile)
	}
}

func TestParseFlags_ConfigFileErrors(t *testing.T) {
	if _, err := ParseFlags([]string{"-config-file=/nonexistent/sentry.yaml"}); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("window: [not, a, duration]"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseFlags([]string{"--config-file=" + path}); err == nil {
		t.Error("expected error for malformed file")
	}
}

func TestParseFlags_UnknownFlag(t *testing.T) {
	if _, err := ParseFlags([]string{"-horizon=1h"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestParseAdapterConfig(t *testing.T) {
	t.Setenv("ADAPTER_URL", "http://metrics:9090")
	t.Setenv("ADAPTER_VALUE_PATH", "data.#.v")
	t.Setenv("ADAPTER_TLS_CA_FILE", "/etc/ca.crt")

	got := parseAdapterConfig()
	if got["url"] != "http://metrics:9090" {
		t.Errorf("url = %q", got["url"])
	}
	if got["valuePath"] != "data.#.v" {
		t.Errorf("valuePath = %q", got["valuePath"])
	}
	for k := range got {
		if strings.HasPrefix(strings.ToLower(k), "tls") {
			t.Errorf("TLS settings must not leak into adapter config: %q", k)
		}
	}
}

func TestToLowerCamelCase(t *testing.T) {
	tests := map[string]string{
		"QUERY":            "query",
		"VALUE_PATH":       "valuePath",
		"TIMESTAMP_FORMAT": "timestampFormat",
		"TEMPLATE_VARS":    "templateVars",
		"":                 "",
	}
	for in, want := range tests {
		if got := toLowerCamelCase(in); got != want {
			t.Errorf("toLowerCamelCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func validConfig() *Config {
	cfg := Defaults()
	cfg.Workload = "web"
	cfg.AdapterConfig = map[string]string{"query": "up"}
	cfg.TargetName = "web"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing workload", func(c *Config) { c.Workload = "" }, "workload is required"},
		{"bad workload name", func(c *Config) { c.Workload = "bad/name" }, "invalid workload name"},
		{"missing query", func(c *Config) { c.AdapterConfig = map[string]string{} }, "requires a query"},
		{"http needs url", func(c *Config) { c.Adapter = "http" }, "requires a url"},
		{"unknown adapter", func(c *Config) { c.Adapter = "graphite" }, "invalid adapter"},
		{"window below step", func(c *Config) { c.Window = 5 * time.Second }, "must be >= step"},
		{"zero interval", func(c *Config) { c.RetrainInterval = 0 }, "retrain interval"},
		{"unknown model", func(c *Config) { c.Model = "lstm" }, "invalid model"},
		{"contamination too high", func(c *Config) { c.Contamination = "0.6" }, "contamination"},
		{"negative min", func(c *Config) { c.MinReplicas = -1 }, "cannot be negative"},
		{"zero max", func(c *Config) { c.MaxReplicas = 0 }, "must be > 0"},
		{"max below min", func(c *Config) { c.MinReplicas = 5; c.MaxReplicas = 3 }, "< min replicas"},
		{"negative cooldown", func(c *Config) { c.Cooldown = -time.Second }, "cooldown"},
		{"bad target kind", func(c *Config) { c.TargetKind = "daemonset" }, "invalid target kind"},
		{"unknown orchestrator", func(c *Config) { c.Orchestrator = "nomad" }, "invalid orchestrator"},
		{"dry run", func(c *Config) { c.Orchestrator = OrchestratorDryRun; c.TargetKind = "" }, ""},
		{"unknown storage", func(c *Config) { c.Storage = "s3" }, "invalid storage"},
		{"file without path", func(c *Config) { c.StoragePath = "" }, "storage path"},
		{"redis negative ttl", func(c *Config) { c.Storage = StoreRedis; c.RedisTTL = -time.Second }, "redis ttl"},
		{"tls without files", func(c *Config) { c.TLS.Enabled = true }, "tls enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Workload = ""
	cfg.MaxReplicas = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	if !strings.Contains(err.Error(), "workload is required") || !strings.Contains(err.Error(), "max replicas must be > 0") {
		t.Errorf("Validate() error = %v, want both problems", err)
	}
}
