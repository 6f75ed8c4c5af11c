// Package config provides configuration parsing and management for the sentry.
//
// Values come from four layers, highest precedence first:
//  1. Command-line flags
//  2. Environment variables
//  3. An optional YAML file (-config-file or CONFIG_FILE)
//  4. Default values
//
// Adapter-specific settings are passed as ADAPTER_* environment variables
// (ADAPTER_QUERY becomes the "query" key) or under adapter_config in the file.
//
// Example usage:
//
//	cfg, err := config.ParseFlags(os.Args[1:])
//	if err != nil { ... }
//	if err := cfg.Validate(); err != nil { ... }
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HatiCode/kedastral-sentry/pkg/anomaly"
	"github.com/HatiCode/kedastral-sentry/pkg/tls"
)

// Model kinds.
const (
	ModelIsolationForest = "isolation-forest"
	ModelMAD             = "mad"
)

// Store kinds.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Orchestrator kinds.
const (
	OrchestratorKubernetes = "kubernetes"
	OrchestratorDryRun     = "dry-run"
)

// Config holds all sentry configuration.
type Config struct {
	ConfigFile string `yaml:"-"`

	Listen       string     `yaml:"listen"`
	HealthListen string     `yaml:"health_listen"`
	LogFormat    string     `yaml:"log_format"`
	LogLevel     string     `yaml:"log_level"`
	TLS          tls.Config `yaml:"tls"`

	// Workload keys the persisted model and names the scale target.
	Workload      string            `yaml:"workload"`
	Adapter       string            `yaml:"adapter"`
	AdapterConfig map[string]string `yaml:"adapter_config"`
	Window        time.Duration     `yaml:"window"`
	Step          time.Duration     `yaml:"step"`
	FetchTimeout  time.Duration     `yaml:"fetch_timeout"`
	// AdapterTLS configures the client used against the metric source.
	AdapterTLS tls.Config `yaml:"adapter_tls"`

	Model           string        `yaml:"model"`
	Contamination   string        `yaml:"contamination"`
	Trees           int           `yaml:"trees"`
	SampleSize      int           `yaml:"sample_size"`
	Seed            int64         `yaml:"seed"`
	RetrainInterval time.Duration `yaml:"retrain_interval"`

	MinReplicas int           `yaml:"min_replicas"`
	MaxReplicas int           `yaml:"max_replicas"`
	Cooldown    time.Duration `yaml:"cooldown"`

	Orchestrator        string        `yaml:"orchestrator"`
	OrchestratorTimeout time.Duration `yaml:"orchestrator_timeout"`
	TargetKind          string        `yaml:"target_kind"`
	TargetName          string        `yaml:"target_name"`
	Namespace           string        `yaml:"namespace"`
	Kubeconfig          string        `yaml:"kubeconfig"`
	DryRunReplicas      int           `yaml:"dry_run_replicas"`

	Storage       string        `yaml:"storage"`
	StoragePath   string        `yaml:"storage_path"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`

	// TracingEndpoint is an OTLP/gRPC collector address. Empty disables export.
	TracingEndpoint string `yaml:"tracing_endpoint"`
	TracingInsecure bool   `yaml:"tracing_insecure"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Listen:              ":8080",
		HealthListen:        ":9090",
		LogFormat:           "text",
		LogLevel:            "info",
		Adapter:             "prometheus",
		AdapterConfig:       map[string]string{},
		Window:              5 * time.Minute,
		Step:                15 * time.Second,
		FetchTimeout:        10 * time.Second,
		Model:               ModelIsolationForest,
		Contamination:       "0.1",
		Trees:               100,
		SampleSize:          256,
		Seed:                42,
		RetrainInterval:     5 * time.Minute,
		MinReplicas:         1,
		MaxReplicas:         10,
		Cooldown:            2 * time.Minute,
		Orchestrator:        OrchestratorKubernetes,
		OrchestratorTimeout: 5 * time.Second,
		TargetKind:          "deployment",
		Namespace:           "default",
		DryRunReplicas:      1,
		Storage:             StoreFile,
		StoragePath:         "/var/lib/sentry",
		RedisAddr:           "localhost:6379",
		TracingInsecure:     true,
	}
}

// ParseFlags builds a Config from the given arguments (without the program
// name), the environment and the optional config file.
func ParseFlags(args []string) (*Config, error) {
	cfg := Defaults()

	path := configFileFrom(args)
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	fs := flag.NewFlagSet("sentry", flag.ContinueOnError)

	fs.StringVar(&cfg.ConfigFile, "config-file", path, "YAML configuration file")
	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", cfg.Listen), "HTTP listen address")
	fs.StringVar(&cfg.HealthListen, "health-listen", getEnv("HEALTH_LISTEN", cfg.HealthListen), "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", cfg.LogFormat), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", cfg.LogLevel), "Log level: debug, info, warn, error")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", cfg.TLS.Enabled), "Enable TLS for HTTP server")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", cfg.TLS.CertFile), "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", cfg.TLS.KeyFile), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", cfg.TLS.CAFile), "TLS CA certificate file for client verification")

	fs.StringVar(&cfg.Workload, "workload", getEnv("WORKLOAD", cfg.Workload), "Workload name (required)")
	fs.StringVar(&cfg.Adapter, "adapter", getEnv("ADAPTER", cfg.Adapter), "Adapter type: prometheus, victoriametrics, or http")
	adapterURL := fs.String("adapter-url", "", "Metric source URL (overrides ADAPTER_URL)")
	adapterQuery := fs.String("adapter-query", "", "Metric query (overrides ADAPTER_QUERY)")
	fs.DurationVar(&cfg.Window, "window", getEnvDuration("WINDOW", cfg.Window), "Lookback window for training and detection")
	fs.DurationVar(&cfg.Step, "step", getEnvDuration("STEP", cfg.Step), "Range query resolution")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", getEnvDuration("FETCH_TIMEOUT", cfg.FetchTimeout), "Timeout for each metric fetch")

	fs.BoolVar(&cfg.AdapterTLS.Enabled, "adapter-tls-enabled", getEnvBool("ADAPTER_TLS_ENABLED", cfg.AdapterTLS.Enabled), "Use TLS settings for the metric source client")
	fs.StringVar(&cfg.AdapterTLS.CertFile, "adapter-tls-cert-file", getEnv("ADAPTER_TLS_CERT_FILE", cfg.AdapterTLS.CertFile), "Client certificate for the metric source")
	fs.StringVar(&cfg.AdapterTLS.KeyFile, "adapter-tls-key-file", getEnv("ADAPTER_TLS_KEY_FILE", cfg.AdapterTLS.KeyFile), "Client key for the metric source")
	fs.StringVar(&cfg.AdapterTLS.CAFile, "adapter-tls-ca-file", getEnv("ADAPTER_TLS_CA_FILE", cfg.AdapterTLS.CAFile), "CA bundle for the metric source")

	fs.StringVar(&cfg.Model, "model", getEnv("MODEL", cfg.Model), "Anomaly model: isolation-forest or mad")
	fs.StringVar(&cfg.Contamination, "contamination", getEnv("CONTAMINATION", cfg.Contamination), "Expected outlier fraction (0.1 or p10)")
	fs.IntVar(&cfg.Trees, "trees", getEnvInt("TREES", cfg.Trees), "Isolation forest tree count")
	fs.IntVar(&cfg.SampleSize, "sample-size", getEnvInt("SAMPLE_SIZE", cfg.SampleSize), "Isolation forest subsample size")
	fs.Int64Var(&cfg.Seed, "seed", int64(getEnvInt("SEED", int(cfg.Seed))), "Random seed for model fitting")
	fs.DurationVar(&cfg.RetrainInterval, "retrain-interval", getEnvDuration("RETRAIN_INTERVAL", cfg.RetrainInterval), "Time between retrains")

	fs.IntVar(&cfg.MinReplicas, "min", getEnvInt("MIN_REPLICAS", cfg.MinReplicas), "Minimum replicas")
	fs.IntVar(&cfg.MaxReplicas, "max", getEnvInt("MAX_REPLICAS", cfg.MaxReplicas), "Maximum replicas")
	fs.DurationVar(&cfg.Cooldown, "cooldown", getEnvDuration("COOLDOWN", cfg.Cooldown), "Minimum time between scale actions")

	fs.StringVar(&cfg.Orchestrator, "orchestrator", getEnv("ORCHESTRATOR", cfg.Orchestrator), "Orchestrator: kubernetes or dry-run")
	fs.DurationVar(&cfg.OrchestratorTimeout, "orchestrator-timeout", getEnvDuration("ORCHESTRATOR_TIMEOUT", cfg.OrchestratorTimeout), "Timeout for each orchestrator call")
	fs.StringVar(&cfg.TargetKind, "target-kind", getEnv("TARGET_KIND", cfg.TargetKind), "Scale target kind: deployment or statefulset")
	fs.StringVar(&cfg.TargetName, "target-name", getEnv("TARGET_NAME", cfg.TargetName), "Scale target name (defaults to workload)")
	fs.StringVar(&cfg.Namespace, "namespace", getEnv("NAMESPACE", cfg.Namespace), "Scale target namespace")
	fs.StringVar(&cfg.Kubeconfig, "kubeconfig", getEnv("KUBECONFIG", cfg.Kubeconfig), "Path to kubeconfig (empty tries in-cluster first)")
	fs.IntVar(&cfg.DryRunReplicas, "dry-run-replicas", getEnvInt("DRY_RUN_REPLICAS", cfg.DryRunReplicas), "Initial replicas for the dry-run orchestrator")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", cfg.Storage), "Model store: file, redis or memory")
	fs.StringVar(&cfg.StoragePath, "storage-path", getEnv("STORAGE_PATH", cfg.StoragePath), "Directory for the file store")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", cfg.RedisAddr), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", cfg.RedisPassword), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", cfg.RedisDB), "Redis database number")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", cfg.RedisTTL), "Redis snapshot TTL (0 keeps forever)")

	fs.StringVar(&cfg.TracingEndpoint, "tracing-endpoint", getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.TracingEndpoint), "OTLP gRPC endpoint (empty disables tracing export)")
	fs.BoolVar(&cfg.TracingInsecure, "tracing-insecure", getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", cfg.TracingInsecure), "Disable TLS for the OTLP exporter")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.AdapterConfig == nil {
		cfg.AdapterConfig = map[string]string{}
	}
	for k, v := range parseAdapterConfig() {
		cfg.AdapterConfig[k] = v
	}
	if *adapterURL != "" {
		cfg.AdapterConfig["url"] = *adapterURL
	}
	if *adapterQuery != "" {
		cfg.AdapterConfig["query"] = *adapterQuery
	}
	if cfg.TargetName == "" {
		cfg.TargetName = cfg.Workload
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// configFileFrom finds -config-file in args, then CONFIG_FILE. The file has
// to be loaded before flag defaults are computed, so it is scanned up front.
func configFileFrom(args []string) string {
	for i, a := range args {
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config-file="); ok {
			return v
		}
		if name == "config-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv("CONFIG_FILE")
}

var workloadNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_.-]{0,251}[a-zA-Z0-9])?$`)

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Workload == "" {
		errs = append(errs, errors.New("workload is required"))
	} else if !workloadNameRegex.MatchString(c.Workload) {
		errs = append(errs, fmt.Errorf("invalid workload name %q", c.Workload))
	}

	switch c.Adapter {
	case "prometheus", "victoriametrics":
		if c.AdapterConfig["query"] == "" {
			errs = append(errs, fmt.Errorf("adapter %s requires a query (ADAPTER_QUERY or -adapter-query)", c.Adapter))
		}
	case "http":
		if c.AdapterConfig["url"] == "" {
			errs = append(errs, errors.New("adapter http requires a url (ADAPTER_URL or -adapter-url)"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid adapter %q (must be prometheus, victoriametrics, or http)", c.Adapter))
	}

	if c.Step <= 0 {
		errs = append(errs, errors.New("step must be > 0"))
	}
	if c.Window < c.Step {
		errs = append(errs, fmt.Errorf("window (%v) must be >= step (%v)", c.Window, c.Step))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("fetch timeout must be > 0"))
	}
	if c.RetrainInterval <= 0 {
		errs = append(errs, errors.New("retrain interval must be > 0"))
	}

	if c.Model != ModelIsolationForest && c.Model != ModelMAD {
		errs = append(errs, fmt.Errorf("invalid model %q (must be isolation-forest or mad)", c.Model))
	}
	if _, err := anomaly.ParseContamination(c.Contamination); err != nil {
		errs = append(errs, err)
	}
	if c.Trees < 0 || c.SampleSize < 0 {
		errs = append(errs, errors.New("trees and sample size must be >= 0"))
	}

	if c.MinReplicas < 0 {
		errs = append(errs, fmt.Errorf("min replicas cannot be negative, got %d", c.MinReplicas))
	}
	if c.MaxReplicas <= 0 {
		errs = append(errs, fmt.Errorf("max replicas must be > 0, got %d", c.MaxReplicas))
	}
	if c.MaxReplicas < c.MinReplicas {
		errs = append(errs, fmt.Errorf("max replicas (%d) < min replicas (%d)", c.MaxReplicas, c.MinReplicas))
	}
	if c.Cooldown < 0 {
		errs = append(errs, errors.New("cooldown cannot be negative"))
	}

	switch c.Orchestrator {
	case OrchestratorKubernetes:
		if c.TargetKind != "deployment" && c.TargetKind != "statefulset" {
			errs = append(errs, fmt.Errorf("invalid target kind %q (must be deployment or statefulset)", c.TargetKind))
		}
	case OrchestratorDryRun:
		if c.DryRunReplicas < 0 {
			errs = append(errs, errors.New("dry-run replicas cannot be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid orchestrator %q (must be kubernetes or dry-run)", c.Orchestrator))
	}

	switch c.Storage {
	case StoreFile:
		if c.StoragePath == "" {
			errs = append(errs, errors.New("file storage requires a storage path"))
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis storage requires a redis address"))
		}
		if c.RedisTTL < 0 {
			errs = append(errs, errors.New("redis ttl cannot be negative"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid storage %q (must be file, redis, or memory)", c.Storage))
	}

	if err := c.TLS.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// parseAdapterConfig parses ADAPTER_* environment variables into a generic configuration map.
// Names are converted to lower camel case: ADAPTER_VALUE_PATH becomes valuePath.
func parseAdapterConfig() map[string]string {
	config := make(map[string]string)
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(key, "ADAPTER_TLS_") {
			continue
		}
		if name, found := strings.CutPrefix(key, "ADAPTER_"); found && name != "" {
			config[toLowerCamelCase(name)] = value
		}
	}
	return config
}

func toLowerCamelCase(s string) string {
	parts := strings.Split(strings.ToLower(s), "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			p = strings.ToUpper(p[:1]) + p[1:]
		}
		b.WriteString(p)
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
