package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Telemetry source modes.
const (
	TelemetryModeSynthetic = "synthetic"
	TelemetryModeHTTP      = "http"
)

// Cache backends.
const (
	CacheBackendLRU    = "lru"
	CacheBackendValkey = "valkey"
)

// Config captures the settings required to boot the investigator.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Logging   LoggingConfig   `yaml:"logging"`
	Rules     RulesConfig     `yaml:"rules"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// TelemetryConfig selects and configures the telemetry source.
type TelemetryConfig struct {
	Mode          string        `yaml:"mode"`
	BaseURL       string        `yaml:"baseURL"`
	QueryPath     string        `yaml:"queryPath"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryInterval time.Duration `yaml:"retryInterval"`
	Seed          int64         `yaml:"seed"`
	FailingAgents []string      `yaml:"failingAgents"`
}

// DispatchConfig bounds the telemetry fan-out.
type DispatchConfig struct {
	AgentTimeout   time.Duration `yaml:"agentTimeout"`
	MaxConcurrency int           `yaml:"maxConcurrency"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RulesConfig controls rule-pack loading for the recommender.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls caching of telemetry responses.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Backend      string        `yaml:"backend"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	LRUSize      int           `yaml:"lruSize"`
	TelemetryTTL time.Duration `yaml:"telemetryTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("INVESTIGATOR_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Mode:          TelemetryModeSynthetic,
			QueryPath:     "/api/v1/telemetry/{agent}/query",
			Timeout:       5 * time.Second,
			MaxRetries:    2,
			RetryInterval: 100 * time.Millisecond,
			Seed:          1,
		},
		Dispatch: DispatchConfig{
			AgentTimeout:   30 * time.Second,
			MaxConcurrency: 0,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Rules:   RulesConfig{Path: "configs/rules/default.yaml"},
		Cache: CacheConfig{
			Enabled:      false,
			Backend:      CacheBackendLRU,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			LRUSize:      512,
			TelemetryTTL: time.Minute,
		},
	}
}

func (c *Config) validate() error {
	switch c.Telemetry.Mode {
	case TelemetryModeSynthetic:
	case TelemetryModeHTTP:
		if c.Telemetry.BaseURL == "" {
			return errors.New("telemetry.baseURL is required in http mode")
		}
	default:
		return fmt.Errorf("unknown telemetry mode %q", c.Telemetry.Mode)
	}
	if c.Telemetry.MaxRetries < 0 {
		return errors.New("telemetry.maxRetries must not be negative")
	}
	switch c.Cache.Backend {
	case CacheBackendLRU, CacheBackendValkey:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Dispatch.MaxConcurrency < 0 {
		return errors.New("dispatch.maxConcurrency must not be negative")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INVESTIGATOR_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("INVESTIGATOR_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("INVESTIGATOR_TELEMETRY_MODE"); v != "" {
		cfg.Telemetry.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("INVESTIGATOR_TELEMETRY_BASE_URL"); v != "" {
		cfg.Telemetry.BaseURL = v
	}
	if v := os.Getenv("INVESTIGATOR_TELEMETRY_QUERY_PATH"); v != "" {
		cfg.Telemetry.QueryPath = v
	}
	if v := os.Getenv("INVESTIGATOR_TELEMETRY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Telemetry.Timeout = d
		}
	}
	if v := os.Getenv("INVESTIGATOR_TELEMETRY_MAX_RETRIES"); v != "" {
		if retry, err := strconv.Atoi(v); err == nil {
			cfg.Telemetry.MaxRetries = retry
		}
	}
	if v := os.Getenv("INVESTIGATOR_TELEMETRY_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telemetry.Seed = seed
		}
	}
	if v := os.Getenv("INVESTIGATOR_TELEMETRY_FAILING_AGENTS"); v != "" {
		cfg.Telemetry.FailingAgents = splitList(v)
	}
	if v := os.Getenv("INVESTIGATOR_AGENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Dispatch.AgentTimeout = d
		}
	}
	if v := os.Getenv("INVESTIGATOR_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dispatch.MaxConcurrency = n
		}
	}
	if v := os.Getenv("INVESTIGATOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("INVESTIGATOR_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("INVESTIGATOR_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("INVESTIGATOR_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("INVESTIGATOR_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("INVESTIGATOR_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("INVESTIGATOR_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("INVESTIGATOR_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("INVESTIGATOR_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("INVESTIGATOR_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("INVESTIGATOR_CACHE_LRU_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.LRUSize = n
		}
	}
	if v := os.Getenv("INVESTIGATOR_CACHE_TELEMETRY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TelemetryTTL = d
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
