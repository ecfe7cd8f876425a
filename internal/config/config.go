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

// Config captures the settings required to boot the healer service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Reasoner   ReasonerConfig   `yaml:"reasoner"`
	Controller ControllerConfig `yaml:"controller"`
	Detector   DetectorConfig   `yaml:"detector"`
	History    HistoryConfig    `yaml:"history"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// StoreConfig configures the InfluxDB metrics warehouse.
type StoreConfig struct {
	URL         string        `yaml:"url"`
	Token       string        `yaml:"token"`
	Org         string        `yaml:"org"`
	Bucket      string        `yaml:"bucket"`
	Measurement string        `yaml:"measurement"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ReasonerConfig selects and configures the reasoning-service client.
// Provider is resolved once at startup, never per call.
type ReasonerConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"baseURL"`
	APIKey      string        `yaml:"apiKey"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float32       `yaml:"temperature"`
}

// ControllerConfig configures the infrastructure CLI controller.
type ControllerConfig struct {
	Binary          string        `yaml:"binary"`
	Project         string        `yaml:"project"`
	Region          string        `yaml:"region"`
	ScaleTimeout    time.Duration `yaml:"scaleTimeout"`
	RestartTimeout  time.Duration `yaml:"restartTimeout"`
	DescribeTimeout time.Duration `yaml:"describeTimeout"`
	VerifyWait      time.Duration `yaml:"verifyWait"`
}

// DetectorConfig holds default thresholds for anomaly detection. The 5%
// error-rate rule is a fixed constant and deliberately not configurable.
type DetectorConfig struct {
	WindowMinutes      int     `yaml:"windowMinutes"`
	LatencyThresholdMS float64 `yaml:"latencyThresholdMs"`
	KafkaLagThreshold  float64 `yaml:"kafkaLagThreshold"`
}

// HistoryConfig bounds the in-memory incident ring. Capacity 0 keeps
// every incident for the lifetime of the process.
type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

// CacheConfig controls Redis-backed caching of metrics-store aggregates.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Addr       string        `yaml:"addr"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	TLS        bool          `yaml:"tls"`
	SummaryTTL time.Duration `yaml:"summaryTTL"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("VIGIL_HEALER_CONFIG")
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

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    5 * time.Minute,
			GracefulTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			URL:         "http://localhost:8086",
			Org:         "vigil",
			Bucket:      "service_metrics",
			Measurement: "service_health",
			Timeout:     15 * time.Second,
		},
		Reasoner: ReasonerConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Timeout:     60 * time.Second,
			Temperature: 0.1,
		},
		Controller: ControllerConfig{
			Binary:          "gcloud",
			Region:          "europe-west1",
			ScaleTimeout:    60 * time.Second,
			RestartTimeout:  60 * time.Second,
			DescribeTimeout: 30 * time.Second,
			VerifyWait:      10 * time.Second,
		},
		Detector: DetectorConfig{
			WindowMinutes:      5,
			LatencyThresholdMS: 500,
			KafkaLagThreshold:  5000,
		},
		History: HistoryConfig{Capacity: 0},
		Cache: CacheConfig{
			Enabled:    false,
			SummaryTTL: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func validate(cfg *Config) error {
	switch cfg.Reasoner.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unknown reasoner provider %q (want openai or ollama)", cfg.Reasoner.Provider)
	}
	if cfg.Detector.WindowMinutes <= 0 {
		return fmt.Errorf("detector window must be positive, got %d", cfg.Detector.WindowMinutes)
	}
	if cfg.History.Capacity < 0 {
		return fmt.Errorf("history capacity must not be negative, got %d", cfg.History.Capacity)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VIGIL_HEALER_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("VIGIL_HEALER_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("VIGIL_HEALER_STORE_URL"); v != "" {
		cfg.Store.URL = v
	}
	if v := os.Getenv("VIGIL_HEALER_STORE_TOKEN"); v != "" {
		cfg.Store.Token = v
	}
	if v := os.Getenv("VIGIL_HEALER_STORE_ORG"); v != "" {
		cfg.Store.Org = v
	}
	if v := os.Getenv("VIGIL_HEALER_STORE_BUCKET"); v != "" {
		cfg.Store.Bucket = v
	}
	if v := os.Getenv("VIGIL_HEALER_STORE_MEASUREMENT"); v != "" {
		cfg.Store.Measurement = v
	}
	if v := os.Getenv("VIGIL_HEALER_REASONER_PROVIDER"); v != "" {
		cfg.Reasoner.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("VIGIL_HEALER_REASONER_MODEL"); v != "" {
		cfg.Reasoner.Model = v
	}
	if v := os.Getenv("VIGIL_HEALER_REASONER_BASE_URL"); v != "" {
		cfg.Reasoner.BaseURL = v
	}
	if v := os.Getenv("VIGIL_HEALER_REASONER_API_KEY"); v != "" {
		cfg.Reasoner.APIKey = v
	}
	if v := os.Getenv("VIGIL_HEALER_REASONER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Reasoner.Timeout = d
		}
	}
	if v := os.Getenv("VIGIL_HEALER_CONTROLLER_BINARY"); v != "" {
		cfg.Controller.Binary = v
	}
	if v := os.Getenv("VIGIL_HEALER_CONTROLLER_PROJECT"); v != "" {
		cfg.Controller.Project = v
	}
	if v := os.Getenv("VIGIL_HEALER_CONTROLLER_REGION"); v != "" {
		cfg.Controller.Region = v
	}
	if v := os.Getenv("VIGIL_HEALER_DETECTOR_WINDOW_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detector.WindowMinutes = n
		}
	}
	if v := os.Getenv("VIGIL_HEALER_DETECTOR_LATENCY_THRESHOLD_MS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detector.LatencyThresholdMS = f
		}
	}
	if v := os.Getenv("VIGIL_HEALER_DETECTOR_KAFKA_LAG_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detector.KafkaLagThreshold = f
		}
	}
	if v := os.Getenv("VIGIL_HEALER_HISTORY_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.History.Capacity = n
		}
	}
	if v := os.Getenv("VIGIL_HEALER_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("VIGIL_HEALER_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("VIGIL_HEALER_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("VIGIL_HEALER_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("VIGIL_HEALER_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("VIGIL_HEALER_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("VIGIL_HEALER_CACHE_SUMMARY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SummaryTTL = d
		}
	}
	if v := os.Getenv("VIGIL_HEALER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("VIGIL_HEALER_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
