// Package config loads service configuration from YAML, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"trade-outcome-lab/internal/calibration"
	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/drift"
	"trade-outcome-lab/internal/logger"
	"trade-outcome-lab/internal/notify"
	"trade-outcome-lab/internal/pricefeed"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
)

type Config struct {
	Environment string             `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Server      ServerConfig       `yaml:"server"`
	Log         logger.Config      `yaml:"log"`
	Storage     StorageConfig      `yaml:"storage"`
	PriceFeed   PriceFeedConfig    `yaml:"price_feed"`
	Model       ModelConfig        `yaml:"model"`
	Calibration CalibrationConfig  `yaml:"calibration"`
	Kafka       notify.KafkaConfig `yaml:"kafka"`
	Metrics     MetricsConfig      `yaml:"metrics"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
	// BatchWorkers bounds concurrent counterfactual runs per batch.
	BatchWorkers int `yaml:"batch_workers" default:"4" validate:"gt=0,lte=64"`
}

type StorageConfig struct {
	Backend       string `yaml:"backend" default:"memory" validate:"oneof=memory sql"`
	PostgresDSN   string `yaml:"postgres_dsn" validate:"required_if=Backend sql"`
	ClickhouseDSN string `yaml:"clickhouse_dsn" validate:"required_if=Backend sql"`
	// RunMigrations applies embedded schema migrations on startup.
	RunMigrations bool `yaml:"run_migrations"`
}

type PriceFeedConfig struct {
	BaseURL    string        `yaml:"base_url" default:"https://api.polygon.io" validate:"url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout" default:"15s"`
	MaxRetries int           `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"500ms"`
	RateLimit  struct {
		Calls  int           `yaml:"calls" default:"5" validate:"gte=0"`
		Window time.Duration `yaml:"window" default:"1m"`
	} `yaml:"rate_limit"`
	// Cache enables the Redis range cache in front of the provider.
	Cache struct {
		Enabled bool                  `yaml:"enabled"`
		Redis   pricefeed.RedisConfig `yaml:"redis"`
	} `yaml:"cache"`
	Stream struct {
		Enabled bool                   `yaml:"enabled"`
		Config  pricefeed.StreamConfig `yaml:",inline"`
	} `yaml:"stream"`
}

type ModelConfig struct {
	Path          string  `yaml:"path" default:"models/exit_model.json"`
	ExitThreshold float64 `yaml:"exit_threshold" default:"0.6" validate:"gt=0,lte=1"`
	// Optional starts without a model instead of failing; exit-signal
	// requests then return a configuration error.
	Optional bool `yaml:"optional"`
}

type CalibrationConfig struct {
	ArtifactPath  string                      `yaml:"artifact_path" default:"models/calibration.json"`
	ReportDir     string                      `yaml:"report_dir" default:"output"`
	Weights       calibration.EnsembleWeights `yaml:"weights"`
	Drift         drift.Config                `yaml:"drift"`
	CheckInterval time.Duration               `yaml:"check_interval" default:"24h"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" default:"true"`
	Namespace string `yaml:"namespace" default:"trade_outcome_lab"`
	Path      string `yaml:"path" default:"/metrics"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// Load applies defaults, then the YAML file at path (optional), then
// environment overrides, and validates the result. A .env file in the working directory is loaded first
// without overriding variables already set.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, &domain.ConfigurationError{Setting: "config file", Remediation: "check --config path", Err: err}
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, &domain.ConfigurationError{Setting: "config file", Remediation: "fix YAML syntax", Err: err}
		}
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyEnv overrides secrets and endpoints from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.PriceFeed.Cache.Redis.Addr = v
		c.PriceFeed.Cache.Enabled = true
	}
	if v := os.Getenv("PRICE_API_KEY"); v != "" {
		c.PriceFeed.APIKey = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

var validate = validator.New()

// Validate checks field constraints. Failures are ConfigurationErrors naming
// the offending setting.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &domain.ConfigurationError{
			Setting:     fe.Namespace(),
			Remediation: fmt.Sprintf("value %v fails %q", fe.Value(), fe.Tag()),
			Err:         err,
		}
	}
	return &domain.ConfigurationError{Setting: "config", Err: err}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
