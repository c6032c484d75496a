package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/schemalift-inc/schemalift-engine/pkg/apperrors"
)

// Config holds all configuration for the schemalift analyzer binary.
// Configuration can come from a YAML file (config.yaml) or environment
// variables; environment variables always override YAML values. The
// dataset DSN may embed credentials, so it is accepted from the
// environment only.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// Dataset is the imported dataset under analysis.
	Dataset DatasetConfig `yaml:"dataset"`

	// Metadata points at the source system's exported link metadata.
	Metadata MetadataConfig `yaml:"metadata"`

	// Redis configures the optional progress event publisher.
	Redis RedisConfig `yaml:"redis"`

	// Analysis holds the pipeline tunables.
	Analysis AnalysisConfig `yaml:"analysis"`

	// Report controls where the proposal report is written.
	Report ReportConfig `yaml:"report"`
}

// DatasetConfig identifies the backing store holding the imported tables.
type DatasetConfig struct {
	// DSN is the connection string: postgres://, sqlserver://, sqlite://,
	// or a bare path to a SQLite file. May embed credentials, so it is
	// not read from YAML.
	DSN string `yaml:"-" env:"DATASET_DSN"`

	// Schema restricts analysis to one schema where the store has
	// schemas (PostgreSQL, SQL Server).
	Schema string `yaml:"schema" env:"DATASET_SCHEMA" env-default:"public"`

	// CacheTTLMinutes is how long the profiled table snapshot is reused
	// across runs against the same DSN.
	CacheTTLMinutes int `yaml:"cache_ttl_minutes" env:"DATASET_CACHE_TTL_MINUTES" env-default:"10"`
}

// MetadataConfig locates the optional declared-link export.
type MetadataConfig struct {
	// Path is a YAML file with the source system's table aliases and
	// link descriptors. Empty disables schema evidence.
	Path string `yaml:"path" env:"METADATA_PATH" env-default:""`
}

// RedisConfig holds the optional Redis progress publisher settings.
type RedisConfig struct {
	// Host empty disables Redis progress publishing.
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Channel  string `yaml:"channel" env:"REDIS_CHANNEL" env-default:""`
}

// AnalysisConfig holds the pipeline tunables exposed to operators. Zero
// values fall back to the engine defaults.
type AnalysisConfig struct {
	Concurrency               int     `yaml:"concurrency" env:"ANALYSIS_CONCURRENCY" env-default:"4"`
	NamingSimilarityThreshold float64 `yaml:"naming_similarity_threshold" env:"ANALYSIS_NAMING_SIMILARITY_THRESHOLD" env-default:"0.8"`
	MinDistinctSourceValues   int64   `yaml:"min_distinct_source_values" env:"ANALYSIS_MIN_DISTINCT_SOURCE_VALUES" env-default:"5"`
	MinMatchedValues          int64   `yaml:"min_matched_values" env:"ANALYSIS_MIN_MATCHED_VALUES" env-default:"3"`
	ReviewThreshold           float64 `yaml:"review_threshold" env:"ANALYSIS_REVIEW_THRESHOLD" env-default:"0.8"`
}

// ReportConfig controls report output.
type ReportConfig struct {
	// OutputPath is the file the JSON report is written to. "-" writes
	// to stdout.
	OutputPath string `yaml:"output_path" env:"REPORT_OUTPUT_PATH" env-default:"-"`
	// Pretty enables indented JSON.
	Pretty bool `yaml:"pretty" env:"REPORT_PRETTY" env-default:"true"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. A missing config.yaml is fine; the environment alone is
// enough. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Redis.Host = ResolveHostForDocker(cfg.Redis.Host)
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Dataset.DSN == "" {
		return fmt.Errorf("%w: DATASET_DSN is required", apperrors.ErrInvalidConfiguration)
	}
	if c.Analysis.NamingSimilarityThreshold < 0 || c.Analysis.NamingSimilarityThreshold > 1 {
		return fmt.Errorf("%w: naming_similarity_threshold must be in [0,1]", apperrors.ErrInvalidConfiguration)
	}
	if c.Analysis.ReviewThreshold < 0 || c.Analysis.ReviewThreshold > 1 {
		return fmt.Errorf("%w: review_threshold must be in [0,1]", apperrors.ErrInvalidConfiguration)
	}
	if c.Metadata.Path != "" {
		if _, err := os.Stat(c.Metadata.Path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: metadata file %s does not exist", apperrors.ErrInvalidConfiguration, c.Metadata.Path)
			}
			return fmt.Errorf("stat metadata file: %w", err)
		}
	}
	return nil
}

// RedisAddr returns the host:port address of the progress publisher, or
// "" when Redis is not configured.
func (c *Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
