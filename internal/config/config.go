// Package config reads the runtime settings of the decoding pipeline from
// AUDIMG_* environment variables.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"

	"audimg/internal/storage"
)

// Config holds paths, the result store, parallelism, permutation settings and
// observability endpoints. Study tables are compiled in and never configured.
type Config struct {
	DataDir      string `env:"AUDIMG_DATA_DIR"        envDefault:"data"`
	CacheDir     string `env:"AUDIMG_CACHE_DIR"`
	LegendPath   string `env:"AUDIMG_RUN_LEGEND"`
	ArtifactsDir string `env:"AUDIMG_ARTIFACTS_DIR"   envDefault:"group"`

	StoreKind     string `env:"AUDIMG_STORE"           envDefault:"file"`
	StorePath     string `env:"AUDIMG_STORE_PATH"      envDefault:"results"`
	PostgresDSN   string `env:"AUDIMG_POSTGRES_DSN"`
	S3Bucket      string `env:"AUDIMG_S3_BUCKET"`
	S3Prefix      string `env:"AUDIMG_S3_PREFIX"       envDefault:"partials"`
	S3Region      string `env:"AUDIMG_S3_REGION"`
	S3Endpoint    string `env:"AUDIMG_S3_ENDPOINT"`
	S3PathStyle   bool   `env:"AUDIMG_S3_PATH_STYLE"`
	S3AccessKeyID string `env:"AUDIMG_S3_ACCESS_KEY_ID"`
	S3SecretKey   string `env:"AUDIMG_S3_SECRET_ACCESS_KEY"`

	Workers         int   `env:"AUDIMG_WORKERS"`
	Null            bool  `env:"AUDIMG_NULL"             envDefault:"false"`
	NullRepetitions int   `env:"AUDIMG_NULL_REPETITIONS" envDefault:"10"`
	Seed            int64 `env:"AUDIMG_SEED"             envDefault:"1"`

	LogLevel     string `env:"AUDIMG_LOG_LEVEL"          envDefault:"info"`
	Development  bool   `env:"AUDIMG_LOG_DEVELOPMENT"`
	MetricsFile  string `env:"AUDIMG_METRICS_FILE"`
	OTELEndpoint string `env:"AUDIMG_OTEL_EXPORTER_ENDPOINT"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the environment configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.NullRepetitions < 0 {
		return fmt.Errorf("null repetitions must be >= 0, got %d", c.NullRepetitions)
	}
	switch c.StoreKind {
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("postgres store requires AUDIMG_POSTGRES_DSN")
		}
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("s3 store requires AUDIMG_S3_BUCKET")
		}
	}
	return nil
}

// StoreOptions maps the settings of every backend onto storage options.
func (c Config) StoreOptions() storage.Options {
	return storage.Options{
		Path:        c.StorePath,
		PostgresDSN: c.PostgresDSN,
		S3: storage.S3Options{
			Bucket:          c.S3Bucket,
			Prefix:          c.S3Prefix,
			Region:          c.S3Region,
			Endpoint:        c.S3Endpoint,
			AccessKeyID:     c.S3AccessKeyID,
			SecretAccessKey: c.S3SecretKey,
			PathStyle:       c.S3PathStyle,
		},
	}
}
