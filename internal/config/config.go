package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"CURATOR_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"CURATOR_DB_MAX_CONNS" default:"8"`

	EmbedEndpoint string `envconfig:"EMBED_ENDPOINT" default:"http://127.0.0.1:8844/embed"`
	EmbedModel    string `envconfig:"EMBED_MODEL" default:"all-MiniLM-L6-v2"`

	ClassifierHost  string `envconfig:"CLASSIFIER_HOST" default:"http://127.0.0.1:8080/v1"`
	ClassifierModel string `envconfig:"CLASSIFIER_MODEL" default:"gpt-4o-mini"`
	ClassifierToken string `envconfig:"CLASSIFIER_TOKEN" default:""`

	HTTPListenAddr string `envconfig:"HTTP_LISTEN_ADDR" default:":8087"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("CURATOR_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("CURATOR_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("CURATOR_DB_MIN_CONNS (%d) cannot exceed CURATOR_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if strings.TrimSpace(c.EmbedEndpoint) == "" {
		return fmt.Errorf("EMBED_ENDPOINT is required")
	}
	if strings.TrimSpace(c.ClassifierHost) == "" {
		return fmt.Errorf("CLASSIFIER_HOST is required")
	}
	return nil
}
