// Package config provides configuration for the tutoring runtime.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime configuration.
type Config struct {
	// Server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// Backends
	CompletionURL  string `env:"COMPLETION_URL" envDefault:"http://localhost:8100"`
	AuthURL        string `env:"AUTH_URL" envDefault:"http://localhost:8101"`
	ChatServiceURL string `env:"CHAT_SERVICE_URL"`
	OCRURL         string `env:"OCR_URL" envDefault:"http://localhost:8102"`

	// Local store, used when CHAT_SERVICE_URL is unset.
	DatabasePath string `env:"DATABASE_PATH" envDefault:"tutorcore.db"`

	// Model defaults
	DefaultModel string `env:"DEFAULT_MODEL" envDefault:"qwen-max"`

	// Timeouts. The streaming call carries no timeout; a turn is bounded by
	// cancellation instead.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogDir   string `env:"LOG_DIR" envDefault:"logs"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
