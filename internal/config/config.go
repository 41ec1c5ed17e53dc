package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the server configuration read from the environment.
type Config struct {
	DatabaseURL  string `env:"DATABASE_URL"  envDefault:"mongodb://localhost:27017"`
	DatabaseName string `env:"DATABASE_NAME" envDefault:"app_db"`
	FrontendURL  string `env:"FRONTEND_URL"  envDefault:"*"`
	Port         int    `env:"PORT"          envDefault:"8080"`

	// StoreRequired makes startup fail when the store is unreachable instead
	// of serving in a degraded state.
	StoreRequired         bool          `env:"STORE_REQUIRED"          envDefault:"false"`
	StoreAutoSetup        bool          `env:"STORE_AUTO_SETUP"        envDefault:"false"`
	StoreConnectTimeout   time.Duration `env:"STORE_CONNECT_TIMEOUT"   envDefault:"5s"`
	StoreRetryInterval    time.Duration `env:"STORE_RETRY_INTERVAL"    envDefault:"5s"`
	// StoreOperationTimeout bounds each request's store calls; it must stay
	// below HTTPWriteTimeout so failures still reach the client.
	StoreOperationTimeout time.Duration `env:"STORE_OPERATION_TIMEOUT" envDefault:"3s"`

	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT"  envDefault:"10s"`
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10s"`

	// HealthExposeErrors includes the raw store error text in GET /test.
	HealthExposeErrors bool `env:"HEALTH_EXPOSE_ERRORS" envDefault:"true"`

	MessagesDefaultLimit int `env:"MESSAGES_DEFAULT_LIMIT" envDefault:"25"`
	MessagesMaxLimit     int `env:"MESSAGES_MAX_LIMIT"     envDefault:"100"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load reads optional .env files (default ".env") and parses the environment
// into Config. Variables already set in the environment win.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Missing .env files are normal outside local development.
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.StoreConnectTimeout <= 0 {
		return fmt.Errorf("STORE_CONNECT_TIMEOUT must be positive, got %s", c.StoreConnectTimeout)
	}
	if c.StoreRetryInterval <= 0 {
		return fmt.Errorf("STORE_RETRY_INTERVAL must be positive, got %s", c.StoreRetryInterval)
	}
	if c.HTTPReadTimeout <= 0 || c.HTTPWriteTimeout <= 0 {
		return fmt.Errorf("HTTP_READ_TIMEOUT and HTTP_WRITE_TIMEOUT must be positive")
	}
	if c.StoreOperationTimeout <= 0 || c.StoreOperationTimeout >= c.HTTPWriteTimeout {
		return fmt.Errorf("STORE_OPERATION_TIMEOUT (%s) must be positive and below HTTP_WRITE_TIMEOUT (%s)", c.StoreOperationTimeout, c.HTTPWriteTimeout)
	}
	if c.MessagesDefaultLimit < 1 {
		return fmt.Errorf("MESSAGES_DEFAULT_LIMIT must be positive, got %d", c.MessagesDefaultLimit)
	}
	if c.MessagesMaxLimit < c.MessagesDefaultLimit {
		return fmt.Errorf("MESSAGES_MAX_LIMIT (%d) must be >= MESSAGES_DEFAULT_LIMIT (%d)", c.MessagesMaxLimit, c.MessagesDefaultLimit)
	}
	return nil
}
