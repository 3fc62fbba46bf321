// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every setting the service reads at startup
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Port        string `env:"PORT" envDefault:"3000"`
	GRPCPort    string `env:"GRPC_PORT" envDefault:"50051"`

	DBDriver    string `env:"DB_DRIVER" envDefault:"memory"`
	SQLiteFile  string `env:"SQLITE_FILE" envDefault:"dev.sqlite"`
	DatabaseURL string `env:"DATABASE_URL"`

	NATSURL     string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSSubject string `env:"NATS_SUBJECT" envDefault:"draft.events"`

	ClickHouseAddr     string `env:"CLICKHOUSE_ADDR" envDefault:"localhost:9000"`
	ClickHouseDB       string `env:"CLICKHOUSE_DB" envDefault:"default"`
	ClickHouseUser     string `env:"CLICKHOUSE_USER" envDefault:"default"`
	ClickHousePassword string `env:"CLICKHOUSE_PASSWORD"`

	CatalogDir string `env:"CATALOG_DIR" envDefault:"data"`

	SaveTimeout       time.Duration `env:"SAVE_TIMEOUT" envDefault:"5s"`
	RetentionMaxAge   time.Duration `env:"RETENTION_MAX_AGE" envDefault:"720h"`
	RetentionMaxCount int           `env:"RETENTION_MAX_COUNT" envDefault:"1000"`

	AutoBotPicks bool `env:"AUTO_BOT_PICKS" envDefault:"true"`

	AuthMode         string `env:"AUTH_MODE" envDefault:"none"`
	OIDCIssuerURL    string `env:"OIDC_ISSUER_URL"`
	OIDCClientID     string `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret string `env:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL  string `env:"OIDC_REDIRECT_URL"`
	OIDCLogoutURL    string `env:"OIDC_LOGOUT_URL"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment into a Config and checks it
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

// Validate rejects combinations the service cannot start with
func (c Config) Validate() error {
	switch c.DBDriver {
	case "memory", "sqlite":
	case "postgres":
		// development falls back to a SQLite stand-in
		if c.DatabaseURL == "" && !c.Development() {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q (valid: memory, sqlite, postgres)", c.DBDriver)
	}
	switch c.AuthMode {
	case "none":
	case "dev":
		if !c.Development() {
			return fmt.Errorf("AUTH_MODE=dev is not allowed in %s", c.Environment)
		}
	case "oidc":
		if c.OIDCIssuerURL == "" || c.OIDCClientID == "" {
			return fmt.Errorf("OIDC_ISSUER_URL and OIDC_CLIENT_ID are required for AUTH_MODE=oidc")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q (valid: none, dev, oidc)", c.AuthMode)
	}
	if c.RetentionMaxCount < 0 {
		return fmt.Errorf("RETENTION_MAX_COUNT must not be negative")
	}
	return nil
}

// Development reports whether embedded services should stand in for real
// ones. The test environment is development with in-memory mocks.
func (c Config) Development() bool {
	return c.Environment == "" || c.Environment == "development" || c.Environment == "test"
}
