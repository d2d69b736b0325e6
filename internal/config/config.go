package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	App struct {
		Name     string `envconfig:"APP_NAME" default:"FarmaBudget"`
		Port     int    `envconfig:"PORT" default:"8080"`
		LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	}

	DB struct {
		Backend  string `envconfig:"DATA_BACKEND" default:"postgres"`
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"farmabudget"`
	}

	Server struct {
		Timeout        time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		AllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	}

	Ledger struct {
		// DefaultBudget seeds the budget the first time it is read.
		DefaultBudget decimal.Decimal `envconfig:"BUDGET_DEFAULT" default:"1000000"`
		PageSize      int             `envconfig:"PAGE_SIZE_DEFAULT" default:"10"`
		MaxAttempts   int             `envconfig:"LEDGER_MAX_ATTEMPTS" default:"5"`
	}

	AMQP struct {
		URL      string `envconfig:"AMQP_URL"`
		Exchange string `envconfig:"AMQP_EXCHANGE" default:"farmabudget.events"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

// Level parses App.LogLevel, defaulting to info for unknown values.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.App.LogLevel)); err != nil {
		return slog.LevelInfo
	}

	return level
}

// Logger returns a text logger on stdout at the configured level.
func (c *Config) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: c.Level()}))
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	cfg.DB.Backend = strings.ToLower(strings.TrimSpace(cfg.DB.Backend))

	switch cfg.DB.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown DATA_BACKEND %q", cfg.DB.Backend)
	}

	if cfg.Ledger.DefaultBudget.IsNegative() {
		return nil, fmt.Errorf("BUDGET_DEFAULT must not be negative")
	}

	return &cfg, nil
}
