package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the server configuration, read from the environment.
type Config struct {
	Addr        string        `env:"GOVERNANCE_ADDR" envDefault:":8080"`
	DatabaseURL string        `env:"DATABASE_URL"`
	AdminToken  string        `env:"ADMIN_TOKEN,required,notEmpty"`
	TxTimeout   time.Duration `env:"TX_TIMEOUT" envDefault:"5s"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	Documents   Documents
	AuditRelay  AuditRelay
}

// Documents locates the governed catalog files.
type Documents struct {
	ProcessCatalogPath string `env:"PROCESS_CATALOG_PATH" envDefault:"governance/process-catalog.yaml"`
	RulesPath          string `env:"RULES_PATH" envDefault:"governance/institutional-rules.yaml"`
	UseCasesPath       string `env:"USE_CASES_PATH" envDefault:"governance/use-cases.yaml"`
}

// AuditRelay configures the optional Kafka relay. No brokers disables it.
type AuditRelay struct {
	Brokers  []string      `env:"AUDIT_KAFKA_BROKERS" envSeparator:","`
	Topic    string        `env:"AUDIT_KAFKA_TOPIC" envDefault:"governance.audit"`
	Interval time.Duration `env:"AUDIT_RELAY_INTERVAL" envDefault:"2s"`
}

func (r AuditRelay) Enabled() bool {
	return len(r.Brokers) > 0
}

// UsesPostgres reports whether a database is configured; otherwise the
// server runs on in-memory stores.
func (c Config) UsesPostgres() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Load reads and validates configuration from the environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if _, err := cfg.SlogLevel(); err != nil {
		return Config{}, err
	}
	if cfg.TxTimeout <= 0 {
		return Config{}, fmt.Errorf("TX_TIMEOUT must be positive")
	}
	return cfg, nil
}
