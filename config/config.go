package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	household "github.com/goliatone/go-household"
	persistence "github.com/goliatone/go-persistence-bun"
)

// Config holds the operator settings of the household daemon. Values come
// from HOUSEHOLD_* environment variables.
type Config struct {
	LoadingTimeout   time.Duration `env:"HOUSEHOLD_LOADING_TIMEOUT"    envDefault:"10s"`
	GuestHouseholdID string        `env:"HOUSEHOLD_GUEST_HOUSEHOLD_ID" envDefault:"guest-household"`

	SigningKey    string        `env:"HOUSEHOLD_TOKEN_SIGNING_KEY"`
	TokenIssuer   string        `env:"HOUSEHOLD_TOKEN_ISSUER"`
	TokenAudience []string      `env:"HOUSEHOLD_TOKEN_AUDIENCE" envSeparator:","`
	TokenTTL      time.Duration `env:"HOUSEHOLD_TOKEN_TTL" envDefault:"1h"`

	DatabaseDSN    string        `env:"HOUSEHOLD_DB_DSN"          envDefault:"file:household.db?cache=shared"`
	DatabaseDriver string        `env:"HOUSEHOLD_DB_DRIVER"       envDefault:"sqlite"`
	DatabaseDebug  bool          `env:"HOUSEHOLD_DB_DEBUG"`
	PingTimeout    time.Duration `env:"HOUSEHOLD_DB_PING_TIMEOUT" envDefault:"5s"`
	OtelIdentifier string        `env:"HOUSEHOLD_DB_OTEL_NAME"`

	HTTPAddr    string `env:"HOUSEHOLD_HTTP_ADDR"    envDefault:":8080"`
	MetricsAddr string `env:"HOUSEHOLD_METRICS_ADDR" envDefault:":9090"`
	LogLevel    string `env:"HOUSEHOLD_LOG_LEVEL"    envDefault:"info"`

	// PolicyRules are extra visibility rules, "feature:expression" separated by ";"
	PolicyRules []string `env:"HOUSEHOLD_POLICY_RULES" envSeparator:";"`
}

var (
	_ household.Config   = Config{}
	_ persistence.Config = Config{}
)

// Load parses the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) GetLoadingTimeout() time.Duration {
	if c.LoadingTimeout <= 0 {
		return household.DefaultLoadingTimeout
	}
	return c.LoadingTimeout
}

func (c Config) GetGuestHouseholdID() string {
	if c.GuestHouseholdID == "" {
		return household.DefaultGuestHouseholdID
	}
	return c.GuestHouseholdID
}

func (c Config) GetDebug() bool {
	return c.DatabaseDebug
}

func (c Config) GetDriver() string {
	return c.DatabaseDriver
}

func (c Config) GetServer() string {
	return c.DatabaseDSN
}

func (c Config) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c Config) GetOtelIdentifier() string {
	return c.OtelIdentifier
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.SigningKey != "" {
		c.SigningKey = "********"
	}
	return c
}

// ExtraRules compiles PolicyRules.
func (c Config) ExtraRules() (*household.ExtraRules, error) {
	rules := household.NewExtraRules()
	for _, raw := range c.PolicyRules {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		feature, expression, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("policy rule %q: expected feature:expression", raw)
		}
		if err := rules.Add(household.Feature(strings.TrimSpace(feature)), expression); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

// TokenOptions returns the token service options for this configuration.
func (c Config) TokenOptions() []household.TokenServiceOption {
	opts := []household.TokenServiceOption{household.WithTokenTTL(c.TokenTTL)}
	if c.TokenIssuer != "" {
		opts = append(opts, household.WithTokenIssuer(c.TokenIssuer))
	}
	if len(c.TokenAudience) > 0 {
		opts = append(opts, household.WithTokenAudience(c.TokenAudience...))
	}
	return opts
}
