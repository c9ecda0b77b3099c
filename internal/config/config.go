// Package config reads the server configuration from the environment.
//
// An optional .env file (.env.test when APP_ENV=test) is loaded first with
// godotenv. Variables already present in the environment win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/daily-diet/internal/auth"
)

// Database engines accepted in DATABASE_ENGINE.
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "pg"
)

type Config struct {
	Env  string
	Port int

	DatabaseEngine string
	DatabaseURL    string

	PasswordScheme string
	BcryptCost     int

	SessionSweepInterval time.Duration

	LoginRatePerMinute int
	LoginRateBurst     int

	LogLevel  slog.Level
	LogFormat string // "text" or "json"

	OTLPEndpoint string
	OTLPInsecure bool
}

// Load reads the .env file if there is one, then the environment.
func Load() (Config, error) {
	envFile := ".env"
	if os.Getenv("APP_ENV") == "test" {
		envFile = ".env.test"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup without touching any file.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}

	cfg := Config{
		Env:                  r.oneOf("APP_ENV", "production", "production", "development", "test"),
		Port:                 r.int("PORT", 8080),
		DatabaseEngine:       r.oneOf("DATABASE_ENGINE", EngineSQLite, EngineSQLite, EnginePostgres),
		DatabaseURL:          r.string("DATABASE_URL", "data/daily-diet.db"),
		PasswordScheme:       r.oneOf("PASSWORD_SCHEME", auth.SchemeSHA256, auth.SchemeSHA256, auth.SchemeBcrypt),
		BcryptCost:           r.int("BCRYPT_COST", auth.DefaultBcryptCost),
		SessionSweepInterval: r.duration("SESSION_SWEEP_INTERVAL", 0),
		LoginRatePerMinute:   r.int("LOGIN_RATE_PER_MINUTE", 30),
		LoginRateBurst:       r.int("LOGIN_RATE_BURST", 10),
		LogLevel:             r.level("LOG_LEVEL", slog.LevelInfo),
		LogFormat:            r.oneOf("LOG_FORMAT", "text", "text", "json"),
		OTLPEndpoint:         r.string("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:         r.bool("OTEL_EXPORTER_OTLP_INSECURE", false),
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		r.fail("PORT", strconv.Itoa(cfg.Port), "must be between 1 and 65535")
	}
	if cfg.DatabaseEngine == EnginePostgres {
		if _, ok := lookup("DATABASE_URL"); !ok {
			r.fail("DATABASE_URL", "", "is required when DATABASE_ENGINE=pg")
		}
	}
	if cfg.SessionSweepInterval < 0 {
		r.fail("SESSION_SWEEP_INTERVAL", cfg.SessionSweepInterval.String(), "must not be negative")
	}

	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	return cfg, nil
}

// reader collects every invalid variable instead of stopping at the first.
type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) fail(key, value, reason string) {
	r.errs = append(r.errs, fmt.Errorf("config: %s=%q %s", key, value, reason))
}

func (r *reader) get(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) string(key, fallback string) string {
	if v, ok := r.get(key); ok {
		return v
	}
	return fallback
}

func (r *reader) int(key string, fallback int) int {
	v, ok := r.get(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, "is not an integer")
		return fallback
	}
	return n
}

func (r *reader) bool(key string, fallback bool) bool {
	v, ok := r.get(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, "is not a boolean")
		return fallback
	}
	return b
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	v, ok := r.get(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, "is not a duration like 1h or 30m")
		return fallback
	}
	return d
}

func (r *reader) level(key string, fallback slog.Level) slog.Level {
	v, ok := r.get(key)
	if !ok {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		r.fail(key, v, "is not one of debug, info, warn, error")
		return fallback
	}
	return lvl
}

func (r *reader) oneOf(key, fallback string, allowed ...string) string {
	v, ok := r.get(key)
	if !ok {
		return fallback
	}
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	r.fail(key, v, "must be one of "+strings.Join(allowed, ", "))
	return fallback
}

// Addr is the listen address for http.Server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
