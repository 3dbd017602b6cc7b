// Package config loads server and console configuration from an optional
// YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stockflow/internal/domain/allocation"
)

// Config is the full application configuration.
type Config struct {
	Env        string           `yaml:"env"`
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Allocation AllocationConfig `yaml:"allocation"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Watch      WatchConfig      `yaml:"watch"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL              string        `yaml:"url"`
	MaxConns         int32         `yaml:"max_conns"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
	ApplySchema      bool          `yaml:"apply_schema"`
}

// RedisConfig enables idempotency keys when Addr is set.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	ResponseTTL time.Duration `yaml:"response_ttl"`
}

// AuthConfig enables bearer auth when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type AllocationConfig struct {
	Strategy     string `yaml:"strategy"`
	CriticalDays int    `yaml:"critical_days"`
	SkipExpired  bool   `yaml:"skip_expired"`
	// Eligibility is an optional CEL expression over batch fields.
	Eligibility string `yaml:"eligibility"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// WatchConfig drives the background stock watcher.
type WatchConfig struct {
	Interval          time.Duration `yaml:"interval"`
	LowStockThreshold int64         `yaml:"low_stock_threshold"`
	ExpiringDays      int           `yaml:"expiring_days"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Env: "development",
		Log: LogConfig{Level: "info"},
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{MaxConns: 25, StatementTimeout: 5 * time.Second},
		Auth:     AuthConfig{Issuer: "stockflow", TokenTTL: 15 * time.Minute},
		Allocation: AllocationConfig{
			Strategy:     allocation.DefaultStrategyName,
			CriticalDays: allocation.DefaultCriticalDays,
			SkipExpired:  true,
		},
		Telemetry: TelemetryConfig{ServiceName: "stockflow", Insecure: true},
		Watch:     WatchConfig{Interval: 15 * time.Minute, LowStockThreshold: 10, ExpiringDays: 3},
	}
}

// IsDevelopment reports whether the development logger should be used.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load builds the configuration: defaults, then the YAML file at path (when
// path is non-empty), then environment overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Env, "APP_ENV")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Allocation.Strategy, "ALLOCATION_STRATEGY")
	setString(&cfg.Allocation.Eligibility, "ALLOCATION_ELIGIBILITY")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Telemetry.ServiceName, "OTEL_SERVICE_NAME")

	var errs []error
	errs = append(errs, setInt(&cfg.HTTP.Port, "APP_PORT"))
	errs = append(errs, setInt(&cfg.Allocation.CriticalDays, "EXPIRY_CRITICAL_DAYS"))
	errs = append(errs, setBool(&cfg.Allocation.SkipExpired, "ALLOCATION_SKIP_EXPIRED"))
	errs = append(errs, setBool(&cfg.Database.ApplySchema, "DATABASE_APPLY_SCHEMA"))
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", key, v)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %q is not a boolean", key, v)
	}
	*dst = b
	return nil
}

// Validate checks values that would otherwise fail late at runtime.
// The eligibility expression is compiled when the service is built.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if _, err := allocation.StrategyByName(c.Allocation.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("allocation.strategy %q is unknown (known: %s)",
			c.Allocation.Strategy, strings.Join(allocation.StrategyNames(), ", ")))
	}
	if c.Allocation.CriticalDays <= 0 {
		errs = append(errs, fmt.Errorf("allocation.critical_days must be positive, got %d", c.Allocation.CriticalDays))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.Watch.Interval <= 0 {
		errs = append(errs, fmt.Errorf("watch.interval must be positive, got %s", c.Watch.Interval))
	}
	if c.Watch.LowStockThreshold < 0 || c.Watch.ExpiringDays < 0 {
		errs = append(errs, fmt.Errorf("watch thresholds cannot be negative"))
	}
	if c.Database.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("database.max_conns cannot be negative"))
	}
	if c.Database.StatementTimeout < 0 {
		errs = append(errs, fmt.Errorf("database.statement_timeout cannot be negative"))
	}
	return errors.Join(errs...)
}
