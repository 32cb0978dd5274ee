// Package config loads service configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Odoo        OdooConfig        `yaml:"odoo"`
	Stripe      StripeConfig      `yaml:"stripe"`
	Render      RenderConfig      `yaml:"render"`
	Redis       RedisConfig       `yaml:"redis"`
	Auth        AuthConfig        `yaml:"auth"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string `yaml:"host" env:"SERVER_HOST"`
	Port            int    `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     int    `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    int    `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	AllowedOrigin   string `yaml:"allowed_origin" env:"SERVER_ALLOWED_ORIGIN"`
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	Driver          string `yaml:"driver" env:"DATABASE_DRIVER"`
	DSN             string `yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
}

// OdooConfig configures the ERP gateway.
type OdooConfig struct {
	URL       string `yaml:"url" env:"ODOO_URL"`
	Database  string `yaml:"database" env:"ODOO_DB"`
	Username  string `yaml:"username" env:"ODOO_USER"`
	Password  string `yaml:"password" env:"ODOO_PASSWORD"`
	TimeoutMS int    `yaml:"timeout_ms" env:"ODOO_TIMEOUT_MS"`
}

// StripeConfig configures the payment provider.
type StripeConfig struct {
	SecretKey string `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
}

// RenderConfig configures the document render microservice client.
type RenderConfig struct {
	URL         string `yaml:"url" env:"RENDER_SERVER_URL"`
	TemplateDir string `yaml:"template_dir" env:"RENDER_TEMPLATE_DIR"`
}

// RedisConfig configures the optional schema cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// AuthConfig configures session verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
}

// RateLimitConfig configures per-caller request limits.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second" env:"RATE_LIMIT_RPS"`
	Burst             int `yaml:"burst" env:"RATE_LIMIT_BURST"`
}

// MaintenanceConfig configures background upkeep jobs.
type MaintenanceConfig struct {
	ProbeSchedule string `yaml:"probe_schedule" env:"MAINTENANCE_PROBE_SCHEDULE"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// Default returns the baseline configuration before file and env overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		Database: DatabaseConfig{
			Driver:       "postgres",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Odoo: OdooConfig{
			TimeoutMS: 3000,
		},
		Render: RenderConfig{
			TemplateDir: "templates",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Maintenance: MaintenanceConfig{
			ProbeSchedule: "@every 1m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from CONFIG_PATH (or config/console.yaml) when the
// file exists, then applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/console.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	return cfg, nil
}
