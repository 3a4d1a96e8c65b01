// Package config loads orchestrator configuration from environment
// variables (with optional .env / YAML overlay), per spec.md section 6.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP/WS listener.
type ServerConfig struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the relational store connection pool.
type DatabaseConfig struct {
	URL             string `json:"url" env:"DATABASE_URL"`
	MaxOpenConns    int    `json:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime_seconds" env:"DATABASE_CONN_MAX_LIFETIME"`
}

// RedisConfig controls the TTL-keyed KV store used for sessions and cache.
type RedisConfig struct {
	URL string `json:"url" env:"REDIS_URL"`
}

// AuthConfig controls token signing and lifetimes.
type AuthConfig struct {
	JWTSecretKey          string `json:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	JWTAlgorithm          string `json:"jwt_algorithm" env:"JWT_ALGORITHM"`
	AccessTokenExpireMins int    `json:"access_token_expire_minutes" env:"ACCESS_TOKEN_EXPIRE_MINUTES"`
	RefreshTokenExpireDay int    `json:"refresh_token_expire_days" env:"REFRESH_TOKEN_EXPIRE_DAYS"`
}

// LoggingConfig controls log level/format.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"`
}

// CORSConfig controls cross-origin access.
type CORSConfig struct {
	Origins []string `json:"origins" env:"CORS_ORIGINS"`
}

// ToolServerConfig controls the default remote capability server endpoint.
type ToolServerConfig struct {
	StockDataURL string `json:"stock_data_url" env:"TOOL_SERVER_STOCK_DATA_URL"`
}

// Environment names the deployment tier; production enables stricter
// transport defaults (HTTPS enforcement, secure cookies, HSTS).
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config is the top-level configuration tree.
type Config struct {
	Server      ServerConfig     `json:"server"`
	Database    DatabaseConfig   `json:"database"`
	Redis       RedisConfig      `json:"redis"`
	Auth        AuthConfig       `json:"auth"`
	Logging     LoggingConfig    `json:"logging"`
	CORS        CORSConfig       `json:"cors"`
	ToolServer  ToolServerConfig `json:"tool_server"`
	Environment Environment      `json:"environment" env:"ENVIRONMENT"`
}

// New returns a Config populated with spec.md section 6 defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Auth: AuthConfig{
			JWTAlgorithm:          "HS256",
			AccessTokenExpireMins: 15,
			RefreshTokenExpireDay: 7,
		},
		Logging:     LoggingConfig{Level: "info", Format: "text"},
		Environment: EnvDevelopment,
	}
}

// Load reads a .env file if present, applies an optional YAML overlay
// named by CONFIG_FILE, then decodes environment variables over the
// result — environment variables always win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	if corsRaw := os.Getenv("CORS_ORIGINS"); corsRaw != "" {
		cfg.CORS.Origins = splitCSV(corsRaw)
	}

	cfg.normalize()
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c *Config) normalize() {
	if c == nil {
		return
	}
	if c.Auth.AccessTokenExpireMins <= 0 {
		c.Auth.AccessTokenExpireMins = 15
	}
	if c.Auth.RefreshTokenExpireDay <= 0 {
		c.Auth.RefreshTokenExpireDay = 7
	}
	if c.Auth.JWTAlgorithm == "" {
		c.Auth.JWTAlgorithm = "HS256"
	}
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
}

// IsProduction reports whether HTTPS enforcement, secure cookies, and
// HSTS should be active.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
