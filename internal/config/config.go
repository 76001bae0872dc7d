// Copyright 2026 The TaskFlow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         string        `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout  time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            string        `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"taskflow"`
	Password        string        `envconfig:"DB_PASSWORD"`
	Database        string        `envconfig:"DB_NAME" default:"taskflow"`
	SSLMode         string        `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

// DSN builds the connection string for pgx.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds the permission cache configuration
type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL time.Duration `envconfig:"REDIS_CACHE_TTL" default:"10m"`
}

// AuthConfig holds token issuance configuration
type AuthConfig struct {
	JWTSecret      string        `envconfig:"JWT_SECRET"`
	AccessTokenTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"24h"`
	Issuer         string        `envconfig:"JWT_ISSUER" default:"taskflow"`
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string `envconfig:"LOG_FORMAT" default:"json"`
	OTELEnabled    bool   `envconfig:"OTEL_ENABLED" default:"false"`
	ServiceName    string `envconfig:"OTEL_SERVICE_NAME" default:"taskflow"`
	ServiceVersion string `envconfig:"OTEL_SERVICE_VERSION" default:"0.1.0"`
}

// SecurityConfig holds password hashing configuration
type SecurityConfig struct {
	Argon2Memory      uint32 `envconfig:"ARGON2_MEMORY" default:"65536"`
	Argon2Iterations  uint32 `envconfig:"ARGON2_ITERATIONS" default:"3"`
	Argon2Parallelism uint8  `envconfig:"ARGON2_PARALLELISM" default:"4"`
	Argon2SaltLength  uint32 `envconfig:"ARGON2_SALT_LENGTH" default:"16"`
	Argon2KeyLength   uint32 `envconfig:"ARGON2_KEY_LENGTH" default:"32"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64 `envconfig:"RATELIMIT_RPS" default:"10"`
	Burst             int     `envconfig:"RATELIMIT_BURST" default:"20"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	return nil
}
