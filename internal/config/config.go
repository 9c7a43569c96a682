package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store and cache backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	StoreBackend      string        `mapstructure:"STORE_BACKEND"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	CacheBackend      string        `mapstructure:"CACHE_BACKEND"`
	CacheTTL          time.Duration `mapstructure:"CACHE_TTL"`
	ReplayLockTimeout time.Duration `mapstructure:"REPLAY_LOCK_TIMEOUT"`
	QueryTimeout      time.Duration `mapstructure:"QUERY_TIMEOUT"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL       string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience      string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	DefaultTenant     string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	BulkBodyLimit     string        `mapstructure:"BULK_BODY_LIMIT"`
	IngestStream      string        `mapstructure:"INGEST_STREAM"`
	IngestGroup       string        `mapstructure:"INGEST_GROUP"`
	MigrationsDir     string        `mapstructure:"MIGRATIONS_DIR"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"STORE_BACKEND", "REDIS_URL", "CACHE_BACKEND", "CACHE_TTL",
	"REPLAY_LOCK_TIMEOUT", "QUERY_TIMEOUT",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"DEFAULT_TENANT", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"BODY_LIMIT", "BULK_BODY_LIMIT",
	"INGEST_STREAM", "INGEST_GROUP", "MIGRATIONS_DIR",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("STORE_BACKEND", BackendPostgres)
	v.SetDefault("CACHE_BACKEND", BackendMemory)
	v.SetDefault("CACHE_TTL", "24h")
	v.SetDefault("REPLAY_LOCK_TIMEOUT", "10s")
	v.SetDefault("QUERY_TIMEOUT", "5s")
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("BULK_BODY_LIMIT", "10M")
	v.SetDefault("INGEST_GROUP", "accumulator")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active; the tenant comes from the X-Tenant-ID header and every caller is admin.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesPostgres reports whether stores are backed by PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.StoreBackend == BackendPostgres
}

// NeedsRedis reports whether any component needs a Redis client.
func (c *Config) NeedsRedis() bool {
	return c.CacheBackend == BackendRedis || c.IngestStream != ""
}

// Validate checks that the configuration is complete and safe to run.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.StoreBackend)
	}

	if c.CacheBackend != BackendMemory && c.CacheBackend != BackendRedis {
		return fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.CacheBackend)
	}
	if c.NeedsRedis() && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when CACHE_BACKEND=redis or INGEST_STREAM is set")
	}

	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set outside development (current ENV=%q)", c.Env)
	}
	if c.AuthIssuer != "" && c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_JWKS_URL is required when AUTH_ISSUER is set without AUTH_SIGNING_KEY")
	}

	if c.ReplayLockTimeout <= 0 {
		return fmt.Errorf("REPLAY_LOCK_TIMEOUT must be positive")
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("QUERY_TIMEOUT must not be negative")
	}
	return nil
}
