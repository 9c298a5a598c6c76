// Package config loads application configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration values.
type Config struct {
	Env      string
	Port     string
	LogLevel string

	// StoreDriver selects the ledger backend: "mysql" or "postgres".
	StoreDriver   string
	MySQL         MySQLConfig
	DatabaseURL   string
	DBAutoMigrate bool

	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int

	BookingLockTimeout time.Duration
	BookingPageSize    int

	RabbitMQURL     string
	BookingExchange string
	AuditQueue      string
	AuditLogPath    string

	OTLPEndpoint string
	ServiceName  string

	CORSOrigins []string

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
}

// MySQLConfig mirrors the DB_* variables.
type MySQLConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// Load reads .env (if present) and the process environment. Environment
// variables win over .env entries.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Env:      v.GetString("APP_ENV"),
		Port:     v.GetString("APP_PORT"),
		LogLevel: v.GetString("LOG_LEVEL"),

		StoreDriver: strings.ToLower(v.GetString("STORE_DRIVER")),
		MySQL: MySQLConfig{
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASS"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
		},
		DatabaseURL:   v.GetString("DATABASE_URL"),
		DBAutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),

		JWTSecret:      v.GetString("JWT_SECRET"),
		AccessTTLMin:   v.GetInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: v.GetInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     v.GetInt("BCRYPT_COST"),

		BookingLockTimeout: v.GetDuration("BOOKING_LOCK_TIMEOUT"),
		BookingPageSize:    v.GetInt("BOOKING_PAGE_SIZE"),

		RabbitMQURL:     firstNonEmpty(v.GetString("RABBITMQ_URL"), v.GetString("AMQP_URL")),
		BookingExchange: v.GetString("BOOKING_EXCHANGE"),
		AuditQueue:      v.GetString("AUDIT_QUEUE"),
		AuditLogPath:    v.GetString("AUDIT_LOG_PATH"),

		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:  v.GetString("OTEL_SERVICE_NAME"),

		CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),

		Redis:     loadRedis(v),
		RateLimit: loadRateLimit(v),
		Cache:     loadCache(v),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("STORE_DRIVER", "mysql")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_USER", "root")
	v.SetDefault("DB_NAME", "event_booking")
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("ACCESS_TOKEN_TTL_MIN", 15)
	v.SetDefault("REFRESH_TOKEN_TTL_DAYS", 7)
	v.SetDefault("BCRYPT_COST", 12)

	v.SetDefault("BOOKING_LOCK_TIMEOUT", "5s")
	v.SetDefault("BOOKING_PAGE_SIZE", 50)

	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("BOOKING_EXCHANGE", "booking.events")
	v.SetDefault("AUDIT_QUEUE", "booking.audit")
	v.SetDefault("AUDIT_LOG_PATH", "logs/booking.log")

	v.SetDefault("OTEL_SERVICE_NAME", "event-booking")
	v.SetDefault("CORS_ORIGINS", "*")

	setRedisDefaults(v)
	setRateLimitDefaults(v)
	setCacheDefaults(v)
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("APP_PORT is required")
	}
	switch c.StoreDriver {
	case "mysql":
		if c.MySQL.Host == "" || c.MySQL.Name == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for the mysql store")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.JWTSecret == "" {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		c.JWTSecret = "dev-secret-change-me"
	}
	if c.AccessTTLMin <= 0 || c.RefreshTTLDays <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.BookingLockTimeout <= 0 {
		return fmt.Errorf("BOOKING_LOCK_TIMEOUT must be positive, got %s", c.BookingLockTimeout)
	}
	if c.BookingPageSize <= 0 {
		return fmt.Errorf("BOOKING_PAGE_SIZE must be positive, got %d", c.BookingPageSize)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, s := range vals {
		if s != "" {
			return s
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
