package config

// Redis backs distributed rate limiting and the public response cache. If
// the server cannot be reached at startup NewRedisClient returns nil and
// callers degrade by disabling both.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
	PoolSize int
}

func setRedisDefaults(v *viper.Viper) {
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_TLS", false)
	v.SetDefault("REDIS_POOL_SIZE", 20)
}

func loadRedis(v *viper.Viper) RedisConfig {
	addr := v.GetString("REDIS_ADDR")
	// REDIS_HOST/REDIS_PORT take precedence when both are set.
	if host, port := v.GetString("REDIS_HOST"), v.GetString("REDIS_PORT"); host != "" && port != "" {
		addr = host + ":" + port
	}
	return RedisConfig{
		Addr:     addr,
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		TLS:      v.GetBool("REDIS_TLS"),
		PoolSize: v.GetInt("REDIS_POOL_SIZE"),
	}
}

// NewRedisClient connects and pings with a short timeout. It returns nil on
// failure.
func NewRedisClient(ctx context.Context, cfg RedisConfig) *redis.Client {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		PoolSize:  cfg.PoolSize,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
