package db

import (
	"github.com/redis/go-redis/v9"

	"github.com/w2vasia/gps-track/internal/config"
)

// ConnectRedis returns nil when no address is configured; the caller treats
// a nil client as "caching disabled".
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
