package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mailcore/mailcore/internal/config"
)

// ConnectRedis builds a client for cfg and checks it answers PING.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// ConnectRedisRetry retries ConnectRedis with exponential backoff.
func ConnectRedisRetry(ctx context.Context, cfg config.RedisConfig, timeout time.Duration, attempts int) (*redis.Client, error) {
	var client *redis.Client
	err := retry(ctx, "Redis", attempts, func() error {
		var err error
		client, err = ConnectRedis(ctx, cfg, timeout)
		return err
	})
	return client, err
}
