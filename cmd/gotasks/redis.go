package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goTasks/internal/config"
)

// openRedis connects to the configured Redis, or starts an in-process
// miniredis when embedded is set. The returned cleanup closes both.
func openRedis(ctx context.Context, cfg config.RedisConfig, embedded bool, log *slog.Logger) (redis.UniversalClient, func(), error) {
	addr := cfg.Addr
	var mr *miniredis.Miniredis
	if embedded {
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded redis: %w", err)
		}
		addr = mr.Addr()
		log.Warn("using embedded redis; data is lost on exit", slog.String("addr", addr))
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	cleanup := func() {
		_ = client.Close()
		if mr != nil {
			mr.Close()
		}
	}

	if err := client.Ping(ctx).Err(); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	log.Info("redis_connected", slog.String("addr", addr))
	return client, cleanup, nil
}
