package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/PixelShelf/internal/pkg/env"
)

// ErrNotConfigured is returned by Ping when no cache host is set.
var ErrNotConfigured = errors.New("cache not configured")

var client *redis.Client

// SetupCache connects to the redis compatible server at CACHE_HOST:CACHE_PORT.
// Without CACHE_HOST the cache stays disabled and GetClient returns nil.
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "")
	if host == "" {
		slog.Info("cache disabled, CACHE_HOST not set")
		return
	}
	port := env.GetEnv("CACHE_PORT", "6379")
	Connect(fmt.Sprintf("%s:%s", host, port), env.GetEnv("CACHE_PASSWORD", ""))
}

// Connect replaces the package client. An unreachable server is logged, not fatal.
func Connect(addr, password string) *redis.Client {
	client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0, // use default DB
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		slog.Warn("could not connect to cache", "addr", addr, "error", err)
	} else {
		slog.Info("connected to cache", "addr", addr, "reply", pong)
	}
	return client
}

// GetClient returns the redis client, or nil when the cache is disabled.
func GetClient() *redis.Client {
	return client
}

// Enabled reports whether a cache client was configured.
func Enabled() bool {
	return client != nil
}

// Ping checks the connection.
func Ping(ctx context.Context) error {
	if client == nil {
		return ErrNotConfigured
	}
	return client.Ping(ctx).Err()
}

// Status is "ok", "disabled" or "unavailable", for health reporting.
func Status(ctx context.Context) string {
	err := Ping(ctx)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotConfigured):
		return "disabled"
	default:
		return "unavailable"
	}
}

// Close shuts the client down and disables the cache.
func Close() error {
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
