package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/PixelShelf/internal/pkg/cache"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/env"
)

// newLimiter rate limits per client IP. Counters live in redis when the cache is
// configured so that several instances share them, in memory otherwise.
func newLimiter() fiber.Handler {
	cfg := limiter.Config{
		Max:        env.GetEnvInt("RATE_LIMIT_MAX", 120),
		Expiration: env.GetEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "too_many_requests",
				"message": "Rate limit exceeded",
			})
		},
	}
	if cfg.Max <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if cache.Enabled() {
		cfg.Storage = newLimiterStorage()
	}
	return limiter.New(cfg)
}

// newLimiterStorage reuses the cache connection settings on a separate database.
func newLimiterStorage() *redis.Storage {
	opts := cache.GetClient().Options()
	host := "localhost"
	port := 6379
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: 1, // cache uses DB 0
		Reset:    false,
	})
}
