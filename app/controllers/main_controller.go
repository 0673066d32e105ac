package controllers

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelShelf/app/repository"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/cache"
)

// MainController answers the unauthenticated service endpoints
type MainController struct {
	db    *gorm.DB
	repos *repository.Repositories
}

func NewMainController(db *gorm.DB, repos *repository.Repositories) *MainController {
	return &MainController{db: db, repos: repos}
}

type catalogStats struct {
	Users  int64 `json:"users"`
	Images int64 `json:"images"`
	Tags   int64 `json:"tags"`
}

func (mc *MainController) HandleHello(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Hello from api",
	})
}

// HandleHealth reports database and cache reachability plus catalog sizes.
// Only the database decides the status code.
func (mc *MainController) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	body := fiber.Map{
		"status":   "ok",
		"database": "ok",
		"cache":    cache.Status(ctx),
	}
	if err := mc.pingDatabase(ctx); err != nil {
		body["status"] = "degraded"
		body["database"] = "unavailable"
		return c.Status(fiber.StatusServiceUnavailable).JSON(body)
	}

	stats, err := mc.catalogStats()
	if err != nil {
		slog.Warn("health: counting catalog failed", "error", err)
	} else {
		body["catalog"] = stats
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

func (mc *MainController) pingDatabase(ctx context.Context) error {
	sqlDB, err := mc.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (mc *MainController) catalogStats() (*catalogStats, error) {
	var stats catalogStats
	var err error
	if stats.Users, err = mc.repos.User.Count(); err != nil {
		return nil, err
	}
	if stats.Images, err = mc.repos.Image.Count(); err != nil {
		return nil, err
	}
	if stats.Tags, err = mc.repos.Tag.Count(); err != nil {
		return nil, err
	}
	return &stats, nil
}
