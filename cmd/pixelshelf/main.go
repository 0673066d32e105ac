package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/PixelShelf/app/repository"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/cache"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/database"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/env"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/imagefetch"
	applog "github.com/ManuelReschke/PixelShelf/internal/pkg/logger"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/router"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/token"
)

func main() {
	app := NewApplication()
	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "5235"))
	if err := app.Listen(addr); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	applog.Setup(env.GetEnv("LOG_LEVEL", "info"), env.GetEnv("LOG_FORMAT", "text"))

	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()

	if _, created, err := repos.User.EnsureAdmin(env.GetEnv("ADMIN_PASSWORD", "admin")); err != nil {
		slog.Error("failed to bootstrap admin user", "error", err)
		os.Exit(1)
	} else if created {
		slog.Info("created admin user")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "PixelShelf",
	})

	// recovery, logging and open CORS for the browser frontend
	app.Use(recover.New(), logger.New(), cors.New())

	// SWAGGER / OPENAPI
	openAPIFile := env.GetEnv("OPENAPI_FILE", "public/docs/v1/openapi.yml")
	if _, err := os.Stat(openAPIFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: openAPIFile,
			Path:     "v1",
		}))
	} else {
		slog.Warn("openapi document not found, docs disabled", "file", openAPIFile)
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		DB:      db,
		Repos:   repos,
		Issuer:  token.NewIssuerFromEnv(),
		Fetcher: imagefetch.NewFromEnv(),
	})

	return app
}
