package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ManuelReschke/PixelShelf/internal/pkg/env"
	applog "github.com/ManuelReschke/PixelShelf/internal/pkg/logger"
)

func main() {
	env.SetupEnvFile()
	applog.Setup(env.GetEnv("LOG_LEVEL", "info"), env.GetEnv("LOG_FORMAT", "text"))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	dbURL := fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		env.GetEnv("DB_USER", "pixelshelf"),
		env.GetEnv("DB_PASSWORD", "pixelshelf"),
		env.GetEnv("DB_HOST", "db"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", "pixelshelf"),
	)

	slog.Info("connecting to database",
		"user", env.GetEnv("DB_USER", "pixelshelf"),
		"host", env.GetEnv("DB_HOST", "db"),
		"port", env.GetEnv("DB_PORT", "3306"),
		"name", env.GetEnv("DB_NAME", "pixelshelf"),
	)

	m, err := migrate.New(
		"file://"+env.GetEnv("MIGRATIONS_DIR", "migrations"),
		dbURL,
	)
	if err != nil {
		fatal("failed to initialize migrations", err)
	}

	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			slog.Warn("failed to close migration resources", "source_error", sourceErr, "db_error", dbErr)
		}
	}()

	switch command {
	case "up":
		if err := m.Up(); errors.Is(err, migrate.ErrNoChange) {
			slog.Info("no change, database is up to date")
		} else if err != nil {
			fatal("failed to apply migrations", err)
		} else {
			slog.Info("migrations applied")
		}

	case "down":
		if err := m.Steps(-1); err != nil {
			fatal("failed to roll back last migration", err)
		}
		slog.Info("rolled back last migration")

	case "goto":
		if len(os.Args) < 3 {
			fatal("missing version number", nil)
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			fatal("invalid version number", err)
		}

		if err := m.Migrate(uint(version)); errors.Is(err, migrate.ErrNoChange) {
			slog.Info("no change, database already at version", "version", version)
		} else if err != nil {
			fatal("failed to migrate", err)
		} else {
			slog.Info("migrated", "version", version)
		}

	case "status":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			slog.Info("no migrations applied yet")
		} else if err != nil {
			fatal("failed to read migration version", err)
		} else {
			slog.Info("current migration version", "version", version, "dirty", dirty)
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("Usage: go run cmd/migrate/main.go [command]")
	fmt.Println("Commands:")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  goto N - migrate to version N")
	fmt.Println("  status - show the current migration version")
}
