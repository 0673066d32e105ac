package database

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ManuelReschke/PixelShelf/app/models"
	"github.com/ManuelReschke/PixelShelf/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// mysqlTableOptions keeps tag names and usernames case-sensitive under MySQL.
const mysqlTableOptions = "ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin"

var DB *gorm.DB

// SetupDatabase connects using DB_DRIVER and migrates the schema. It panics when the
// database stays unreachable after all retries.
func SetupDatabase() {
	driver := env.GetEnv("DB_DRIVER", DriverMySQL)
	dsn := DSN(driver)

	var err error
	for i := 0; i < maxRetries; i++ {
		DB, err = Open(driver, dsn)
		if err == nil {
			if err = Migrate(DB); err != nil {
				panic(err)
			}
			return
		}

		slog.Warn("failed to connect to database", "try", i+1, "max", maxRetries, "error", err)
		if i < maxRetries-1 {
			slog.Info("retrying database connection", "delay", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

// GetDB returns the connection opened by SetupDatabase, or nil.
func GetDB() *gorm.DB {
	return DB
}

// DSN builds the data source name for the given driver from the environment.
func DSN(driver string) string {
	if driver == DriverSQLite {
		return env.GetEnv("DB_PATH", "pixelshelf.db")
	}
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
}

// Open opens a gorm connection for driver. Duplicate-key errors are translated to
// gorm.ErrDuplicatedKey for both drivers.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormLogLevel()),
	}

	switch driver {
	case DriverMySQL:
		db, err := gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,   // data source name
			DefaultStringSize:         256,   // default size for string fields
			DisableDatetimePrecision:  true,  // disable datetime precision, which not supported before MySQL 5.6
			DontSupportRenameIndex:    true,  // drop & create when rename index, rename index not supported before MySQL 5.7, MariaDB
			DontSupportRenameColumn:   true,  // `change` when rename column, rename column not supported before MySQL 8, MariaDB
			SkipInitializeWithVersion: false, // auto configure based on currently MySQL version
		}), cfg)
		if err != nil {
			return nil, err
		}
		return db.Set("gorm:table_options", mysqlTableOptions), nil
	case DriverSQLite:
		db, err := gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, err
		}
		// a single connection keeps in-memory databases alive and serializes writers
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxLifetime(0)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// OpenInMemory opens an isolated in-memory SQLite database with the schema applied.
func OpenInMemory(name string) (*gorm.DB, error) {
	db, err := Open(DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates all tables, including the association tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Tag{},
		&models.Image{},
		&models.ImageTag{},
		&models.APIKey{},
	)
}

func gormLogLevel() gormlogger.LogLevel {
	if env.IsDev() {
		return gormlogger.Warn
	}
	return gormlogger.Error
}
