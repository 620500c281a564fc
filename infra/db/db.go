// Package db owns the PostgreSQL connection and schema migrations. The
// schema is embedded in the binary and applied with golang-migrate; gorm
// models in internal/repository mirror it for query building and for the
// sqlite test fixtures.
package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/syntalk/im-server/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open connects to PostgreSQL and configures the connection pool.
// TranslateError lets callers branch on gorm.ErrDuplicatedKey instead of
// driver-specific pq error codes.
func Open(cfg *config.Config, log *slog.Logger) (*gorm.DB, error) {
	database, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger:         newSlogLogger(log),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db: open postgres: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("db: unwrap sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return database, nil
}

// Ping verifies that the database connection is still alive.
func Ping(ctx context.Context, database *gorm.DB) error {
	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("db: unwrap sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Migrate applies pending up-migrations from the embedded SQL files.
// ErrNoChange is success: the schema is already current.
func Migrate(database *gorm.DB, log *slog.Logger) error {
	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("db: unwrap sql.DB: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("db: migration source: %w", err)
	}
	drv, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("db: migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return fmt.Errorf("db: migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db: apply migrations: %w", err)
	}
	log.Info("database schema is current")
	return nil
}

func Close(database *gorm.DB) error {
	sqlDB, err := database.DB()
	if err != nil {
		return nil
	}
	return sqlDB.Close()
}
