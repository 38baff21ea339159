package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/shestoi/payrelay/internal/config"
	"github.com/shestoi/payrelay/internal/repository"
	"github.com/shestoi/payrelay/internal/repository/postgres"
	"github.com/shestoi/payrelay/internal/repository/sqlite"
	"github.com/shestoi/payrelay/migrations"
	platformhealth "github.com/shestoi/payrelay/platform/health/http"
)

// postgresPingAttempts сколько секунд ждать PostgreSQL при старте
const postgresPingAttempts = 10

// Storage открытое хранилище платежей
type Storage struct {
	Repo repository.PaymentRepository
	// SchemaVersion версия схемы после миграций
	SchemaVersion int64
	// SQLiteDB общее соединение SQLite; nil для postgres
	SQLiteDB *sql.DB
	// Health проверка для /health
	Health platformhealth.Check
	// Close освобождает соединения
	Close func(ctx context.Context) error
}

// OpenStorage открывает хранилище по STORAGE_DRIVER и накатывает миграции
func OpenStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Storage, error) {
	switch cfg.StorageDriver {
	case config.StorageSQLite:
		db, err := sqlite.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		version, err := migrations.Version(ctx, db, migrations.SQLite)
		if err != nil {
			db.Close()
			return nil, err
		}
		repo := sqlite.NewRepository(db)
		logger.Info("SQLite storage opened",
			zap.String("path", cfg.DatabasePath),
			zap.Int64("schema_version", version),
		)
		return &Storage{
			Repo:          repo,
			SchemaVersion: version,
			SQLiteDB:      db,
			Health:        platformhealth.Check{Name: "database", Fn: repo.Ping},
			Close:         func(context.Context) error { return db.Close() },
		}, nil

	case config.StoragePostgres:
		logger.Info("Connecting to PostgreSQL")
		pool, version, err := postgres.Open(ctx, cfg.PostgresDSN, postgresPingAttempts)
		if err != nil {
			return nil, err
		}
		repo := postgres.NewRepository(pool)
		logger.Info("PostgreSQL connection established", zap.Int64("schema_version", version))
		return &Storage{
			Repo:          repo,
			SchemaVersion: version,
			Health:        platformhealth.Check{Name: "database", Fn: repo.Ping},
			Close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil
	}
	return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
}
