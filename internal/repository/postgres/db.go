package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/shestoi/payrelay/migrations"
)

// Open создаёт пул, ждёт готовности PostgreSQL и накатывает миграции.
// Возвращает пул и версию схемы.
func Open(ctx context.Context, dsn string, attempts int) (*pgxpool.Pool, int64, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, 0, fmt.Errorf("create pool: %w", err)
	}

	if attempts < 1 {
		attempts = 1
	}
	// контейнер postgres может стартовать позже сервиса
	for i := 1; ; i++ {
		if err = pool.Ping(ctx); err == nil {
			break
		}
		if i >= attempts {
			pool.Close()
			return nil, 0, fmt.Errorf("ping postgres: %w", err)
		}
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, 0, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	version, err := Migrate(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, 0, err
	}
	return pool, version, nil
}

// Migrate накатывает goose-миграции через database/sql обёртку над пулом
func Migrate(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	version, err := migrations.Up(ctx, db, migrations.Postgres)
	if err != nil {
		return 0, fmt.Errorf("migrate postgres: %w", err)
	}
	return version, nil
}
