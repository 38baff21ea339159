//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	_ "github.com/jackc/pgx/v5/stdlib" // драйвер "pgx" для goose

	"github.com/shestoi/payrelay/internal/repository"
	"github.com/shestoi/payrelay/internal/repository/repotest"
	"github.com/shestoi/payrelay/migrations"
)

func TestRepository_Integration(t *testing.T) {
	ctx := context.Background()

	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("payrelay"),
		postgres.WithUsername("payrelay"),
		postgres.WithPassword("payrelay"),
	)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, postgresContainer.Terminate(ctx))
	}()

	dsn, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	// контейнер стартует раньше, чем postgres принимает соединения
	var pingErr error
	for i := 0; i < 10; i++ {
		if pingErr = db.PingContext(ctx); pingErr == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, pingErr, "Failed to ping database after retries")

	_, err = migrations.Up(ctx, db, migrations.Postgres)
	require.NoError(t, err, "Failed to run migrations")

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	repo := NewRepository(pool)
	require.NoError(t, repo.Ping(ctx))

	repotest.Run(t, func(t *testing.T) repository.PaymentRepository {
		_, err := pool.Exec(ctx, `TRUNCATE payments`)
		require.NoError(t, err)
		return repo
	})
}
