package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shestoi/payrelay/internal/repository"
)

const uniqueViolation = "23505"

// Repository реализует PaymentRepository используя PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт новый PostgreSQL репозиторий
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

// RecordIfNew вставляет платёж в транзакции.
// unique_violation по payment_id означает повторную доставку: AlreadyExists.
func (r *Repository) RecordIfNew(ctx context.Context, rec repository.PaymentRecord) (repository.InsertResult, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	rec = rec.Normalize()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO payments (payment_id, event_id, event_type, amount, currency, status, create_time, processed_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)`,
		rec.PaymentID, rec.EventID, rec.EventType, repository.AmountText(rec.Amount), rec.Currency, string(rec.Status),
		rec.CreateTime, rec.ProcessedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.AlreadyExists, nil
		}
		return 0, fmt.Errorf("insert payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return repository.Inserted, nil
}

// FindByPaymentID amount читается текстом, чтобы сохранить масштаб NUMERIC
func (r *Repository) FindByPaymentID(ctx context.Context, paymentID string) (repository.PaymentRecord, error) {
	var (
		rec            repository.PaymentRecord
		amount, status string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT payment_id, event_id, event_type, amount::text, currency, status, create_time, processed_at
		 FROM payments WHERE payment_id = $1`, paymentID).
		Scan(&rec.PaymentID, &rec.EventID, &rec.EventType, &amount, &rec.Currency, &status, &rec.CreateTime, &rec.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.PaymentRecord{}, repository.ErrNotFound
		}
		return repository.PaymentRecord{}, fmt.Errorf("select payment: %w", err)
	}

	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return repository.PaymentRecord{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	rec.Status = repository.Status(status)
	rec.CreateTime = rec.CreateTime.UTC()
	rec.ProcessedAt = rec.ProcessedAt.UTC()
	return rec, nil
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return n, nil
}

// Ping для health check
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
