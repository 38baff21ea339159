package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/shestoi/payrelay/internal/repository"
)

// Repository реализует PaymentRepository поверх локального файла SQLite
type Repository struct {
	db *sql.DB
}

// NewRepository ожидает БД, открытую через Open (схема уже накатана)
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RecordIfNew вставляет запись в транзакции.
// Повторный payment_id упирается в UNIQUE и возвращается как AlreadyExists.
func (r *Repository) RecordIfNew(ctx context.Context, rec repository.PaymentRecord) (repository.InsertResult, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	rec = rec.Normalize()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments (payment_id, event_id, event_type, amount, currency, status, create_time, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.PaymentID, rec.EventID, rec.EventType, repository.AmountText(rec.Amount), rec.Currency, string(rec.Status),
		formatTime(rec.CreateTime), formatTime(rec.ProcessedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return repository.AlreadyExists, nil
		}
		return 0, fmt.Errorf("insert payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return repository.Inserted, nil
}

func (r *Repository) FindByPaymentID(ctx context.Context, paymentID string) (repository.PaymentRecord, error) {
	var (
		rec                     repository.PaymentRecord
		amount, status          string
		createTime, processedAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT payment_id, event_id, event_type, amount, currency, status, create_time, processed_at
		 FROM payments WHERE payment_id = ?`, paymentID).
		Scan(&rec.PaymentID, &rec.EventID, &rec.EventType, &amount, &rec.Currency, &status, &createTime, &processedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.PaymentRecord{}, repository.ErrNotFound
		}
		return repository.PaymentRecord{}, fmt.Errorf("select payment: %w", err)
	}

	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return repository.PaymentRecord{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	rec.Status = repository.Status(status)
	if rec.CreateTime, err = time.Parse(time.RFC3339Nano, createTime); err != nil {
		return repository.PaymentRecord{}, fmt.Errorf("parse create_time: %w", err)
	}
	if rec.ProcessedAt, err = time.Parse(time.RFC3339Nano, processedAt); err != nil {
		return repository.PaymentRecord{}, fmt.Errorf("parse processed_at: %w", err)
	}
	return rec, nil
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return n, nil
}

// Ping для health check
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
