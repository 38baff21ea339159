// Package repotest общий набор проверок для всех реализаций PaymentRepository.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shestoi/payrelay/internal/repository"
)

// Record возвращает валидную запись с указанным payment_id
func Record(paymentID string) repository.PaymentRecord {
	return repository.PaymentRecord{
		PaymentID:   paymentID,
		EventID:     "WH-" + paymentID,
		EventType:   "PAYMENT.SALE.COMPLETED",
		Amount:      decimal.RequireFromString("100.00"),
		Currency:    "USD",
		Status:      repository.StatusCompleted,
		CreateTime:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ProcessedAt: time.Date(2024, 1, 1, 0, 0, 2, 345678000, time.UTC),
	}
}

// AssertSameRecord сравнивает записи по значению полей
func AssertSameRecord(t *testing.T, want, got repository.PaymentRecord) {
	t.Helper()
	assert.Equal(t, want.PaymentID, got.PaymentID)
	assert.Equal(t, want.EventID, got.EventID)
	assert.Equal(t, want.EventType, got.EventType)
	assert.Equal(t, repository.AmountText(want.Amount), repository.AmountText(got.Amount))
	assert.Equal(t, want.Currency, got.Currency)
	assert.Equal(t, want.Status, got.Status)
	assert.True(t, want.CreateTime.Equal(got.CreateTime), "create_time: want %s, got %s", want.CreateTime, got.CreateTime)
	assert.True(t, want.ProcessedAt.Equal(got.ProcessedAt), "processed_at: want %s, got %s", want.ProcessedAt, got.ProcessedAt)
}

// Run прогоняет контракт PaymentRepository. newRepo должен возвращать пустое хранилище.
func Run(t *testing.T, newRepo func(t *testing.T) repository.PaymentRepository) {
	ctx := context.Background()

	t.Run("RecordIfNew twice yields one row", func(t *testing.T) {
		repo := newRepo(t)
		rec := Record("TEST123")

		first, err := repo.RecordIfNew(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, repository.Inserted, first)

		second, err := repo.RecordIfNew(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, repository.AlreadyExists, second)

		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("duplicate keeps first version", func(t *testing.T) {
		repo := newRepo(t)
		rec := Record("PAY-1")
		_, err := repo.RecordIfNew(ctx, rec)
		require.NoError(t, err)

		refund := rec
		refund.Status = repository.StatusRefunded
		res, err := repo.RecordIfNew(ctx, refund)
		require.NoError(t, err)
		assert.Equal(t, repository.AlreadyExists, res)

		got, err := repo.FindByPaymentID(ctx, "PAY-1")
		require.NoError(t, err)
		assert.Equal(t, repository.StatusCompleted, got.Status)
	})

	t.Run("round trip", func(t *testing.T) {
		repo := newRepo(t)
		rec := Record("ROUND-1")
		rec.Amount = decimal.RequireFromString("1234.5678")
		rec.Currency = "EUR"
		rec.Status = repository.StatusPending

		_, err := repo.RecordIfNew(ctx, rec)
		require.NoError(t, err)

		got, err := repo.FindByPaymentID(ctx, "ROUND-1")
		require.NoError(t, err)
		AssertSameRecord(t, rec, got)
	})

	t.Run("amount keeps scale", func(t *testing.T) {
		repo := newRepo(t)
		rec := Record("SCALE-1")
		rec.Amount = decimal.RequireFromString("100.00")

		_, err := repo.RecordIfNew(ctx, rec)
		require.NoError(t, err)

		got, err := repo.FindByPaymentID(ctx, "SCALE-1")
		require.NoError(t, err)
		assert.Equal(t, "100.00", repository.AmountText(got.Amount))
		assert.Equal(t, int32(-2), got.Amount.Exponent())
	})

	t.Run("not found", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.FindByPaymentID(ctx, "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, repository.ErrNotFound), "Expected ErrNotFound, got: %v", err)
	})

	t.Run("invalid record rejected", func(t *testing.T) {
		repo := newRepo(t)
		rec := Record("BAD-1")
		rec.Currency = "dollars"

		_, err := repo.RecordIfNew(ctx, rec)
		require.Error(t, err)
		assert.True(t, errors.Is(err, repository.ErrInvalidRecord))

		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("concurrent duplicate deliveries insert once", func(t *testing.T) {
		repo := newRepo(t)
		const workers = 16

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			inserted int
			errs     []error
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := repo.RecordIfNew(ctx, Record("RACE-1"))
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				if res == repository.Inserted {
					inserted++
				}
			}()
		}
		wg.Wait()

		require.Empty(t, errs)
		assert.Equal(t, 1, inserted)
		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("distinct payments", func(t *testing.T) {
		repo := newRepo(t)
		for i := 0; i < 5; i++ {
			res, err := repo.RecordIfNew(ctx, Record(fmt.Sprintf("P-%d", i)))
			require.NoError(t, err)
			assert.Equal(t, repository.Inserted, res)
		}
		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})
}
