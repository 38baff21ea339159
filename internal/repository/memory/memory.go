package memory

import (
	"context"
	"sync"

	"github.com/shestoi/payrelay/internal/repository"
)

// Repository in-memory реализация PaymentRepository (тесты и локальный запуск без БД)
type Repository struct {
	mu       sync.RWMutex
	payments map[string]repository.PaymentRecord
}

func NewRepository() *Repository {
	return &Repository{
		payments: make(map[string]repository.PaymentRecord),
	}
}

// RecordIfNew проверка и вставка под одним мьютексом
func (r *Repository) RecordIfNew(ctx context.Context, rec repository.PaymentRecord) (repository.InsertResult, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	rec = rec.Normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[rec.PaymentID]; ok {
		return repository.AlreadyExists, nil
	}
	r.payments[rec.PaymentID] = rec
	return repository.Inserted, nil
}

func (r *Repository) FindByPaymentID(ctx context.Context, paymentID string) (repository.PaymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.payments[paymentID]
	if !ok {
		return repository.PaymentRecord{}, repository.ErrNotFound
	}
	return rec, nil
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.payments), nil
}
