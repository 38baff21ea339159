package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=PaymentRepository --dir=. --output=./mocks --outpkg=mocks

// ErrNotFound возвращается, когда платёж с таким payment_id не найден
var ErrNotFound = errors.New("payment not found")

// ErrInvalidRecord возвращается при попытке сохранить некорректную запись
var ErrInvalidRecord = errors.New("invalid payment record")

// Status состояние платежа у провайдера
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
	StatusReversed  Status = "REVERSED"
)

// ParseStatus приводит строку к Status (регистр не важен)
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded, StatusReversed:
		return st, nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

// InsertResult результат RecordIfNew
type InsertResult int

const (
	// Inserted запись создана впервые
	Inserted InsertResult = iota + 1
	// AlreadyExists запись с таким payment_id уже была (повторная доставка webhook)
	AlreadyExists
)

func (r InsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already_exists"
	}
	return "unknown"
}

// PaymentRecord запись об обработанном платеже
type PaymentRecord struct {
	PaymentID string
	// EventID и EventType webhook-события, которое создало запись
	EventID   string
	EventType string
	Amount    decimal.Decimal
	Currency  string
	Status    Status
	// CreateTime время платежа у провайдера
	CreateTime time.Time
	// ProcessedAt время обработки нашим сервисом
	ProcessedAt time.Time
}

var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

// Validate проверяет инварианты записи перед сохранением
// AmountText текст суммы с исходным масштабом: 100.00 остаётся "100.00"
func AmountText(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

func (r PaymentRecord) Validate() error {
	if strings.TrimSpace(r.PaymentID) == "" {
		return fmt.Errorf("%w: payment_id is required", ErrInvalidRecord)
	}
	if r.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must be non-negative, got %s", ErrInvalidRecord, r.Amount)
	}
	if !currencyRe.MatchString(r.Currency) {
		return fmt.Errorf("%w: currency must be a 3-letter code, got %q", ErrInvalidRecord, r.Currency)
	}
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if r.CreateTime.IsZero() {
		return fmt.Errorf("%w: create_time is required", ErrInvalidRecord)
	}
	if r.ProcessedAt.IsZero() {
		return fmt.Errorf("%w: processed_at is required", ErrInvalidRecord)
	}
	return nil
}

// Normalize приводит времена к UTC с точностью до микросекунд,
// чтобы запись читалась из любого хранилища без потерь.
func (r PaymentRecord) Normalize() PaymentRecord {
	r.CreateTime = r.CreateTime.UTC().Truncate(time.Microsecond)
	r.ProcessedAt = r.ProcessedAt.UTC().Truncate(time.Microsecond)
	return r
}

// PaymentRepository хранилище обработанных платежей
type PaymentRepository interface {
	// RecordIfNew атомарно вставляет запись, если payment_id ещё не встречался.
	// Дубликат определяется по нарушению уникального ограничения, а не по предварительному чтению.
	RecordIfNew(ctx context.Context, rec PaymentRecord) (InsertResult, error)
	// FindByPaymentID возвращает ErrNotFound, если записи нет
	FindByPaymentID(ctx context.Context, paymentID string) (PaymentRecord, error)
	// Count количество сохранённых платежей
	Count(ctx context.Context) (int, error)
}
