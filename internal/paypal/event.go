package paypal

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shestoi/payrelay/internal/repository"
)

// Event webhook-событие PayPal (только нужные поля)
type Event struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	CreateTime   string          `json:"create_time"`
	ResourceType string          `json:"resource_type"`
	Summary      string          `json:"summary"`
	Resource     json.RawMessage `json:"resource"`
}

// amount покрывает обе формы: v1 sale {total, currency} и v2 capture {value, currency_code}
type amount struct {
	Total        string `json:"total"`
	Currency     string `json:"currency"`
	Value        string `json:"value"`
	CurrencyCode string `json:"currency_code"`
}

type resource struct {
	ID         string  `json:"id"`
	CreateTime string  `json:"create_time"`
	Amount     *amount `json:"amount"`
}

// eventStatuses события, которые несут платёж, и статус записи для каждого
var eventStatuses = map[string]repository.Status{
	"PAYMENT.SALE.COMPLETED":    repository.StatusCompleted,
	"PAYMENT.SALE.PENDING":      repository.StatusPending,
	"PAYMENT.SALE.DENIED":       repository.StatusFailed,
	"PAYMENT.SALE.REFUNDED":     repository.StatusRefunded,
	"PAYMENT.SALE.REVERSED":     repository.StatusReversed,
	"PAYMENT.CAPTURE.COMPLETED": repository.StatusCompleted,
	"PAYMENT.CAPTURE.PENDING":   repository.StatusPending,
	"PAYMENT.CAPTURE.DENIED":    repository.StatusFailed,
	"PAYMENT.CAPTURE.DECLINED":  repository.StatusFailed,
	"PAYMENT.CAPTURE.REFUNDED":  repository.StatusRefunded,
	"PAYMENT.CAPTURE.REVERSED":  repository.StatusReversed,
}

// ParseEvent декодирует тело webhook. Тело должно быть JSON-объектом с event_type.
func ParseEvent(body []byte) (Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, newError(KindInvalidPayload, nil, "body is not a JSON object")
	}
	var e Event
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return Event{}, newError(KindInvalidPayload, err, "decode event")
	}
	if strings.TrimSpace(e.EventType) == "" {
		return Event{}, newError(KindInvalidPayload, nil, "event_type is required")
	}
	return e, nil
}

// CarriesPayment true для типов событий, по которым сохраняется платёж
func (e Event) CarriesPayment() bool {
	_, ok := eventStatuses[e.EventType]
	return ok
}

// Payment строит запись платежа из resource.
// processedAt подставляется и как create_time, если провайдер его не прислал.
func (e Event) Payment(processedAt time.Time) (repository.PaymentRecord, error) {
	status, ok := eventStatuses[e.EventType]
	if !ok {
		return repository.PaymentRecord{}, newError(KindInvalidPayload, nil, "event type %s carries no payment", e.EventType)
	}
	if len(e.Resource) == 0 {
		return repository.PaymentRecord{}, newError(KindInvalidPayload, nil, "resource is required")
	}

	var res resource
	if err := json.Unmarshal(e.Resource, &res); err != nil {
		return repository.PaymentRecord{}, newError(KindInvalidPayload, err, "decode resource")
	}
	if strings.TrimSpace(res.ID) == "" {
		return repository.PaymentRecord{}, newError(KindInvalidPayload, nil, "resource.id is required")
	}
	if res.Amount == nil {
		return repository.PaymentRecord{}, newError(KindInvalidPayload, nil, "resource.amount is required")
	}

	value, currency := res.Amount.Total, res.Amount.Currency
	if value == "" {
		value = res.Amount.Value
	}
	if currency == "" {
		currency = res.Amount.CurrencyCode
	}
	amt, err := decimal.NewFromString(value)
	if err != nil {
		return repository.PaymentRecord{}, newError(KindInvalidPayload, err, "resource.amount %q", value)
	}
	if amt.IsNegative() {
		return repository.PaymentRecord{}, newError(KindInvalidPayload, nil, "resource.amount must be non-negative")
	}

	createTime := processedAt
	for _, s := range []string{res.CreateTime, e.CreateTime} {
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			createTime = t
			break
		}
	}

	rec := repository.PaymentRecord{
		PaymentID:   res.ID,
		EventID:     e.ID,
		EventType:   e.EventType,
		Amount:      amt,
		Currency:    strings.ToUpper(strings.TrimSpace(currency)),
		Status:      status,
		CreateTime:  createTime,
		ProcessedAt: processedAt,
	}
	if err := rec.Validate(); err != nil {
		return repository.PaymentRecord{}, newError(KindInvalidPayload, err, "payment record")
	}
	return rec, nil
}
