package service

import (
	"net/http"
)

// Outcome итог обработки webhook
type Outcome string

const (
	OutcomeRateLimited         Outcome = "rate_limited"
	OutcomeRejected            Outcome = "rejected"
	OutcomeVerifierUnavailable Outcome = "verifier_unavailable"
	// OutcomeIgnored подтверждённое событие, не несущее платежа
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDuplicate повторная доставка уже записанного платежа
	OutcomeDuplicate         Outcome = "duplicate"
	OutcomeRecorded          Outcome = "recorded"
	OutcomePersistenceFailed Outcome = "persistence_failed"
)

// Request входящий webhook
type Request struct {
	// ClientKey ключ окна rate limit (IP клиента или ratelimit.GlobalKey)
	ClientKey string
	Header    http.Header
	Body      []byte
	// ReadErr ошибка чтения тела (например, превышен лимит размера)
	ReadErr error
}

// Result ответ провайдеру и данные для журнала
type Result struct {
	RequestID  string
	Outcome    Outcome
	StatusCode int
	// Reason причина отказа; для recorded только ошибка уведомления
	Reason    string
	PaymentID string
	EventID   string
	EventType string
	// Notified уведомление доставлено (только для recorded)
	Notified bool
	// Err ошибка, приведшая к отказу (ErrRateLimitExceeded, *paypal.VerificationError, ErrPersistence)
	Err error
}
