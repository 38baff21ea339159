package paypal

import (
	"errors"
	"fmt"
)

// Kind причина отказа в верификации webhook
type Kind int

const (
	// KindMalformedHeaders нет обязательных заголовков или они некорректны
	KindMalformedHeaders Kind = iota + 1
	// KindInvalidPayload тело не JSON-объект или не содержит данных платежа
	KindInvalidPayload
	// KindExpired transmission time вне допустимого окна
	KindExpired
	// KindSignatureRejected провайдер (или проверка подписи) не подтвердил подлинность
	KindSignatureRejected
	// KindUnavailable сервис верификации недоступен, провайдер должен повторить доставку
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindMalformedHeaders:
		return "malformed_headers"
	case KindInvalidPayload:
		return "invalid_payload"
	case KindExpired:
		return "expired"
	case KindSignatureRejected:
		return "signature_rejected"
	case KindUnavailable:
		return "verifier_unavailable"
	}
	return "unknown"
}

// VerificationError отказ в верификации с причиной
type VerificationError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error, format string, args ...any) *VerificationError {
	return &VerificationError{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}

// KindOf возвращает Kind из цепочки ошибок, 0 если это не VerificationError
func KindOf(err error) Kind {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return 0
}
