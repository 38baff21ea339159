package service

import (
	"context"
	"net/http"
	"time"

	"github.com/shestoi/payrelay/internal/journal"
	"github.com/shestoi/payrelay/internal/paypal"
	"github.com/shestoi/payrelay/internal/repository"
)

// RateLimiter *ratelimit.Limiter
type RateLimiter interface {
	Allow(ctx context.Context, clientKey string) (bool, error)
}

// WebhookVerifier *paypal.Verifier
type WebhookVerifier interface {
	Verify(ctx context.Context, h http.Header, body []byte) (paypal.Event, error)
}

// PaymentNotifier *notifier.Notifier
type PaymentNotifier interface {
	Notify(ctx context.Context, rec repository.PaymentRecord) error
}

// Journal *journal.Journal
type Journal interface {
	Record(ctx context.Context, e journal.Entry)
}

// Metrics *metrics.Metrics; nil допустим
type Metrics interface {
	ObserveWebhook(outcome string, d time.Duration)
	ObserveNotification(result string)
}
