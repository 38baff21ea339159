package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shestoi/payrelay/internal/journal"
	"github.com/shestoi/payrelay/internal/metrics"
	"github.com/shestoi/payrelay/internal/paypal"
	"github.com/shestoi/payrelay/internal/repository"
	platformobservability "github.com/shestoi/payrelay/platform/observability"
)

// Config таймауты шагов. Шаги выполняются на контексте без отмены:
// обрыв соединения провайдером не должен оставить запись наполовину обработанной.
type Config struct {
	VerifyTimeout  time.Duration
	PersistTimeout time.Duration
	NotifyTimeout  time.Duration
}

// DefaultConfig таймауты по умолчанию
func DefaultConfig() Config {
	return Config{
		VerifyTimeout:  15 * time.Second,
		PersistTimeout: 5 * time.Second,
		NotifyTimeout:  30 * time.Second,
	}
}

// WebhookService rate limit -> verify -> record -> notify, одна запись журнала на запрос
type WebhookService struct {
	logger   *zap.Logger
	limiter  RateLimiter
	verifier WebhookVerifier
	repo     repository.PaymentRepository
	notifier PaymentNotifier
	journal  Journal
	metrics  Metrics
	cfg      Config
	now      func() time.Time
	newID    func() string
}

func NewWebhookService(
	logger *zap.Logger,
	limiter RateLimiter,
	verifier WebhookVerifier,
	repo repository.PaymentRepository,
	notifier PaymentNotifier,
	journal Journal,
	metrics Metrics,
	cfg Config,
) *WebhookService {
	def := DefaultConfig()
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = def.VerifyTimeout
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = def.NotifyTimeout
	}
	return &WebhookService{
		logger:   logger,
		limiter:  limiter,
		verifier: verifier,
		repo:     repo,
		notifier: notifier,
		journal:  journal,
		metrics:  metrics,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Handle обрабатывает один webhook. Каждый путь завершается ровно одной записью журнала.
func (s *WebhookService) Handle(ctx context.Context, req Request) (res Result) {
	start := s.now()
	res.RequestID = s.newID()
	logger := platformobservability.L(ctx, s.logger).With(zap.String("request_id", res.RequestID))

	defer func() {
		d := s.now().Sub(start)
		s.journal.Record(ctx, journal.Entry{
			RequestID:  res.RequestID,
			Outcome:    string(res.Outcome),
			ClientKey:  req.ClientKey,
			PaymentID:  res.PaymentID,
			EventID:    res.EventID,
			EventType:  res.EventType,
			Reason:     res.Reason,
			StatusCode: res.StatusCode,
			Duration:   d,
			Level:      levelFor(res.Outcome),
		})
		if s.metrics != nil {
			s.metrics.ObserveWebhook(string(res.Outcome), d)
		}
	}()

	allowed, err := s.limiter.Allow(ctx, req.ClientKey)
	if err != nil {
		// хранилище окон недоступно: пропускаем, платёж важнее защиты от флуда
		logger.Warn("rate limiter unavailable, request allowed", zap.Error(err), zap.String("client_key", req.ClientKey))
		allowed = true
	}
	if !allowed {
		return s.fail(res, OutcomeRateLimited, http.StatusTooManyRequests, ErrRateLimitExceeded)
	}

	if req.ReadErr != nil {
		code := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(req.ReadErr, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		return s.fail(res, OutcomeRejected, code, fmt.Errorf("read body: %w", req.ReadErr))
	}

	vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.VerifyTimeout)
	event, err := s.verifier.Verify(vctx, req.Header, req.Body)
	cancel()
	if err != nil {
		outcome, code := verificationOutcome(err)
		logger.Warn("webhook verification failed", zap.Error(err))
		return s.fail(res, outcome, code, err)
	}
	res.EventID = event.ID
	res.EventType = event.EventType

	if !event.CarriesPayment() {
		logger.Info("webhook event ignored", zap.String("event_type", event.EventType))
		res.Outcome = OutcomeIgnored
		res.StatusCode = http.StatusOK
		res.Reason = "event type carries no payment"
		return res
	}

	rec, err := event.Payment(s.now().UTC())
	if err != nil {
		logger.Warn("webhook payment resource rejected", zap.Error(err))
		return s.fail(res, OutcomeRejected, http.StatusBadRequest, err)
	}
	res.PaymentID = rec.PaymentID

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
	inserted, err := s.repo.RecordIfNew(pctx, rec)
	cancel()
	if err != nil {
		logger.Error("failed to record payment", zap.Error(err), zap.String("payment_id", rec.PaymentID))
		return s.fail(res, OutcomePersistenceFailed, http.StatusInternalServerError, fmt.Errorf("%w: %v", ErrPersistence, err))
	}
	if inserted == repository.AlreadyExists {
		logger.Info("payment already recorded (duplicate)", zap.String("payment_id", rec.PaymentID))
		res.Outcome = OutcomeDuplicate
		res.StatusCode = http.StatusOK
		return res
	}

	res.Outcome = OutcomeRecorded
	res.StatusCode = http.StatusOK

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	err = s.notifier.Notify(nctx, rec)
	cancel()
	if err != nil {
		// платёж уже записан, провайдер получает 200
		res.Reason = err.Error()
		if s.metrics != nil {
			s.metrics.ObserveNotification(metrics.NotificationLost)
		}
		return res
	}
	res.Notified = true
	if s.metrics != nil {
		s.metrics.ObserveNotification(metrics.NotificationSent)
	}
	logger.Info("payment recorded", zap.String("payment_id", rec.PaymentID), zap.String("status", string(rec.Status)))
	return res
}

func (s *WebhookService) fail(res Result, outcome Outcome, code int, err error) Result {
	res.Outcome = outcome
	res.StatusCode = code
	res.Reason = err.Error()
	res.Err = err
	return res
}

// verificationOutcome: некорректный запрос 400, неподлинный 401, верификатор недоступен 503 (провайдер повторит)
func verificationOutcome(err error) (Outcome, int) {
	switch paypal.KindOf(err) {
	case paypal.KindMalformedHeaders, paypal.KindInvalidPayload:
		return OutcomeRejected, http.StatusBadRequest
	case paypal.KindExpired, paypal.KindSignatureRejected:
		return OutcomeRejected, http.StatusUnauthorized
	}
	return OutcomeVerifierUnavailable, http.StatusServiceUnavailable
}

func levelFor(o Outcome) zapcore.Level {
	switch o {
	case OutcomeRateLimited, OutcomeRejected:
		return zapcore.WarnLevel
	case OutcomeVerifierUnavailable, OutcomePersistenceFailed:
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}
