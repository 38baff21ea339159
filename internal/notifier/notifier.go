// Package notifier доставляет уведомление о новом платеже в Telegram.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/payrelay/internal/repository"
	"github.com/shestoi/payrelay/internal/telegram"
	"github.com/shestoi/payrelay/internal/templates"
)

// ErrNotDelivered уведомление не доставлено после всех попыток
var ErrNotDelivered = errors.New("notification not delivered")

// LostNotification уведомление, которое не удалось доставить
type LostNotification struct {
	PaymentID string
	EventID   string
	EventType string
	Amount    string
	Currency  string
	Status    string
	ChatID    string
	Text      string
	Error     string
	Attempts  int
	FailedAt  time.Time
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=LostPublisher --dir=. --output=./mocks --outpkg=mocks

// LostPublisher сохраняет недоставленные уведомления (Kafka DLQ)
type LostPublisher interface {
	PublishLost(ctx context.Context, n LostNotification) error
}

// Config параметры доставки
type Config struct {
	ServiceName string
	ChatID      string
	// MaxAttempts число попыток отправки; 1 = без повторов
	MaxAttempts int
	// BackoffBase пауза перед второй попыткой, дальше удваивается
	BackoffBase time.Duration
}

// Notifier рендерит шаблон и отправляет сообщение с ограниченным числом повторов
type Notifier struct {
	logger   *zap.Logger
	sender   telegram.Sender
	renderer *templates.Renderer
	// lost может быть nil (Kafka выключена)
	lost  LostPublisher
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func New(logger *zap.Logger, sender telegram.Sender, renderer *templates.Renderer, lost LostPublisher, cfg Config) *Notifier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Notifier{
		logger:   logger,
		sender:   sender,
		renderer: renderer,
		lost:     lost,
		cfg:      cfg,
		sleep:    sleepContext,
		now:      time.Now,
	}
}

// Notify отправляет уведомление о записанном платеже.
// Ошибка означает, что уведомление потеряно: оно залогировано и, если есть LostPublisher, опубликовано.
func (n *Notifier) Notify(ctx context.Context, rec repository.PaymentRecord) error {
	data := templates.NewPaymentData(n.cfg.ServiceName, rec)
	text, err := n.renderer.RenderPayment(data)
	if err != nil {
		n.reportLost(ctx, rec, data, "", 0, err)
		return fmt.Errorf("%w: %v", ErrNotDelivered, err)
	}

	var sendErr error
	attempt := 0
	for attempt < n.cfg.MaxAttempts {
		if attempt > 0 {
			backoff := n.cfg.BackoffBase << (attempt - 1)
			if err := n.sleep(ctx, backoff); err != nil {
				sendErr = errors.Join(sendErr, err)
				break
			}
		}
		attempt++

		sendErr = n.sender.Send(ctx, n.cfg.ChatID, text)
		if sendErr == nil {
			n.logger.Info("payment notification sent",
				zap.String("payment_id", rec.PaymentID),
				zap.Int("attempt", attempt),
			)
			return nil
		}
		n.logger.Warn("payment notification attempt failed",
			zap.Error(sendErr),
			zap.String("payment_id", rec.PaymentID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", n.cfg.MaxAttempts),
		)
	}

	n.reportLost(ctx, rec, data, text, attempt, sendErr)
	return fmt.Errorf("%w after %d attempt(s): %v", ErrNotDelivered, attempt, sendErr)
}

func (n *Notifier) reportLost(ctx context.Context, rec repository.PaymentRecord, data templates.PaymentData, text string, attempts int, cause error) {
	n.logger.Error("payment notification lost",
		zap.Error(cause),
		zap.String("payment_id", rec.PaymentID),
		zap.String("event_id", rec.EventID),
		zap.Int("attempts", attempts),
	)
	if n.lost == nil {
		return
	}

	lost := LostNotification{
		PaymentID: rec.PaymentID,
		EventID:   rec.EventID,
		EventType: rec.EventType,
		Amount:    data.Amount,
		Currency:  data.Currency,
		Status:    data.Status,
		ChatID:    n.cfg.ChatID,
		Text:      text,
		Error:     cause.Error(),
		Attempts:  attempts,
		FailedAt:  n.now().UTC(),
	}
	// контекст запроса мог уже закончиться, а сообщение в DLQ нужно записать
	if err := n.lost.PublishLost(context.WithoutCancel(ctx), lost); err != nil {
		n.logger.Error("failed to publish lost notification",
			zap.Error(err),
			zap.String("payment_id", rec.PaymentID),
		)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
