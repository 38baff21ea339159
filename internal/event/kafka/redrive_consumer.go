package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shestoi/payrelay/internal/telegram"
	platformkafka "github.com/shestoi/payrelay/platform/kafka"
)

// defaultFetchBackoff пауза после ошибки чтения из Kafka
const defaultFetchBackoff = time.Second

// ErrRedriveStalled уведомление снова не доставлено; offset не закоммичен, следующий запуск начнёт с него
var ErrRedriveStalled = errors.New("redrive stalled: notification still undeliverable")

// messageReader подмножество *kafka.Reader, нужное consumer-у
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RedriveConsumer читает DLQ и повторно отправляет сохранённый текст уведомления в Telegram
type RedriveConsumer struct {
	logger      *zap.Logger
	reader      messageReader
	sender      telegram.Sender
	maxAttempts int
	backoffBase time.Duration
	// idleTimeout > 0: остановиться, если столько времени нет новых сообщений
	idleTimeout  time.Duration
	fetchBackoff time.Duration
}

// NewRedriveConsumer создаёт consumer группы cfg.RedriveGroupID на топике cfg.DLQTopic
func NewRedriveConsumer(
	logger *zap.Logger,
	cfg platformkafka.Config,
	sender telegram.Sender,
	maxAttempts int,
	backoffBase time.Duration,
	idleTimeout time.Duration,
) *RedriveConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.RedriveGroupID,
		Topic:    cfg.DLQTopic,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return newRedriveConsumer(logger, reader, sender, maxAttempts, backoffBase, idleTimeout)
}

func newRedriveConsumer(logger *zap.Logger, reader messageReader, sender telegram.Sender, maxAttempts int, backoffBase, idleTimeout time.Duration) *RedriveConsumer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RedriveConsumer{
		logger:       logger,
		reader:       reader,
		sender:       sender,
		maxAttempts:  maxAttempts,
		backoffBase:  backoffBase,
		idleTimeout:  idleTimeout,
		fetchBackoff: defaultFetchBackoff,
	}
}

// Start обрабатывает DLQ до отмены ctx, простоя idleTimeout или первой недоставки.
// At-least-once: offset коммитится только после успешной отправки (или если сообщение не восстановить).
// Возвращает число отправленных уведомлений.
func (c *RedriveConsumer) Start(ctx context.Context) (int, error) {
	c.logger.Info("starting DLQ redrive",
		zap.Int("max_retry_attempts", c.maxAttempts),
		zap.Duration("retry_backoff_base", c.backoffBase),
		zap.Duration("idle_timeout", c.idleTimeout),
	)

	sent := 0
	for {
		m, err := c.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("redrive context cancelled, stopping", zap.Int("sent", sent))
				return sent, nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("DLQ drained", zap.Int("sent", sent))
				return sent, nil
			}
			if errors.Is(err, io.EOF) {
				c.logger.Info("kafka reader closed, stopping redrive", zap.Int("sent", sent))
				return sent, nil
			}
			c.logger.Error("failed to fetch message from kafka",
				zap.Error(err),
				zap.Duration("retry_in", c.fetchBackoff),
			)
			select {
			case <-ctx.Done():
				c.logger.Info("redrive context cancelled, stopping", zap.Int("sent", sent))
				return sent, nil
			case <-time.After(c.fetchBackoff):
			}
			continue
		}

		delivered, err := c.processMessage(ctx, m)
		if err != nil {
			return sent, err
		}
		if delivered {
			sent++
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Error("failed to commit message offset",
				zap.Error(err),
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
			)
			continue
		}
	}
}

func (c *RedriveConsumer) fetch(ctx context.Context) (kafka.Message, error) {
	if c.idleTimeout <= 0 {
		return c.reader.FetchMessage(ctx)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, c.idleTimeout)
	defer cancel()
	return c.reader.FetchMessage(fetchCtx)
}

// processMessage true, если уведомление отправлено.
// Нераспознанные сообщения коммитятся без отправки.
func (c *RedriveConsumer) processMessage(ctx context.Context, m kafka.Message) (bool, error) {
	var msg DLQMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		c.logger.Error("skipping malformed DLQ message",
			zap.Error(err),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)
		return false, nil
	}
	if msg.EventType != EventTypeNotificationLost || msg.ChatID == "" || msg.Text == "" {
		c.logger.Warn("skipping DLQ message without notification text",
			zap.String("event_type", msg.EventType),
			zap.String("payment_id", msg.PaymentID),
			zap.Int64("offset", m.Offset),
		)
		return false, nil
	}

	if err := c.sendWithRetry(ctx, msg); err != nil {
		c.logger.Error("notification still undeliverable, leaving offset uncommitted",
			zap.Error(err),
			zap.String("payment_id", msg.PaymentID),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)
		return false, fmt.Errorf("%w: payment %s: %v", ErrRedriveStalled, msg.PaymentID, err)
	}

	c.logger.Info("lost notification redelivered",
		zap.String("payment_id", msg.PaymentID),
		zap.Time("failed_at", msg.FailedAt),
	)
	return true, nil
}

func (c *RedriveConsumer) sendWithRetry(ctx context.Context, msg DLQMessage) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := c.backoffBase * time.Duration(1<<uint(attempt-2))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if lastErr = c.sender.Send(ctx, msg.ChatID, msg.Text); lastErr == nil {
			return nil
		}
		c.logger.Warn("redrive send failed",
			zap.Error(lastErr),
			zap.String("payment_id", msg.PaymentID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
		)
	}
	return lastErr
}

// Close закрывает Kafka reader
func (c *RedriveConsumer) Close() error {
	c.logger.Info("closing DLQ redrive consumer")
	return c.reader.Close()
}
