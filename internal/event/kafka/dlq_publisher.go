package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shestoi/payrelay/internal/notifier"
	platformkafka "github.com/shestoi/payrelay/platform/kafka"
)

// EventTypeNotificationLost тип сообщения в DLQ
const EventTypeNotificationLost = "payment.notification.lost"

// messageWriter подмножество *kafka.Writer, нужное publisher-у
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ notifier.LostPublisher = (*DLQPublisher)(nil)

// DLQPublisher публикует недоставленные уведомления в Dead Letter Queue
type DLQPublisher struct {
	logger       *zap.Logger
	writer       messageWriter
	topic        string
	writeTimeout time.Duration
}

// NewDLQPublisher создаёт publisher поверх kafka.Writer
func NewDLQPublisher(logger *zap.Logger, cfg platformkafka.Config) *DLQPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.DLQTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
	return newDLQPublisher(logger, writer, cfg.DLQTopic, cfg.WriteTimeout)
}

func newDLQPublisher(logger *zap.Logger, writer messageWriter, topic string, writeTimeout time.Duration) *DLQPublisher {
	return &DLQPublisher{
		logger:       logger,
		writer:       writer,
		topic:        topic,
		writeTimeout: writeTimeout,
	}
}

// DLQMessage сообщение о потерянном уведомлении
type DLQMessage struct {
	EventType    string    `json:"event_type"`
	PaymentID    string    `json:"payment_id"`
	EventID      string    `json:"event_id,omitempty"`
	WebhookEvent string    `json:"webhook_event_type,omitempty"`
	Amount       string    `json:"amount"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	ChatID       string    `json:"chat_id"`
	Text         string    `json:"text,omitempty"`
	ErrorMessage string    `json:"error_message"`
	Attempts     int       `json:"attempts"`
	FailedAt     time.Time `json:"failed_at"`
}

// PublishLost публикует уведомление с payment_id в качестве key
func (p *DLQPublisher) PublishLost(ctx context.Context, n notifier.LostNotification) error {
	payload, err := json.Marshal(DLQMessage{
		EventType:    EventTypeNotificationLost,
		PaymentID:    n.PaymentID,
		EventID:      n.EventID,
		WebhookEvent: n.EventType,
		Amount:       n.Amount,
		Currency:     n.Currency,
		Status:       n.Status,
		ChatID:       n.ChatID,
		Text:         n.Text,
		ErrorMessage: n.Error,
		Attempts:     n.Attempts,
		FailedAt:     n.FailedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	if p.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.writeTimeout)
		defer cancel()
	}

	msg := kafka.Message{
		Key:   []byte(n.PaymentID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeNotificationLost)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish lost notification to DLQ",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.String("payment_id", n.PaymentID),
		)
		return fmt.Errorf("write DLQ message: %w", err)
	}

	p.logger.Info("lost notification published to DLQ",
		zap.String("topic", p.topic),
		zap.String("payment_id", n.PaymentID),
		zap.String("error_message", n.Error),
	)
	return nil
}

// Close закрывает writer
func (p *DLQPublisher) Close() error {
	p.logger.Info("closing DLQ publisher")
	return p.writer.Close()
}
