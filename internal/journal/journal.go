// Package journal пишет по одной структурированной записи на каждый обработанный webhook.
package journal

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	platformlogging "github.com/shestoi/payrelay/platform/logging"
	platformobservability "github.com/shestoi/payrelay/platform/observability"
)

// Entry итог обработки одного запроса
type Entry struct {
	RequestID  string
	Outcome    string
	ClientKey  string
	PaymentID  string
	EventID    string
	EventType  string
	Reason     string
	StatusCode int
	Duration   time.Duration
	Level      zapcore.Level
}

// Journal zap JSON logger поверх файла журнала (обычно logfile.Manager)
type Journal struct {
	logger *zap.Logger
}

// New создаёт журнал, пишущий JSON-строки в sink
func New(sink zapcore.WriteSyncer, serviceName, env string) (*Journal, error) {
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: serviceName,
		Env:         env,
		Level:       "debug",
		Format:      "json",
		Sink:        sink,
	})
	if err != nil {
		return nil, err
	}
	return &Journal{logger: logger.Named("webhook")}, nil
}

// NewFromLogger для тестов и случаев, когда журнал не нужен в отдельном файле
func NewFromLogger(logger *zap.Logger) *Journal {
	return &Journal{logger: logger}
}

// Record пишет ровно одну запись
func (j *Journal) Record(ctx context.Context, e Entry) {
	fields := []zap.Field{
		zap.String("request_id", e.RequestID),
		zap.String("outcome", e.Outcome),
		zap.String("client_key", e.ClientKey),
		zap.Int("status_code", e.StatusCode),
		zap.Duration("duration", e.Duration),
	}
	if e.PaymentID != "" {
		fields = append(fields, zap.String("payment_id", e.PaymentID))
	}
	if e.EventID != "" {
		fields = append(fields, zap.String("event_id", e.EventID))
	}
	if e.EventType != "" {
		fields = append(fields, zap.String("event_type", e.EventType))
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}
	fields = append(fields, platformobservability.TraceFields(ctx)...)

	if ce := j.logger.Check(e.Level, "webhook processed"); ce != nil {
		ce.Write(fields...)
	}
}

// Sync сбрасывает буферы
func (j *Journal) Sync() error {
	return j.logger.Sync()
}
