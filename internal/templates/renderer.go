package templates

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/payrelay/internal/repository"
)

// PaymentTemplateName имя файла шаблона уведомления о платеже
const PaymentTemplateName = "payment_received.tmpl"

// TimeLayout формат времени платежа в сообщении
const TimeLayout = "2006-01-02 15:04:05 MST"

//go:embed payment_received.tmpl
var defaultFS embed.FS

// PaymentData данные для шаблона уведомления
type PaymentData struct {
	ServiceName string
	Amount      string
	Currency    string
	PaymentID   string
	EventType   string
	Time        string
	Status      string
}

// NewPaymentData готовит данные шаблона из записи платежа
func NewPaymentData(serviceName string, rec repository.PaymentRecord) PaymentData {
	// минимум два знака после точки: 100 -> 100.00; больше знаков не округляем
	amount := rec.Amount.StringFixed(2)
	if rec.Amount.Exponent() < -2 {
		amount = rec.Amount.String()
	}
	return PaymentData{
		ServiceName: serviceName,
		Amount:      amount,
		Currency:    rec.Currency,
		PaymentID:   rec.PaymentID,
		EventType:   rec.EventType,
		Time:        FormatTime(rec.CreateTime),
		Status:      string(rec.Status),
	}
}

// Renderer рендерит текст уведомлений
type Renderer struct {
	logger          *zap.Logger
	paymentTemplate *template.Template
}

// NewRenderer загружает шаблон из templatesDir; пустой templatesDir = встроенный шаблон
func NewRenderer(logger *zap.Logger, templatesDir string) (*Renderer, error) {
	var (
		tmpl *template.Template
		err  error
	)
	if templatesDir == "" {
		tmpl, err = template.New(PaymentTemplateName).Option("missingkey=error").ParseFS(defaultFS, PaymentTemplateName)
	} else {
		tmpl, err = template.New(PaymentTemplateName).Option("missingkey=error").ParseFiles(filepath.Join(templatesDir, PaymentTemplateName))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse payment template: %w", err)
	}

	logger.Debug("notification template loaded",
		zap.String("templates_dir", templatesDir),
	)
	return &Renderer{
		logger:          logger,
		paymentTemplate: tmpl,
	}, nil
}

// RenderPayment рендерит уведомление о платеже
func (r *Renderer) RenderPayment(data PaymentData) (string, error) {
	var buf bytes.Buffer
	if err := r.paymentTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render payment template: %w", err)
	}
	return buf.String(), nil
}

// FormatTime формат времени, общий для шаблона и тестов
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
