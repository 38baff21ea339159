package templates

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/payrelay/internal/repository"
)

func testRecord() repository.PaymentRecord {
	return repository.PaymentRecord{
		PaymentID:   "TEST123",
		EventType:   "PAYMENT.SALE.COMPLETED",
		Amount:      decimal.RequireFromString("100"),
		Currency:    "USD",
		Status:      repository.StatusCompleted,
		CreateTime:  time.Date(2024, 5, 1, 9, 59, 58, 0, time.UTC),
		ProcessedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestRenderer_DefaultTemplate(t *testing.T) {
	r, err := NewRenderer(zap.NewNop(), "")
	require.NoError(t, err)

	text, err := r.RenderPayment(NewPaymentData("Test Service", testRecord()))

	require.NoError(t, err)
	assert.Contains(t, text, "NEW PAYMENT at Test Service")
	assert.Contains(t, text, "💰 Amount: 100.00 USD")
	assert.Contains(t, text, "🆔 Payment ID: TEST123")
	assert.Contains(t, text, "📅 Time: 2024-05-01 09:59:58 UTC")
	assert.Contains(t, text, "✅ Status: COMPLETED")
}

func TestRenderer_TemplatesDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PaymentTemplateName),
		[]byte("{{.PaymentID}}: {{.Amount}} {{.Currency}} ({{.EventType}})"), 0o644))

	r, err := NewRenderer(zap.NewNop(), dir)
	require.NoError(t, err)

	text, err := r.RenderPayment(NewPaymentData("svc", testRecord()))

	require.NoError(t, err)
	assert.Equal(t, "TEST123: 100.00 USD (PAYMENT.SALE.COMPLETED)", text)
}

func TestRenderer_Errors(t *testing.T) {
	t.Run("missing template file", func(t *testing.T) {
		_, err := NewRenderer(zap.NewNop(), t.TempDir())

		require.Error(t, err)
	})

	t.Run("unknown field fails at render time", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, PaymentTemplateName), []byte("{{.Customer}}"), 0o644))
		r, err := NewRenderer(zap.NewNop(), dir)
		require.NoError(t, err)

		_, err = r.RenderPayment(NewPaymentData("svc", testRecord()))

		require.Error(t, err)
	})
}

func TestNewPaymentData_Amount(t *testing.T) {
	rec := testRecord()

	rec.Amount = decimal.RequireFromString("12.5")
	assert.Equal(t, "12.50", NewPaymentData("svc", rec).Amount)

	rec.Amount = decimal.RequireFromString("0.125")
	assert.Equal(t, "0.125", NewPaymentData("svc", rec).Amount)
}
