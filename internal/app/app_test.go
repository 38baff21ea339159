package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/payrelay/internal/config"
	"github.com/shestoi/payrelay/internal/paypal"
	"github.com/shestoi/payrelay/internal/repository"
	platformkafka "github.com/shestoi/payrelay/platform/kafka"
)

const saleBody = `{
  "id": "WH-APP-1",
  "event_type": "PAYMENT.SALE.COMPLETED",
  "create_time": "2024-05-01T10:00:00Z",
  "resource": {
    "id": "PAY-APP-1",
    "create_time": "2024-05-01T09:59:58Z",
    "amount": {"total": "42.50", "currency": "USD"}
  }
}`

// newPayPalAPI подтверждает любую подпись
func newPayPalAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "token", "expires_in": 3600})
	})
	mux.HandleFunc("/v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"verification_status": "SUCCESS"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, apiBase string) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		AppEnv:                   config.EnvLocal,
		ServiceName:              "payrelay",
		HTTPAddr:                 "127.0.0.1:0",
		ShutdownTimeout:          time.Second,
		MaxBodyBytes:             1 << 20,
		StorageDriver:            config.StorageSQLite,
		DatabasePath:             filepath.Join(dir, "data", "payrelay.db"),
		PayPalAPIBase:            apiBase,
		PayPalClientID:           "client",
		PayPalClientSecret:       "secret",
		PayPalWebhookID:          "WH-ID",
		PayPalVerifyMode:         config.VerifyModeAPI,
		PayPalMaxTransmissionAge: 15 * time.Minute,
		PayPalCertHosts:          []string{"paypal.com"},
		PayPalVerifyTimeout:      5 * time.Second,
		TelegramRetryMaxAttempts: 1,
		RateLimitStore:           config.RateLimitStoreSQLite,
		RateLimitWindow:          time.Hour,
		RateLimitMaxRequests:     2,
		RateLimitScope:           "ip",
		LogDir:                   filepath.Join(dir, "logs"),
		LogFileName:              "payrelay.log",
		LogMaxSize:               1 << 20,
		Kafka:                    platformkafka.DefaultConfig(),
		MetricsEnabled:           true,
	}
}

func signedRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set(paypal.HeaderTransmissionID, "T-1")
	req.Header.Set(paypal.HeaderTransmissionTime, time.Now().UTC().Format(time.RFC3339))
	req.Header.Set(paypal.HeaderTransmissionSig, "c2ln")
	req.Header.Set(paypal.HeaderCertURL, "https://api.paypal.com/v1/notifications/certs/CERT-1")
	req.Header.Set(paypal.HeaderAuthAlgo, paypal.DefaultAuthAlgo)
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBuild_WebhookFlow(t *testing.T) {
	// Arrange
	ctx := context.Background()
	cfg := testConfig(t, newPayPalAPI(t).URL)

	a, err := Build(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	h := a.Handler()

	// Act
	first := serve(h, signedRequest(saleBody))
	second := serve(h, signedRequest(saleBody))
	third := serve(h, signedRequest(saleBody))
	health := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	metricsRec := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	a.Shutdown()

	// Assert
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Contains(t, first.Body.String(), `"status":"recorded"`)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), `"status":"duplicate"`)
	assert.Equal(t, http.StatusTooManyRequests, third.Code)

	assert.Equal(t, http.StatusOK, health.Code)
	assert.Contains(t, metricsRec.Body.String(), `payrelay_webhook_requests_total{outcome="recorded"} 1`)

	journalData, err := os.ReadFile(cfg.LogFilePath())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(journalData)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"outcome":"recorded"`)
	assert.Contains(t, lines[0], `"payment_id":"PAY-APP-1"`)
	assert.Contains(t, lines[1], `"outcome":"duplicate"`)
	assert.Contains(t, lines[2], `"outcome":"rate_limited"`)

	// запись пережила закрытие приложения
	storage, err := OpenStorage(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = storage.Close(ctx) }()
	rec, err := storage.Repo.FindByPaymentID(ctx, "PAY-APP-1")
	require.NoError(t, err)
	assert.Equal(t, "42.50", repository.AmountText(rec.Amount))
	assert.Equal(t, "USD", rec.Currency)
	assert.Equal(t, repository.StatusCompleted, rec.Status)
	assert.Equal(t, int64(2), storage.SchemaVersion)
}

func TestBuild_RejectsUnsignedWebhook(t *testing.T) {
	// Arrange
	cfg := testConfig(t, newPayPalAPI(t).URL)
	cfg.RateLimitStore = config.RateLimitStoreMemory
	a, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Shutdown()

	// Act
	rec := serve(a.Handler(), httptest.NewRequest(http.MethodPost, "/webhook/paypal", strings.NewReader(saleBody)))

	// Assert
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), paypal.HeaderTransmissionID)
}

func TestBuild_InvalidCombination(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.StorageDriver = "mysql"

	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_DRIVER")
}
