package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/shestoi/payrelay/internal/service"
	platformobservability "github.com/shestoi/payrelay/platform/observability"
)

// DefaultMaxBodyBytes webhook PayPal заметно меньше 1 MiB
const DefaultMaxBodyBytes int64 = 1 << 20

// WebhookProcessor *service.WebhookService
type WebhookProcessor interface {
	Handle(ctx context.Context, req service.Request) service.Result
}

// Handler HTTP-обработчик webhook
type Handler struct {
	logger       *zap.Logger
	processor    WebhookProcessor
	clientKey    ClientKeyFunc
	maxBodyBytes int64
}

func NewHandler(logger *zap.Logger, processor WebhookProcessor, clientKey ClientKeyFunc, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{
		logger:       logger,
		processor:    processor,
		clientKey:    clientKey,
		maxBodyBytes: maxBodyBytes,
	}
}

// WebhookResponse тело ответа провайдеру
type WebhookResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
	Error     string `json:"error,omitempty"`
}

// PostWebhook обрабатывает POST /webhook.
// Тело читается целиком: подпись считается по исходным байтам.
func (h *Handler) PostWebhook(w http.ResponseWriter, r *http.Request) {
	body, readErr := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))

	res := h.processor.Handle(r.Context(), service.Request{
		ClientKey: h.clientKey(r),
		Header:    r.Header,
		Body:      body,
		ReadErr:   readErr,
	})

	resp := WebhookResponse{Status: string(res.Outcome), RequestID: res.RequestID}
	// детали сбоев хранилища и верификатора наружу не отдаём
	if res.StatusCode >= 400 && res.StatusCode < 500 {
		resp.Error = res.Reason
	}
	platformobservability.LoggerFromContext(r.Context(), h.logger).Debug("webhook response",
		zap.String("request_id", res.RequestID),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("status_code", res.StatusCode),
	)
	writeJSON(w, res.StatusCode, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
