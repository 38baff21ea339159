package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformhealth "github.com/shestoi/payrelay/platform/health/http"
	platformobservability "github.com/shestoi/payrelay/platform/observability"
)

// RouterDeps обработчики и проверки, из которых собирается роутер
type RouterDeps struct {
	ServiceName string
	Logger      *zap.Logger
	Webhook     *Handler
	// Alerts nil = пересылка алертов выключена
	Alerts http.Handler
	// Metrics nil = /metrics не отдаётся
	Metrics      http.Handler
	HealthChecks []platformhealth.Check
}

// NewRouter собирает chi роутер:
//
//	POST /webhook, /webhook/paypal   PayPal webhook
//	GET  /health                     readiness (БД и прочие checks)
//	GET  /metrics                    Prometheus
//	POST /alerts, /alerts/alertmanager
func NewRouter(d RouterDeps) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	// Observability: trace context + span на каждый запрос, logger с trace_id в контексте
	if d.Logger != nil {
		router.Use(platformobservability.HTTPMiddleware(d.ServiceName, d.Logger))
	}

	router.Post("/webhook", d.Webhook.PostWebhook)
	router.Post("/webhook/paypal", d.Webhook.PostWebhook)

	router.Get("/health", platformhealth.Handler(2*time.Second, d.HealthChecks...))

	if d.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	if d.Alerts != nil {
		router.Method(http.MethodPost, "/alerts", d.Alerts)
		router.Method(http.MethodPost, "/alerts/alertmanager", d.Alerts)
	}
	return router
}
