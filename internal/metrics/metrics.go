// Package metrics Prometheus-метрики обработки webhook.
// Методы безопасны на nil *Metrics (METRICS_ENABLED=false).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "payrelay"

// Результаты доставки уведомления
const (
	NotificationSent = "sent"
	NotificationLost = "lost"
)

type Metrics struct {
	registry      *prometheus.Registry
	webhooks      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	rotations     prometheus.Counter
}

// New регистрирует метрики в собственном registry (плюс go и process коллекторы)
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Webhook requests by terminal outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_duration_seconds",
			Help:      "Webhook handling time by terminal outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Payment notifications by delivery result.",
		}, []string{"result"}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_rotations_total",
			Help:      "Rotations of the webhook journal file.",
		}),
	}
	m.registry.MustRegister(
		m.webhooks,
		m.duration,
		m.notifications,
		m.rotations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveWebhook(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveNotification result: NotificationSent | NotificationLost
func (m *Metrics) ObserveNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// LogRotated подходит как logfile.WithOnRotate
func (m *Metrics) LogRotated(string) {
	if m == nil {
		return
	}
	m.rotations.Inc()
}

// Handler отдаёт /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
