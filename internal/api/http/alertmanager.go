package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/payrelay/internal/telegram"
)

// alertmanagerPayload webhook_config payload Alertmanager (version 4)
type alertmanagerPayload struct {
	Version     string      `json:"version"`
	Status      string      `json:"status"` // "firing" | "resolved"
	Receiver    string      `json:"receiver"`
	ExternalURL string      `json:"externalURL"`
	Alerts      []alertItem `json:"alerts"`
}

type alertItem struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    string            `json:"startsAt"`
	EndsAt      string            `json:"endsAt"`
}

// AlertHandler пересылает алерты Alertmanager (например, по payrelay_notifications_total{result="lost"})
// в Telegram-чат дежурных.
type AlertHandler struct {
	logger  *zap.Logger
	sender  telegram.Sender
	chatID  string
	timeout time.Duration
}

func NewAlertHandler(logger *zap.Logger, sender telegram.Sender, chatID string) *AlertHandler {
	return &AlertHandler{
		logger:  logger,
		sender:  sender,
		chatID:  chatID,
		timeout: 15 * time.Second,
	}
}

// ServeHTTP POST /alerts и /alerts/alertmanager
func (h *AlertHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload alertmanagerPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes)).Decode(&payload); err != nil {
		h.logger.Warn("alertmanager webhook: decode failed", zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if h.chatID == "" {
		h.logger.Warn("alertmanager webhook: ALERT_TELEGRAM_CHAT_ID not set, skipping send")
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.sender.Send(ctx, h.chatID, formatAlerts(&payload)); err != nil {
		h.logger.Error("alertmanager webhook: telegram send failed", zap.Error(err), zap.String("chat_id", h.chatID))
		// 5xx: Alertmanager повторит отправку
		http.Error(w, "failed to send alert", http.StatusBadGateway)
		return
	}

	h.logger.Info("alertmanager webhook: alert sent",
		zap.String("status", payload.Status),
		zap.Int("alerts", len(payload.Alerts)),
	)
	w.WriteHeader(http.StatusOK)
}

func formatAlerts(p *alertmanagerPayload) string {
	var b strings.Builder
	emoji := "🔥"
	if p.Status == "resolved" {
		emoji = "✅"
	}
	fmt.Fprintf(&b, "%s payrelay alert: %s\n", emoji, p.Status)
	if p.ExternalURL != "" {
		fmt.Fprintf(&b, "URL: %s\n", p.ExternalURL)
	}
	for i, a := range p.Alerts {
		name := a.Labels["alertname"]
		if name == "" {
			name = "Alert"
		}
		fmt.Fprintf(&b, "\n[%d] %s (%s)\n", i+1, name, a.Status)
		if summary := a.Annotations["summary"]; summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", summary)
		}
		if desc := a.Annotations["description"]; desc != "" {
			fmt.Fprintf(&b, "Description: %s\n", desc)
		}
		if a.StartsAt != "" {
			fmt.Fprintf(&b, "StartsAt: %s\n", a.StartsAt)
		}
		if a.Status == "resolved" && a.EndsAt != "" {
			fmt.Fprintf(&b, "EndsAt: %s\n", a.EndsAt)
		}

		keys := make([]string, 0, len(a.Labels))
		for k := range a.Labels {
			if k != "alertname" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s=%s ", k, a.Labels[k])
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
