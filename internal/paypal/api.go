package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// LiveAPIBase и SandboxAPIBase адреса REST API PayPal
	LiveAPIBase    = "https://api-m.paypal.com"
	SandboxAPIBase = "https://api-m.sandbox.paypal.com"

	verificationSuccess = "SUCCESS"
	// tokenLeeway обновляем токен заранее, чтобы он не истёк посреди запроса
	tokenLeeway = time.Minute
)

// APIChecker проверяет подпись через POST /v1/notifications/verify-webhook-signature
type APIChecker struct {
	logger       *zap.Logger
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
	now          func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewAPIChecker создаёт checker; client nil = http.Client с таймаутом 10s
func NewAPIChecker(logger *zap.Logger, baseURL, clientID, clientSecret string, client *http.Client) *APIChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &APIChecker{
		logger:       logger,
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       client,
		now:          time.Now,
	}
}

type verifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Check отправляет метаданные и исходное тело события в PayPal.
// 401 на верификации сбрасывает токен и повторяет запрос один раз.
func (c *APIChecker) Check(ctx context.Context, t Transmission, webhookID string, body []byte) error {
	payload, err := json.Marshal(verifyRequest{
		AuthAlgo:         t.AuthAlgo,
		CertURL:          t.CertURL,
		TransmissionID:   t.ID,
		TransmissionSig:  t.Sig,
		TransmissionTime: t.Time,
		WebhookID:        webhookID,
		WebhookEvent:     json.RawMessage(bytes.TrimSpace(body)),
	})
	if err != nil {
		return newError(KindInvalidPayload, err, "marshal verify request")
	}

	status, err := c.verify(ctx, payload)
	if errors.Is(err, errUnauthorized) {
		c.resetToken()
		status, err = c.verify(ctx, payload)
	}
	if err != nil {
		return newError(KindUnavailable, err, "verify-webhook-signature")
	}

	if status != verificationSuccess {
		return newError(KindSignatureRejected, nil, "verification_status=%s", status)
	}
	c.logger.Debug("paypal signature verified", zap.String("transmission_id", t.ID))
	return nil
}

var errUnauthorized = errors.New("paypal api: unauthorized")

func (c *APIChecker) verify(ctx context.Context, payload []byte) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/notifications/verify-webhook-signature", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", errUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("paypal API status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.VerificationStatus, nil
}

// accessToken OAuth2 client_credentials с кешем до истечения
func (c *APIChecker) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("paypal token status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("paypal token response without access_token")
	}

	c.token = tr.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenLeeway)
	return c.token, nil
}

func (c *APIChecker) resetToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}
