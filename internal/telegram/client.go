package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultAPIURL адрес Bot API без токена
const DefaultAPIURL = "https://api.telegram.org"

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=Sender --dir=. --output=./mocks --outpkg=mocks

// Sender отправляет текстовое сообщение в чат
type Sender interface {
	Send(ctx context.Context, chatID, text string) error
}

// Option настраивает TelegramSender
type Option func(*TelegramSender)

// WithAPIURL подменяет адрес Bot API (тесты, self-hosted bot api server)
func WithAPIURL(apiURL string) Option {
	return func(s *TelegramSender) {
		s.apiURL = strings.TrimRight(apiURL, "/") + "/bot" + s.botToken
	}
}

// WithHTTPClient подменяет http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(s *TelegramSender) {
		s.client = c
	}
}

// TelegramSender отправляет сообщения через Telegram Bot API
type TelegramSender struct {
	logger   *zap.Logger
	botToken string
	apiURL   string
	client   *http.Client
}

func NewTelegramSender(logger *zap.Logger, botToken string, opts ...Option) *TelegramSender {
	s := &TelegramSender{
		logger:   logger,
		botToken: botToken,
		apiURL:   DefaultAPIURL + "/bot" + botToken,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// apiResponse {"ok": true, "result": {...}} или {"ok": false, "error_code": 400, "description": "Bad Request: chat not found"}
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Send вызывает sendMessage. Ошибка возвращается при транспортной ошибке, не-200 или ok=false.
func (s *TelegramSender) Send(ctx context.Context, chatID, text string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/sendMessage", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// url в ошибке содержит токен бота
		return fmt.Errorf("failed to send request: %s", redact(err.Error(), s.botToken))
	}
	defer resp.Body.Close()

	// При не-200 читаем тело для диагностики
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram API status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram API error %d: %s", result.ErrorCode, result.Description)
	}

	s.logger.Debug("telegram message sent",
		zap.String("chat_id", chatID),
	)
	return nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}

// NoOpSender ничего не отправляет (TELEGRAM_ENABLED=false и тесты)
type NoOpSender struct {
	logger *zap.Logger
}

func NewNoOpSender(logger *zap.Logger) *NoOpSender {
	return &NoOpSender{logger: logger}
}

// Send только логирует
func (s *NoOpSender) Send(ctx context.Context, chatID, text string) error {
	s.logger.Debug("no-op sender: message not sent",
		zap.String("chat_id", chatID),
		zap.String("text_preview", truncate(text, 50)),
	)
	return nil
}

// truncate обрезает строку до maxLen рун
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
