package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTelegramSender_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("posts sendMessage", func(t *testing.T) {
		var got sendMessageRequest
		var path string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
		}))
		defer srv.Close()

		s := NewTelegramSender(zap.NewNop(), "123:abc", WithAPIURL(srv.URL+"/"), WithHTTPClient(srv.Client()))

		err := s.Send(ctx, "-100500", "💰 Amount: 100.00 USD")

		require.NoError(t, err)
		assert.Equal(t, "/bot123:abc/sendMessage", path)
		assert.Equal(t, "-100500", got.ChatID)
		assert.Equal(t, "💰 Amount: 100.00 USD", got.Text)
	})

	t.Run("ok=false is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
		}))
		defer srv.Close()

		s := NewTelegramSender(zap.NewNop(), "t", WithAPIURL(srv.URL))

		err := s.Send(ctx, "1", "text")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "chat not found")
	})

	t.Run("non-200 status is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		s := NewTelegramSender(zap.NewNop(), "t", WithAPIURL(srv.URL))

		err := s.Send(ctx, "1", "text")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("transport error does not leak the token", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		s := NewTelegramSender(zap.NewNop(), "secret-token", WithAPIURL(url))

		err := s.Send(ctx, "1", "text")

		require.Error(t, err)
		assert.NotContains(t, err.Error(), "secret-token")
	})
}

func TestNoOpSender_Send(t *testing.T) {
	s := NewNoOpSender(zap.NewNop())

	assert.NoError(t, s.Send(context.Background(), "1", "text"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abc", 2))
	assert.Equal(t, "💰💰...", truncate("💰💰💰", 2))
}
