package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakePayPal минимальный REST API PayPal: выдаёт токены и отвечает заданным статусом проверки
type fakePayPal struct {
	tokenCalls  atomic.Int32
	verifyCalls atomic.Int32
	// verifyStatus HTTP-код verify-webhook-signature; 0 = 200
	verifyStatus atomic.Int32
	// unauthorizedOnce первый verify отвечает 401
	unauthorizedOnce atomic.Bool
	result           string
	lastRequest      atomic.Value
	lastAuth         atomic.Value
}

func newFakePayPal(t *testing.T, result string) (*fakePayPal, *httptest.Server) {
	t.Helper()
	f := &fakePayPal{result: result}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "client" || secret != "secret" || r.FormValue("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := f.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("token-%d", n),
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		f.verifyCalls.Add(1)
		if f.unauthorizedOnce.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if code := f.verifyStatus.Load(); code != 0 {
			http.Error(w, "internal error", int(code))
			return
		}
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.lastRequest.Store(req)
		f.lastAuth.Store(r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"verification_status": f.result})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func testTransmission() Transmission {
	return Transmission{
		ID:       "tx-1",
		Time:     "2024-05-01T10:00:00Z",
		Sig:      "c2lnbmF0dXJl",
		CertURL:  "https://api.paypal.com/v1/notifications/certs/CERT-1",
		AuthAlgo: DefaultAuthAlgo,
	}
}

func TestAPIChecker_Check(t *testing.T) {
	ctx := context.Background()
	body := []byte(saleCompletedBody)

	t.Run("SUCCESS verifies and sends the original event", func(t *testing.T) {
		fake, srv := newFakePayPal(t, "SUCCESS")
		c := NewAPIChecker(zap.NewNop(), srv.URL+"/", "client", "secret", srv.Client())

		err := c.Check(ctx, testTransmission(), "WH-ID", body)

		require.NoError(t, err)
		req := fake.lastRequest.Load().(verifyRequest)
		assert.Equal(t, "WH-ID", req.WebhookID)
		assert.Equal(t, "tx-1", req.TransmissionID)
		assert.Equal(t, DefaultAuthAlgo, req.AuthAlgo)
		assert.Equal(t, "c2lnbmF0dXJl", req.TransmissionSig)
		assert.Equal(t, "Bearer token-1", fake.lastAuth.Load())
		assert.JSONEq(t, saleCompletedBody, string(req.WebhookEvent))
	})

	t.Run("token is cached between checks", func(t *testing.T) {
		fake, srv := newFakePayPal(t, "SUCCESS")
		c := NewAPIChecker(zap.NewNop(), srv.URL, "client", "secret", srv.Client())

		require.NoError(t, c.Check(ctx, testTransmission(), "WH-ID", body))
		require.NoError(t, c.Check(ctx, testTransmission(), "WH-ID", body))

		assert.Equal(t, int32(1), fake.tokenCalls.Load())
		assert.Equal(t, int32(2), fake.verifyCalls.Load())
	})

	t.Run("expired token is refreshed", func(t *testing.T) {
		fake, srv := newFakePayPal(t, "SUCCESS")
		c := NewAPIChecker(zap.NewNop(), srv.URL, "client", "secret", srv.Client())
		now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		c.now = func() time.Time { return now }

		require.NoError(t, c.Check(ctx, testTransmission(), "WH-ID", body))
		now = now.Add(time.Hour)
		require.NoError(t, c.Check(ctx, testTransmission(), "WH-ID", body))

		assert.Equal(t, int32(2), fake.tokenCalls.Load())
	})

	t.Run("FAILURE is a rejection", func(t *testing.T) {
		_, srv := newFakePayPal(t, "FAILURE")
		c := NewAPIChecker(zap.NewNop(), srv.URL, "client", "secret", srv.Client())

		err := c.Check(ctx, testTransmission(), "WH-ID", body)

		require.Error(t, err)
		assert.Equal(t, KindSignatureRejected, KindOf(err))
	})

	t.Run("server error means unavailable", func(t *testing.T) {
		fake, srv := newFakePayPal(t, "SUCCESS")
		fake.verifyStatus.Store(http.StatusBadGateway)
		c := NewAPIChecker(zap.NewNop(), srv.URL, "client", "secret", srv.Client())

		err := c.Check(ctx, testTransmission(), "WH-ID", body)

		assert.Equal(t, KindUnavailable, KindOf(err))
	})

	t.Run("bad credentials mean unavailable", func(t *testing.T) {
		fake, srv := newFakePayPal(t, "SUCCESS")
		c := NewAPIChecker(zap.NewNop(), srv.URL, "client", "wrong", srv.Client())

		err := c.Check(ctx, testTransmission(), "WH-ID", body)

		assert.Equal(t, KindUnavailable, KindOf(err))
		assert.Equal(t, int32(0), fake.verifyCalls.Load())
	})

	t.Run("401 on verify retries once with a new token", func(t *testing.T) {
		fake, srv := newFakePayPal(t, "SUCCESS")
		fake.unauthorizedOnce.Store(true)
		c := NewAPIChecker(zap.NewNop(), srv.URL, "client", "secret", srv.Client())

		err := c.Check(ctx, testTransmission(), "WH-ID", body)

		require.NoError(t, err)
		assert.Equal(t, int32(2), fake.tokenCalls.Load())
		assert.Equal(t, int32(2), fake.verifyCalls.Load())
	})

	t.Run("unreachable API means unavailable", func(t *testing.T) {
		_, srv := newFakePayPal(t, "SUCCESS")
		url := srv.URL
		srv.Close()
		c := NewAPIChecker(zap.NewNop(), url, "client", "secret", nil)

		err := c.Check(ctx, testTransmission(), "WH-ID", body)

		assert.Equal(t, KindUnavailable, KindOf(err))
	})
}
