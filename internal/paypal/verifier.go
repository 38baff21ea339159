package paypal

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=SignatureChecker --dir=. --output=./mocks --outpkg=mocks

// SignatureChecker подтверждает подпись доставки: через API PayPal или локально по сертификату
type SignatureChecker interface {
	Check(ctx context.Context, t Transmission, webhookID string, body []byte) error
}

// VerifierConfig параметры предварительных проверок
type VerifierConfig struct {
	WebhookID string
	// MaxTransmissionAge допустимое расхождение transmission time с текущим временем; 0 = не проверять
	MaxTransmissionAge time.Duration
	// CertHosts допустимые хосты (и их поддомены) для PAYPAL-CERT-URL
	CertHosts []string
}

// Verifier проверяет подлинность webhook.
// Всё, что можно отвергнуть без сети (заголовки, время, cert url, тело), отвергается до вызова checker.
type Verifier struct {
	cfg     VerifierConfig
	checker SignatureChecker
	now     func() time.Time
}

func NewVerifier(cfg VerifierConfig, checker SignatureChecker) *Verifier {
	return &Verifier{cfg: cfg, checker: checker, now: time.Now}
}

// WithClock подменяет источник времени (тесты)
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify возвращает событие, только если подпись подтверждена; иначе *VerificationError
func (v *Verifier) Verify(ctx context.Context, h http.Header, body []byte) (Event, error) {
	t, err := ParseHeaders(h)
	if err != nil {
		return Event{}, err
	}

	sent, err := time.Parse(time.RFC3339, t.Time)
	if err != nil {
		return Event{}, newError(KindMalformedHeaders, err, "invalid %s", HeaderTransmissionTime)
	}
	if v.cfg.MaxTransmissionAge > 0 {
		skew := v.now().Sub(sent)
		if skew < 0 {
			skew = -skew
		}
		if skew > v.cfg.MaxTransmissionAge {
			return Event{}, newError(KindExpired, nil, "transmission time %s is outside %s", t.Time, v.cfg.MaxTransmissionAge)
		}
	}

	if err := v.checkCertURL(t.CertURL); err != nil {
		return Event{}, err
	}

	event, err := ParseEvent(body)
	if err != nil {
		return Event{}, err
	}

	if err := v.checker.Check(ctx, t, v.cfg.WebhookID, body); err != nil {
		if KindOf(err) != 0 {
			return Event{}, err
		}
		return Event{}, newError(KindUnavailable, err, "signature check")
	}
	return event, nil
}

func (v *Verifier) checkCertURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return newError(KindMalformedHeaders, err, "invalid %s", HeaderCertURL)
	}
	if u.Scheme != "https" {
		return newError(KindMalformedHeaders, nil, "%s must use https", HeaderCertURL)
	}
	if !hostAllowed(u.Hostname(), v.cfg.CertHosts) {
		return newError(KindMalformedHeaders, nil, "%s host %q is not allowed", HeaderCertURL, u.Hostname())
	}
	return nil
}

func hostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(host)
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}
