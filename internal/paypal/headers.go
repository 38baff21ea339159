package paypal

import (
	"net/http"
	"strings"
)

// Заголовки, которыми PayPal подписывает доставку webhook
const (
	HeaderTransmissionID   = "PAYPAL-TRANSMISSION-ID"
	HeaderTransmissionTime = "PAYPAL-TRANSMISSION-TIME"
	HeaderTransmissionSig  = "PAYPAL-TRANSMISSION-SIG"
	HeaderCertURL          = "PAYPAL-CERT-URL"
	HeaderAuthAlgo         = "PAYPAL-AUTH-ALGO"
)

// DefaultAuthAlgo алгоритм подписи, если PayPal не прислал PAYPAL-AUTH-ALGO
const DefaultAuthAlgo = "SHA256withRSA"

// Transmission метаданные доставки из заголовков
type Transmission struct {
	ID       string
	Time     string
	Sig      string
	CertURL  string
	AuthAlgo string
}

// ParseHeaders извлекает метаданные доставки. Без id, time, sig или cert url
// возвращает KindMalformedHeaders со списком отсутствующих заголовков.
func ParseHeaders(h http.Header) (Transmission, error) {
	t := Transmission{
		ID:       strings.TrimSpace(h.Get(HeaderTransmissionID)),
		Time:     strings.TrimSpace(h.Get(HeaderTransmissionTime)),
		Sig:      strings.TrimSpace(h.Get(HeaderTransmissionSig)),
		CertURL:  strings.TrimSpace(h.Get(HeaderCertURL)),
		AuthAlgo: strings.TrimSpace(h.Get(HeaderAuthAlgo)),
	}

	var missing []string
	if t.ID == "" {
		missing = append(missing, HeaderTransmissionID)
	}
	if t.Time == "" {
		missing = append(missing, HeaderTransmissionTime)
	}
	if t.Sig == "" {
		missing = append(missing, HeaderTransmissionSig)
	}
	if t.CertURL == "" {
		missing = append(missing, HeaderCertURL)
	}
	if len(missing) > 0 {
		return Transmission{}, newError(KindMalformedHeaders, nil, "missing %s", strings.Join(missing, ", "))
	}

	if t.AuthAlgo == "" {
		t.AuthAlgo = DefaultAuthAlgo
	}
	return t, nil
}
