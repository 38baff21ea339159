package paypal

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxCertSize ограничение на размер скачиваемого PEM
const maxCertSize = 64 * 1024

// CertChecker проверяет подпись локально: скачивает сертификат PayPal по PAYPAL-CERT-URL
// и сверяет SHA256withRSA над "transmission_id|transmission_time|webhook_id|crc32(body)".
type CertChecker struct {
	logger *zap.Logger
	client *http.Client
	// roots корни для проверки цепочки; nil = системные
	roots *x509.CertPool
	now   func() time.Time

	mu    sync.Mutex
	certs map[string]*x509.Certificate
}

func NewCertChecker(logger *zap.Logger, client *http.Client, roots *x509.CertPool) *CertChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &CertChecker{
		logger: logger,
		client: client,
		roots:  roots,
		now:    time.Now,
		certs:  make(map[string]*x509.Certificate),
	}
}

// SignedMessage строка, которую PayPal подписывает для доставки
func SignedMessage(t Transmission, webhookID string, body []byte) string {
	crc := strconv.FormatUint(uint64(crc32.ChecksumIEEE(body)), 10)
	return t.ID + "|" + t.Time + "|" + webhookID + "|" + crc
}

func (c *CertChecker) Check(ctx context.Context, t Transmission, webhookID string, body []byte) error {
	if t.AuthAlgo != DefaultAuthAlgo {
		return newError(KindMalformedHeaders, nil, "unsupported %s %q", HeaderAuthAlgo, t.AuthAlgo)
	}
	sig, err := base64.StdEncoding.DecodeString(t.Sig)
	if err != nil {
		return newError(KindMalformedHeaders, err, "invalid %s", HeaderTransmissionSig)
	}

	cert, err := c.certificate(ctx, t.CertURL)
	if err != nil {
		return err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return newError(KindSignatureRejected, nil, "certificate key is not RSA")
	}

	digest := sha256.Sum256([]byte(SignedMessage(t, webhookID, body)))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return newError(KindSignatureRejected, err, "signature mismatch")
	}
	return nil
}

// certificate берёт сертификат из кеша или скачивает и проверяет его.
// Просроченный сертификат из кеша выбрасывается.
func (c *CertChecker) certificate(ctx context.Context, certURL string) (*x509.Certificate, error) {
	now := c.now()

	c.mu.Lock()
	cached, ok := c.certs[certURL]
	c.mu.Unlock()
	if ok && now.Before(cached.NotAfter) {
		return cached, nil
	}

	chain, err := c.download(ctx, certURL)
	if err != nil {
		return nil, newError(KindUnavailable, err, "download certificate")
	}
	leaf := chain[0]

	intermediates := x509.NewCertPool()
	for _, ic := range chain[1:] {
		intermediates.AddCert(ic)
	}
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         c.roots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, newError(KindSignatureRejected, err, "certificate is not trusted")
	}

	c.mu.Lock()
	c.certs[certURL] = leaf
	c.mu.Unlock()

	c.logger.Info("paypal certificate cached",
		zap.String("cert_url", certURL),
		zap.Time("not_after", leaf.NotAfter),
	)
	return leaf, nil
}

func (c *CertChecker) download(ctx context.Context, certURL string) ([]*x509.Certificate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cert url status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCertSize))
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}

	var chain []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no PEM certificate at %s", certURL)
	}
	return chain, nil
}
