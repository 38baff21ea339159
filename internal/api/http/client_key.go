package httpapi

import (
	"net"
	"net/http"
	"strings"

	"github.com/shestoi/payrelay/internal/ratelimit"
)

// Области ключа rate limit
const (
	ScopeIP     = "ip"
	ScopeGlobal = "global"
)

// ClientKeyFunc вычисляет ключ окна rate limit для запроса
type ClientKeyFunc func(r *http.Request) string

// NewClientKeyFunc scope=global: одно окно на весь сервис.
// scope=ip: RemoteAddr. При trustProxy сначала X-Forwarded-For (последний адрес, его дописал прокси), затем X-Real-IP.
func NewClientKeyFunc(scope string, trustProxy bool) ClientKeyFunc {
	if scope == ScopeGlobal {
		return func(*http.Request) string { return ratelimit.GlobalKey }
	}
	return func(r *http.Request) string {
		if trustProxy {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				hops := strings.Split(xff, ",")
				if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
					return ip
				}
			}
			if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
				return ip
			}
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
}
