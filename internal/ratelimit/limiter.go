package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=Store --dir=. --output=./mocks --outpkg=mocks

// GlobalKey ключ окна при RATE_LIMIT_SCOPE=global
const GlobalKey = "global"

// ErrInvalidConfig некорректные параметры окна
var ErrInvalidConfig = errors.New("invalid rate limit config")

// WindowState состояние фиксированного окна для одного ключа
type WindowState struct {
	// Count число пропущенных запросов в текущем окне, не больше лимита
	Count       int64
	WindowStart time.Time
}

// Decision результат применения одного запроса к окну
type Decision struct {
	Allowed bool
	WindowState
}

// Store хранит окна и применяет к ним запрос атомарно (проверка и обновление одной операцией)
type Store interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int64) (Decision, error)
}

// Config параметры фиксированного окна
type Config struct {
	Window      time.Duration
	MaxRequests int64
}

func (c Config) validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive", ErrInvalidConfig)
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("%w: max requests must be positive", ErrInvalidConfig)
	}
	return nil
}

// Limiter ограничивает число запросов на ключ в фиксированном окне
type Limiter struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// New создаёт Limiter поверх store
func New(store Store, cfg Config) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Limiter{store: store, cfg: cfg, now: time.Now}, nil
}

// WithClock подменяет источник времени (тесты)
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow учитывает запрос clientKey и сообщает, укладывается ли он в лимит
func (l *Limiter) Allow(ctx context.Context, clientKey string) (bool, error) {
	if clientKey == "" {
		clientKey = GlobalKey
	}
	d, err := l.store.Hit(ctx, clientKey, l.now(), l.cfg.Window, l.cfg.MaxRequests)
	if err != nil {
		return false, fmt.Errorf("rate limit store: %w", err)
	}
	return d.Allowed, nil
}

// Advance применяет один запрос к окну prev (nil = окна ещё нет).
// Окно сбрасывается, когда now - start > window. Счётчик насыщается на limit.
func Advance(prev *WindowState, now time.Time, window time.Duration, limit int64) Decision {
	if prev == nil || now.Sub(prev.WindowStart) > window {
		return Decision{Allowed: true, WindowState: WindowState{Count: 1, WindowStart: now}}
	}
	if prev.Count >= limit {
		return Decision{Allowed: false, WindowState: *prev}
	}
	return Decision{Allowed: true, WindowState: WindowState{Count: prev.Count + 1, WindowStart: prev.WindowStart}}
}
