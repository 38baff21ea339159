package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepThreshold после скольких ключей чистить протухшие окна
const sweepThreshold = 10_000

// MemoryStore окна в map под мьютексом. Не переживает рестарт процесса.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]WindowState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]WindowState)}
}

func (s *MemoryStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int64) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *WindowState
	if st, ok := s.windows[key]; ok {
		prev = &st
	}
	d := Advance(prev, now, window, limit)
	s.windows[key] = d.WindowState

	if len(s.windows) > sweepThreshold {
		s.sweep(now, window)
	}
	return d, nil
}

func (s *MemoryStore) sweep(now time.Time, window time.Duration) {
	for k, st := range s.windows {
		if now.Sub(st.WindowStart) > window {
			delete(s.windows, k)
		}
	}
}
