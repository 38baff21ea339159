package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shestoi/payrelay/internal/repository/sqlite"
)

// MockStore реализует Store для тестов
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int64) (Decision, error) {
	args := m.Called(ctx, key, now, window, limit)
	return args.Get(0).(Decision), args.Error(1)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestAdvance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := time.Hour

	t.Run("no prior state opens window", func(t *testing.T) {
		d := Advance(nil, start, window, 3)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(1), d.Count)
		assert.Equal(t, start, d.WindowStart)
	})

	t.Run("active window increments", func(t *testing.T) {
		d := Advance(&WindowState{Count: 1, WindowStart: start}, start.Add(time.Minute), window, 3)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(2), d.Count)
		assert.Equal(t, start, d.WindowStart)
	})

	t.Run("limit reached saturates", func(t *testing.T) {
		prev := WindowState{Count: 3, WindowStart: start}
		d := Advance(&prev, start.Add(time.Minute), window, 3)
		assert.False(t, d.Allowed)
		assert.Equal(t, prev, d.WindowState)
	})

	t.Run("exactly window length is still active", func(t *testing.T) {
		d := Advance(&WindowState{Count: 3, WindowStart: start}, start.Add(window), window, 3)
		assert.False(t, d.Allowed)
	})

	t.Run("expired window resets to one", func(t *testing.T) {
		now := start.Add(window + time.Nanosecond)
		d := Advance(&WindowState{Count: 3, WindowStart: start}, now, window, 3)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(1), d.Count)
		assert.Equal(t, now, d.WindowStart)
	})
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(NewMemoryStore(), Config{Window: 0, MaxRequests: 1})
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = New(NewMemoryStore(), Config{Window: time.Hour, MaxRequests: 0})
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = New(nil, Config{Window: time.Hour, MaxRequests: 1})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestLimiter_StoreError(t *testing.T) {
	store := new(MockStore)
	store.On("Hit", mock.Anything, "10.0.0.1", mock.Anything, time.Hour, int64(5)).
		Return(Decision{}, errors.New("redis down")).Once()

	l, err := New(store, Config{Window: time.Hour, MaxRequests: 5})
	require.NoError(t, err)

	allowed, err := l.Allow(context.Background(), "10.0.0.1")
	require.Error(t, err)
	assert.False(t, allowed)
	store.AssertExpectations(t)
}

func TestLimiter_EmptyKeyIsGlobal(t *testing.T) {
	store := new(MockStore)
	store.On("Hit", mock.Anything, GlobalKey, mock.Anything, time.Minute, int64(1)).
		Return(Decision{Allowed: true}, nil).Once()

	l, err := New(store, Config{Window: time.Minute, MaxRequests: 1})
	require.NoError(t, err)

	allowed, err := l.Allow(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, allowed)
	store.AssertExpectations(t)
}

// runStoreContract общие проверки для любой реализации Store
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("blocks after max until window elapses", func(t *testing.T) {
		clock := newClock()
		l, err := New(newStore(t), Config{Window: time.Hour, MaxRequests: 3})
		require.NoError(t, err)
		l.WithClock(clock.Now)

		for i := 0; i < 3; i++ {
			allowed, err := l.Allow(ctx, "1.2.3.4")
			require.NoError(t, err)
			assert.True(t, allowed, "request %d must pass", i+1)
		}
		for i := 0; i < 5; i++ {
			clock.Advance(time.Minute)
			allowed, err := l.Allow(ctx, "1.2.3.4")
			require.NoError(t, err)
			assert.False(t, allowed)
		}

		clock.Advance(time.Hour)
		allowed, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("keys are independent", func(t *testing.T) {
		clock := newClock()
		l, err := New(newStore(t), Config{Window: time.Hour, MaxRequests: 1})
		require.NoError(t, err)
		l.WithClock(clock.Now)

		allowed, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = l.Allow(ctx, "b")
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("concurrent hits never exceed max", func(t *testing.T) {
		clock := newClock()
		l, err := New(newStore(t), Config{Window: time.Hour, MaxRequests: 10})
		require.NoError(t, err)
		l.WithClock(clock.Now)

		var (
			wg      sync.WaitGroup
			allowed atomic.Int64
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := l.Allow(ctx, GlobalKey)
				if err == nil && ok {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int64(10), allowed.Load())
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_SweepDropsExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i <= sweepThreshold; i++ {
		_, err := s.Hit(ctx, fmt.Sprintf("k%d", i), start, time.Minute, 1)
		require.NoError(t, err)
	}
	_, err := s.Hit(ctx, "late", start.Add(time.Hour), time.Minute, 1)
	require.NoError(t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.windows, 1)
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "payments.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return NewSQLiteStore(db)
	})
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "payments.db")
	clock := newClock()

	db, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	l, err := New(NewSQLiteStore(db), Config{Window: time.Hour, MaxRequests: 1})
	require.NoError(t, err)
	l.WithClock(clock.Now)

	allowed, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, allowed)
	require.NoError(t, db.Close())

	db, err = sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()
	l, err = New(NewSQLiteStore(db), Config{Window: time.Hour, MaxRequests: 1})
	require.NoError(t, err)
	l.WithClock(clock.Now)

	allowed, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, allowed, "window must survive restart")
}
