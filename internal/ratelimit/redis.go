package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "payrelay:ratelimit:"

// hitScript та же логика, что Advance, но внутри Redis (атомарно для всех реплик сервиса).
// KEYS[1] ключ окна; ARGV: now_ms, window_ms, limit. Ответ: {count, window_start_ms, allowed}.
var hitScript = redis.NewScript(`
local count = tonumber(redis.call('HGET', KEYS[1], 'count'))
local start = tonumber(redis.call('HGET', KEYS[1], 'start'))
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

if count == nil or start == nil or now - start > window then
	redis.call('HSET', KEYS[1], 'count', 1, 'start', now)
	redis.call('PEXPIRE', KEYS[1], window + 1000)
	return {1, now, 1}
end
if count >= limit then
	return {count, start, 0}
end
count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {count, start, 1}
`)

// RedisStore окна в Redis hash с TTL чуть больше окна
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int64) (Decision, error) {
	res, err := hitScript.Run(ctx, s.client, []string{redisKeyPrefix + key},
		now.UnixMilli(), window.Milliseconds(), limit).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis hit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("redis hit script: unexpected reply %v", res)
	}
	return Decision{
		Allowed: res[2] == 1,
		WindowState: WindowState{
			Count:       res[0],
			WindowStart: time.UnixMilli(res[1]),
		},
	}, nil
}
