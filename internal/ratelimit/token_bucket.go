package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBucket is a Redis-backed token bucket shared by every API replica. Bulk and
// export calls spend tokens in proportion to how many applications they touch.
type TokenBucket struct {
	client   *redis.Client
	capacity int
	refill   float64 // tokens per second
	batch    int     // ids covered by one token
	ttl      time.Duration
}

// NewTokenBucket constructs a bucket. batch is how many ids one token pays for.
func NewTokenBucket(client *redis.Client, capacity int, refillPerSecond float64, batch int, ttl time.Duration) *TokenBucket {
	if batch <= 0 {
		batch = 1
	}
	return &TokenBucket{
		client:   client,
		capacity: capacity,
		refill:   refillPerSecond,
		batch:    batch,
		ttl:      ttl,
	}
}

// Cost is the number of tokens an operation over n ids spends: one per started batch,
// never less than one and never more than the bucket holds.
func (b *TokenBucket) Cost(n int) int {
	cost := (n + b.batch - 1) / b.batch
	if cost < 1 {
		cost = 1
	}
	if b.capacity > 0 && cost > b.capacity {
		cost = b.capacity
	}
	return cost
}

// Allow spends one token for key.
func (b *TokenBucket) Allow(ctx context.Context, key string) (bool, float64, error) {
	return b.AllowN(ctx, key, 1)
}

// AllowN spends cost tokens for key if that many are available.
// Returns allowed flag and remaining token count.
func (b *TokenBucket) AllowN(ctx context.Context, key string, cost int) (bool, float64, error) {
	now := time.Now().UnixMilli()
	res, err := bucketScript.Run(ctx, b.client, []string{key}, b.capacity, b.refill, now, b.ttl.Milliseconds(), cost).Result()
	if err != nil {
		return false, 0, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, err
	}
	allowed := arr[0].(int64) == 1
	var tokens float64
	switch v := arr[1].(type) {
	case int64:
		tokens = float64(v)
	case float64:
		tokens = v
	default:
		tokens = 0
	}
	return allowed, tokens, nil
}

// Tokens are stored as a string so fractional refills survive the Lua integer reply.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2]) -- tokens per second
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local cost = tonumber(ARGV[5])

local data = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

local delta = math.max(0, now - last)
local add = delta / 1000 * refill
tokens = math.min(capacity, tokens + add)

local allowed = 0
if tokens >= cost then
  allowed = 1
  tokens = tokens - cost
end

redis.call('HMSET', key, 'tokens', tostring(tokens), 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, math.floor(tokens)}
`)
