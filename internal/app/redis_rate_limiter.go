/**
 * @description
 * Distributed fixed-window rate limiter backed by Redis. Used to throttle
 * verification code sends per phone number.
 */
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// The script increments the window counter and returns it together with the
// window's remaining TTL in milliseconds, atomically. The PTTL re-read
// covers a counter that lost its expiry.
var smsRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisSMSRateLimiter implements distributed rate limiting using Redis.
type RedisSMSRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSMSRateLimiter(client redis.UniversalClient, prefix string) *RedisSMSRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "mealstack:rate_limit"
	}
	return &RedisSMSRateLimiter{client: client, prefix: prefix}
}

// ConsumeRateLimit counts a send against the subject's current window and
// reports the running count plus how long until the window resets. A zero
// or missing limit disables limiting.
func (r *RedisSMSRateLimiter) ConsumeRateLimit(
	ctx context.Context,
	scope string,
	subject string,
	limit int,
	window time.Duration,
) (count int, retryAfterSeconds int, err error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}

	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := r.prefix + ":" + scope + ":" + subject
	values, err := smsRateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script reply length %d", len(values))
	}

	current, ttlMs := values[0], values[1]
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	retryAfter := int((ttlMs + 999) / 1000)
	if retryAfter < 1 {
		retryAfter = 1
	}
	return int(current), retryAfter, nil
}
