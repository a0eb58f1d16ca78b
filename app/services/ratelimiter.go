package services

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"sms-backend/utils"
)

// RateLimiter guards a provider's rolling second/minute/hour send windows.
type RateLimiter interface {
	// Allow reports whether one more send fits inside all three windows and,
	// if it does, consumes a slot in each. Check and increment are a single
	// atomic operation; two concurrent callers can never both be admitted
	// into the last slot. A zero ceiling means the window is unlimited.
	Allow(ctx context.Context, providerID uint, perSecond, perMinute, perHour int) (bool, error)
}

// Fixed buckets keyed by provider id and window epoch. All three buckets are
// checked before any is incremented, so a denial consumes nothing.
var rateWindowScript = redis.NewScript(`
local limits = {tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3])}
local ttls = {2, 120, 7200}
for i = 1, 3 do
	if limits[i] > 0 then
		local count = tonumber(redis.call('GET', KEYS[i]) or '0')
		if count >= limits[i] then
			return 0
		end
	end
end
for i = 1, 3 do
	local count = redis.call('INCR', KEYS[i])
	if count == 1 then
		redis.call('EXPIRE', KEYS[i], ttls[i])
	end
end
return 1
`)

// RedisRateLimiter implements RateLimiter on redis fixed-window buckets
type RedisRateLimiter struct {
	rc *redis.Client
}

// NewRedisRateLimiter creates a new rate limiter instance
func NewRedisRateLimiter(rc *redis.Client) RateLimiter {
	return &RedisRateLimiter{rc: rc}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, providerID uint, perSecond, perMinute, perHour int) (bool, error) {
	if perSecond <= 0 && perMinute <= 0 && perHour <= 0 {
		return true, nil
	}

	now := utils.UTCNow().Unix()
	keys := []string{
		fmt.Sprintf("sms:ratelimit:%d:s:%d", providerID, now),
		fmt.Sprintf("sms:ratelimit:%d:m:%d", providerID, now/60),
		fmt.Sprintf("sms:ratelimit:%d:h:%d", providerID, now/3600),
	}

	res, err := rateWindowScript.Run(ctx, l.rc, keys, perSecond, perMinute, perHour).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return res == 1, nil
}
