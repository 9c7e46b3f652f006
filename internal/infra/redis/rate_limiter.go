package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// luaWindowIncr counts a hit and arms the window in one round trip. A key
// left without a TTL (older writer, manual SET) is re-armed instead of
// blocking its user forever.
var luaWindowIncr = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`)

// RateLimiter is a fixed-window counter per key.
type RateLimiter struct {
	cli *redis.Client
}

func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{cli: c.cli}
}

// Allow records one hit on key and reports whether the window still admits it.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	n, err := luaWindowIncr.Run(ctx, r.cli, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n <= int64(limit), nil
}

// UserRouteKey scopes a limit to one user on one route.
func UserRouteKey(userID, route string) string {
	return "ledger:ratelimit:" + route + ":" + userID
}
