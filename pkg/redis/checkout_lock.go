package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaReleaseIfMatch 仅当锁值等于持有者 token 时才删除，避免误删超时后别人新加的锁。
const luaReleaseIfMatch = `
local lockKey = KEYS[1]
local token = ARGV[1]
if redis.call('GET', lockKey) == token then
  return redis.call('DEL', lockKey)
end
return 0
`

// AcquireCheckoutLock SETNX 加锁。acquired=false 表示同一用户已有下单在处理。
func AcquireCheckoutLock(ctx context.Context, rdb *rd.Client, userID, token string, ttl time.Duration) (bool, error) {
	return rdb.SetNX(ctx, CheckoutLockKey(userID), token, ttl).Result()
}

// ReleaseCheckoutLockIfMatch 安全释放下单锁。
func ReleaseCheckoutLockIfMatch(ctx context.Context, rdb *rd.Client, userID, token string) error {
	_, err := rdb.Eval(ctx, luaReleaseIfMatch, []string{CheckoutLockKey(userID)}, token).Int()
	return err
}
