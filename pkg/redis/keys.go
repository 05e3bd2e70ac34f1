package redis

import "fmt"

// RateLimitKey 限流窗口键，subject 为 user:<id> 或 ip:<addr>。
func RateLimitKey(scope, subject string) string {
	return fmt.Sprintf("pc_store:rate_limit:%s:%s", scope, subject)
}

// CheckoutLockKey 标记某用户有一个下单请求正在处理。
func CheckoutLockKey(userID string) string {
	return fmt.Sprintf("pc_store:checkout:lock:%s", userID)
}
