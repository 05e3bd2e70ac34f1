package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "pc_store:rate_limit:orders:user:u-1", RateLimitKey("orders", "user:u-1"))
	assert.NotEqual(t, CheckoutLockKey("u-1"), CheckoutLockKey("u-2"))
	assert.Contains(t, CheckoutLockKey("u-1"), "u-1")
}
