package middleware

import (
	"context"
	"net/http"
	"time"

	"pc_store/internal/apperr"
	"pc_store/internal/logger"
	redisx "pc_store/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CheckoutLock 同一用户同一时间只允许一个下单请求（防止重复提交同一购物车）。
// 锁带 TTL，处理完只由持有者释放；Redis 不可用时降级放行，库存正确性由数据库条件扣减保证。
func CheckoutLock(rdb *rd.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := CallerFrom(c).UserID
		if userID == "" {
			c.Next()
			return
		}

		token := uuid.NewString()
		acquired, err := redisx.AcquireCheckoutLock(c.Request.Context(), rdb, userID, token, ttl)
		if err != nil {
			logger.Warn(c, "checkout lock unavailable, continuing without it", zap.String("user_id", userID), zap.Error(err))
			c.Next()
			return
		}
		if !acquired {
			abort(c, apperr.New(http.StatusConflict, apperr.CodeCheckoutInProgress, "another checkout is already in progress"))
			return
		}

		logger.Debug(c, "checkout lock acquired", zap.String("user_id", userID))
		defer func() {
			// 请求可能已取消，释放锁用独立的短超时上下文
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := redisx.ReleaseCheckoutLockIfMatch(ctx, rdb, userID, token); err != nil {
				logger.Warn(c, "checkout lock release failed", zap.String("user_id", userID), zap.Error(err))
			}
		}()
		c.Next()
	}
}
