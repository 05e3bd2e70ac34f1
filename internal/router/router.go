package router

import (
	"net/http"
	"time"

	"pc_store/internal/catalog"
	"pc_store/internal/logger"
	"pc_store/internal/middleware"
	"pc_store/internal/order"
	"pc_store/internal/payment"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
)

// Deps 路由需要的全部依赖。Redis 为空时跳过限流与下单锁（测试/本地）。
type Deps struct {
	Catalog  *catalog.Service
	Orders   *order.Service
	Payments *payment.Service
	Redis    *rd.Client

	JWTSecret    string
	EventsSecret string
	Production   bool

	CheckoutRateLimit  int
	CheckoutRateWindow time.Duration
	CheckoutLockTTL    time.Duration
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, deps Deps) {
	h := &handlers{deps: deps}

	r.Use(logger.RequestLogger(), middleware.SecurityHeaders())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	api := r.Group("/api")
	auth := middleware.Auth(deps.JWTSecret)

	// Products
	api.GET("/products", h.listProducts)
	api.GET("/products/:id/stock", h.productStock)

	// Orders
	orders := api.Group("/orders", auth)
	orders.POST("", append(h.checkoutGuards("orders"), h.placeOrder)...)
	orders.GET("/mine", h.myOrders)
	orders.GET("/:id", h.getOrder)

	// Payments：webhook 靠签名鉴权，不走 JWT
	api.POST("/payments/webhook", h.wompiWebhook)
	payments := api.Group("/payments", auth)
	payments.POST("/checkout/:id", h.createCheckout)
	payments.GET("/verify/:id", append(h.rateLimit("verify"), h.verifyPayment)...)

	// Admin
	admin := api.Group("/admin", auth, middleware.RequireAdmin())
	admin.POST("/products", h.createProduct)
	admin.GET("/orders", h.listOrders)
	admin.PUT("/orders/:id/status", h.updateOrderStatus)
	admin.GET("/orders/:id/events", h.orderEvents)
}

// checkoutGuards 下单前的限流 + 单用户占位锁。
func (h *handlers) checkoutGuards(scope string) []gin.HandlerFunc {
	if h.deps.Redis == nil {
		return nil
	}
	return append(h.rateLimit(scope), middleware.CheckoutLock(h.deps.Redis, h.deps.CheckoutLockTTL))
}

func (h *handlers) rateLimit(scope string) []gin.HandlerFunc {
	if h.deps.Redis == nil || h.deps.CheckoutRateLimit <= 0 {
		return nil
	}
	return []gin.HandlerFunc{
		middleware.RedisRateLimit(h.deps.Redis, scope, h.deps.CheckoutRateLimit, h.deps.CheckoutRateWindow),
	}
}
