package router

import (
	"encoding/json"
	"net/http"

	"pc_store/internal/apperr"
	"pc_store/internal/logger"
	"pc_store/internal/middleware"
	"pc_store/internal/wompi"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// createCheckout 为待支付订单生成收银台跳转地址。
func (h *handlers) createCheckout(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.deps.Payments.CreateCheckout(c.Request.Context(), middleware.CallerFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": out})
}

// verifyPayment 客户端轮询：?transactionId= 可选。
func (h *handlers) verifyPayment(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.deps.Payments.Verify(c.Request.Context(), middleware.CallerFrom(c), id, c.Query("transactionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	body := gin.H{
		"success":       true,
		"paymentStatus": out.Order.PaymentStatus,
		"order":         out.Order,
	}
	if out.TransactionStatus != "" {
		body["transactionStatus"] = out.TransactionStatus
	}
	c.JSON(http.StatusOK, body)
}

// wompiWebhook 网关推送。签名基于原始请求体，必须先读 body 再解析。
// 重复推送与已终态订单都回 200，避免网关重试风暴。
func (h *handlers) wompiWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.fail(c, apperr.BadRequest(apperr.CodeInvalidWebhookPayload, "cannot read request body"))
		return
	}
	if !wompi.VerifyWebhookSignature(body, c.GetHeader(wompi.SignatureHeader), h.deps.EventsSecret) {
		logger.Warn(c, "webhook signature mismatch", zap.String("ip", c.ClientIP()))
		h.fail(c, apperr.New(http.StatusForbidden, apperr.CodeInvalidSignature, "invalid webhook signature"))
		return
	}

	var ev wompi.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		h.fail(c, apperr.BadRequest(apperr.CodeInvalidWebhookPayload, "webhook body is not valid JSON"))
		return
	}
	out, err := h.deps.Payments.HandleWebhook(c.Request.Context(), ev)
	if err != nil {
		h.fail(c, err)
		return
	}
	logger.Info(c, "webhook processed",
		zap.String("event", ev.Event),
		zap.String("transaction_id", ev.Data.Transaction.ID),
		zap.Bool("applied", out.Applied))
	c.JSON(http.StatusOK, gin.H{"success": true, "applied": out.Applied})
}
