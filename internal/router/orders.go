package router

import (
	"net/http"

	"pc_store/internal/apperr"
	"pc_store/internal/middleware"
	"pc_store/internal/model"
	"pc_store/internal/order"

	"github.com/gin-gonic/gin"
)

// placeOrder 下单入口。
// 关键流程：
// 1. 解析购物车（金额字段按 decimal 解析，避免浮点误差）
// 2. 按固定顺序校验
// 3. 同一事务内条件扣减库存 + 写订单
func (h *handlers) placeOrder(c *gin.Context) {
	var req order.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.BadRequest(apperr.CodeInvalidRequest, "malformed request body"))
		return
	}
	o, err := h.deps.Orders.PlaceOrder(c.Request.Context(), middleware.CallerFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": o})
}

func (h *handlers) myOrders(c *gin.Context) {
	list, page, err := h.deps.Orders.ListByUser(c.Request.Context(), middleware.CallerFrom(c).UserID, pageQuery(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	listResponse(c, list, page)
}

func (h *handlers) getOrder(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.deps.Orders.Get(c.Request.Context(), middleware.CallerFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": o})
}

// listOrders 管理员订单列表，支持 ?status=&paymentStatus= 过滤。
func (h *handlers) listOrders(c *gin.Context) {
	f := order.Filter{Status: c.Query("status"), PaymentStatus: c.Query("paymentStatus")}
	list, page, err := h.deps.Orders.ListAll(c.Request.Context(), f, pageQuery(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	listResponse(c, list, page)
}

func (h *handlers) updateOrderStatus(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req order.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		h.fail(c, apperr.BadRequest(apperr.CodeInvalidRequest, "status is required"))
		return
	}
	o, err := h.deps.Orders.UpdateFulfillment(c.Request.Context(), id, model.OrderStatus(req.Status))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": o})
}

func (h *handlers) orderEvents(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	events, err := h.deps.Orders.ListEvents(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": events})
}
