package router

import (
	"net/http"

	"pc_store/internal/apperr"
	"pc_store/internal/catalog"

	"github.com/gin-gonic/gin"
)

// listProducts 商品列表（分页）。
func (h *handlers) listProducts(c *gin.Context) {
	list, page, err := h.deps.Catalog.List(c.Request.Context(), pageQuery(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	listResponse(c, list, page)
}

// productStock 单个商品的实时库存。
func (h *handlers) productStock(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.deps.Catalog.Stock(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": view})
}

// createProduct 管理员录入商品。
func (h *handlers) createProduct(c *gin.Context) {
	var req catalog.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.BadRequest(apperr.CodeInvalidRequest, "malformed request body"))
		return
	}
	p, err := h.deps.Catalog.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": p})
}
