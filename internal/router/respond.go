package router

import (
	"net/http"
	"strconv"

	"pc_store/internal/apperr"
	"pc_store/internal/logger"
	"pc_store/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handlers 持有各 handler 共享的依赖。
type handlers struct {
	deps Deps
}

// fail 统一错误出口：5xx 记录原因，生产环境不回显。
func (h *handlers) fail(c *gin.Context, err error) {
	status, body := apperr.Response(err, h.deps.Production)
	if status >= http.StatusInternalServerError {
		logger.Error(c, "request failed", err)
	}
	c.AbortWithStatusJSON(status, body)
}

// pathID 解析路径里的 UUID，非法时回 400。
func (h *handlers) pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.fail(c, apperr.BadRequest(apperr.CodeInvalidRequest, "invalid id").With(name, c.Param(name)))
		return uuid.Nil, false
	}
	return id, true
}

func pageQuery(c *gin.Context) model.PageQuery {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return model.PageQuery{Page: page, Limit: limit}.Normalize()
}

func listResponse(c *gin.Context, data any, p model.Pagination) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data, "pagination": p})
}
