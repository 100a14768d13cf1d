package handler

import (
	"github.com/bitfantasy/vega/internal/pdm/service"
	"github.com/gin-gonic/gin"
)

// SearchHandler 全局搜索
type SearchHandler struct {
	svc *service.SearchService
}

func NewSearchHandler(svc *service.SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

// Global 跨实体关键字搜索
// GET /api/v1/search?q=xxx
func (h *SearchHandler) Global(c *gin.Context) {
	result, err := h.svc.Global(c.Request.Context(), c.Query("q"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, result)
}
