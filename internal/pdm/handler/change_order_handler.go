package handler

import (
	"github.com/bitfantasy/vega/internal/pdm/repository"
	"github.com/bitfantasy/vega/internal/pdm/service"
	"github.com/gin-gonic/gin"
)

// ChangeOrderHandler 工程变更单（ECO）
type ChangeOrderHandler struct {
	svc *service.ChangeOrderService
}

func NewChangeOrderHandler(svc *service.ChangeOrderService) *ChangeOrderHandler {
	return &ChangeOrderHandler{svc: svc}
}

// Create 创建变更单（草稿）
// POST /api/v1/change-orders
func (h *ChangeOrderHandler) Create(c *gin.Context) {
	var input service.CreateChangeOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	eco, err := h.svc.Create(c.Request.Context(), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, eco)
}

// List 变更单列表
// GET /api/v1/change-orders?q=&status=&priority=&requester_id=
func (h *ChangeOrderHandler) List(c *gin.Context) {
	ecos, err := h.svc.List(c.Request.Context(), repository.ChangeOrderFilter{
		Query:       c.Query("q"),
		Status:      c.Query("status"),
		Priority:    c.Query("priority"),
		RequesterID: c.Query("requester_id"),
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": ecos})
}

// Get 变更单详情
// GET /api/v1/change-orders/:id
func (h *ChangeOrderHandler) Get(c *gin.Context) {
	eco, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, eco)
}

// Update 更新变更单（仅草稿）
// PUT /api/v1/change-orders/:id
func (h *ChangeOrderHandler) Update(c *gin.Context) {
	var input service.UpdateChangeOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	eco, err := h.svc.Update(c.Request.Context(), c.Param("id"), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, eco)
}

// Delete 删除变更单（仅管理员）
// DELETE /api/v1/change-orders/:id
func (h *ChangeOrderHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), GetActor(c)); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// Submit 提交审批
// POST /api/v1/change-orders/:id/submit
func (h *ChangeOrderHandler) Submit(c *gin.Context) {
	eco, err := h.svc.Submit(c.Request.Context(), c.Param("id"), GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, eco)
}

// StartReview 领取评审
// POST /api/v1/change-orders/:id/review
func (h *ChangeOrderHandler) StartReview(c *gin.Context) {
	eco, err := h.svc.StartReview(c.Request.Context(), c.Param("id"), GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, eco)
}

// Decide 决策（通过/拒绝）
// POST /api/v1/change-orders/:id/decide
func (h *ChangeOrderHandler) Decide(c *gin.Context) {
	var input service.DecideChangeOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	eco, err := h.svc.Decide(c.Request.Context(), c.Param("id"), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, eco)
}

// Implement 实施并关闭
// POST /api/v1/change-orders/:id/implement
func (h *ChangeOrderHandler) Implement(c *gin.Context) {
	var input service.ImplementChangeOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	eco, err := h.svc.Implement(c.Request.Context(), c.Param("id"), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, eco)
}
