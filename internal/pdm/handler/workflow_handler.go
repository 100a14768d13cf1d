package handler

import (
	"github.com/bitfantasy/vega/internal/pdm/service"
	"github.com/gin-gonic/gin"
)

// WorkflowHandler 编辑请求与发布请求
type WorkflowHandler struct {
	svc *service.WorkflowService
}

func NewWorkflowHandler(svc *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{svc: svc}
}

// CreateEditRequest 申请零件编辑权
// POST /api/v1/edit-requests
func (h *WorkflowHandler) CreateEditRequest(c *gin.Context) {
	var input service.CreateEditRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	req, err := h.svc.CreateEditRequest(c.Request.Context(), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, req)
}

// DecideEditRequest 决策编辑请求
// POST /api/v1/edit-requests/:id/decide
func (h *WorkflowHandler) DecideEditRequest(c *gin.Context) {
	var input service.DecideInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	req, err := h.svc.DecideEditRequest(c.Request.Context(), c.Param("id"), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, req)
}

// ListEditRequests 编辑请求列表
// GET /api/v1/edit-requests?status=pending&requester_id=xxx
func (h *WorkflowHandler) ListEditRequests(c *gin.Context) {
	reqs, err := h.svc.ListEditRequests(c.Request.Context(), c.Query("status"), c.Query("requester_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": reqs})
}

// CreateReleaseRequest 申请发布（冻结）版本
// POST /api/v1/release-requests
func (h *WorkflowHandler) CreateReleaseRequest(c *gin.Context) {
	var input service.CreateReleaseRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	req, err := h.svc.CreateReleaseRequest(c.Request.Context(), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, req)
}

// DecideReleaseRequest 决策发布请求（通过即冻结目标版本）
// POST /api/v1/release-requests/:id/decide
func (h *WorkflowHandler) DecideReleaseRequest(c *gin.Context) {
	var input service.DecideInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	req, err := h.svc.DecideReleaseRequest(c.Request.Context(), c.Param("id"), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, req)
}

// ListReleaseRequests 发布请求列表
// GET /api/v1/release-requests?status=pending&requester_id=xxx
func (h *WorkflowHandler) ListReleaseRequests(c *gin.Context) {
	reqs, err := h.svc.ListReleaseRequests(c.Request.Context(), c.Query("status"), c.Query("requester_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": reqs})
}
