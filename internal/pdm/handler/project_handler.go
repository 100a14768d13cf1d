package handler

import (
	"github.com/bitfantasy/vega/internal/pdm/service"
	"github.com/gin-gonic/gin"
)

// ProjectHandler 项目与任务
type ProjectHandler struct {
	svc *service.ProjectService
}

func NewProjectHandler(svc *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{svc: svc}
}

// Create 创建项目
// POST /api/v1/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var input service.CreateProjectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	project, err := h.svc.CreateProject(c.Request.Context(), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, project)
}

// List 项目列表
// GET /api/v1/projects?status=active
func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.svc.ListProjects(c.Request.Context(), c.Query("status"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": projects})
}

// Get 项目详情（含任务）
// GET /api/v1/projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	project, err := h.svc.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, project)
}

// Update 更新项目
// PUT /api/v1/projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	var input service.UpdateProjectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	project, err := h.svc.UpdateProject(c.Request.Context(), c.Param("id"), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, project)
}

// Delete 删除项目
// DELETE /api/v1/projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteProject(c.Request.Context(), c.Param("id"), GetActor(c)); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// CreateTask 创建任务
// POST /api/v1/projects/:id/tasks
func (h *ProjectHandler) CreateTask(c *gin.Context) {
	var input service.CreateTaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	task, err := h.svc.CreateTask(c.Request.Context(), c.Param("id"), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, task)
}

// UpdateTask 更新任务
// PUT /api/v1/projects/:id/tasks/:taskId
func (h *ProjectHandler) UpdateTask(c *gin.Context) {
	var input service.UpdateTaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	task, err := h.svc.UpdateTask(c.Request.Context(), c.Param("id"), c.Param("taskId"), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, task)
}

// DeleteTask 删除任务
// DELETE /api/v1/projects/:id/tasks/:taskId
func (h *ProjectHandler) DeleteTask(c *gin.Context) {
	if err := h.svc.DeleteTask(c.Request.Context(), c.Param("id"), c.Param("taskId")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}
