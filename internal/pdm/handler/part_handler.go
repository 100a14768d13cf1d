package handler

import (
	"fmt"
	"time"

	"github.com/bitfantasy/vega/internal/pdm/repository"
	"github.com/bitfantasy/vega/internal/pdm/service"
	"github.com/gin-gonic/gin"
)

// PartHandler 零件及其版本
type PartHandler struct {
	svc        *service.PartService
	versionSvc *service.VersionService
	exportSvc  *service.ExportService
}

func NewPartHandler(svc *service.PartService, versionSvc *service.VersionService, exportSvc *service.ExportService) *PartHandler {
	return &PartHandler{svc: svc, versionSvc: versionSvc, exportSvc: exportSvc}
}

// itemFilterFromQuery 列表过滤参数（全部可选，AND 组合）
func itemFilterFromQuery(c *gin.Context) repository.ItemFilter {
	return repository.ItemFilter{
		Query:       c.Query("q"),
		Owner:       c.Query("owner"),
		Criticality: c.Query("criticality"),
		Lifecycle:   c.Query("lifecycle_state"),
		Tag:         c.Query("tag"),
	}
}

// Create 创建零件
// POST /api/v1/parts
func (h *PartHandler) Create(c *gin.Context) {
	var input service.CreatePartInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	part, err := h.svc.Create(c.Request.Context(), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, part)
}

// List 零件列表
// GET /api/v1/parts
func (h *PartHandler) List(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context(), itemFilterFromQuery(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// Get 零件详情
// GET /api/v1/parts/:id
func (h *PartHandler) Get(c *gin.Context) {
	part, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, part)
}

// Update 更新零件
// PUT /api/v1/parts/:id
func (h *PartHandler) Update(c *gin.Context) {
	var input service.UpdatePartInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	part, err := h.svc.Update(c.Request.Context(), c.Param("id"), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, part)
}

// Delete 删除零件
// DELETE /api/v1/parts/:id
func (h *PartHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), GetActor(c)); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// BulkDelete 批量删除零件（任一被引用则整批失败）
// POST /api/v1/parts/bulk-delete
func (h *PartHandler) BulkDelete(c *gin.Context) {
	var input struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	if err := h.svc.BulkDelete(c.Request.Context(), input.IDs, GetActor(c)); err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"deleted": len(input.IDs)})
}

// Impact 影响分析
// GET /api/v1/parts/:id/impact
func (h *PartHandler) Impact(c *gin.Context) {
	lines, err := h.svc.Impact(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": lines})
}

// ==================== 版本 ====================

// CreateVersion 追加工作版本
// POST /api/v1/parts/:id/versions
func (h *PartHandler) CreateVersion(c *gin.Context) {
	var input service.CreateVersionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	version, err := h.versionSvc.CreatePartVersion(c.Request.Context(), c.Param("id"), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, version)
}

// ListVersions 版本列表（最新在前）
// GET /api/v1/parts/:id/versions
func (h *PartHandler) ListVersions(c *gin.Context) {
	versions, err := h.versionSvc.ListPartVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": versions})
}

// FreezeVersion 冻结版本
// POST /api/v1/parts/:id/versions/:versionId/freeze
func (h *PartHandler) FreezeVersion(c *gin.Context) {
	version, err := h.versionSvc.FreezePartVersion(c.Request.Context(), c.Param("id"), c.Param("versionId"), GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, version)
}

// BulkFreezeVersions 批量冻结
// POST /api/v1/parts/:id/versions/bulk-freeze
func (h *PartHandler) BulkFreezeVersions(c *gin.Context) {
	var input struct {
		VersionIDs []string `json:"version_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	versions, err := h.versionSvc.BulkFreezePartVersions(c.Request.Context(), c.Param("id"), input.VersionIDs, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": versions})
}

// RollbackVersion 回滚到历史冻结版本
// POST /api/v1/parts/:id/versions/:versionId/rollback
func (h *PartHandler) RollbackVersion(c *gin.Context) {
	version, err := h.versionSvc.RollbackPartVersion(c.Request.Context(), c.Param("id"), c.Param("versionId"), GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, version)
}

// CompareVersions 版本对比
// GET /api/v1/parts/:id/versions/compare?a=xxx&b=yyy
func (h *PartHandler) CompareVersions(c *gin.Context) {
	a, b := c.Query("a"), c.Query("b")
	if a == "" || b == "" {
		BadRequest(c, "必须提供 a 和 b 两个版本ID")
		return
	}
	pair, err := h.versionSvc.ComparePartVersions(c.Request.Context(), c.Param("id"), a, b)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, pair)
}

// Export 导出零件台账（format=csv 时导出 CSV，默认 xlsx）
// GET /api/v1/parts/export
func (h *PartHandler) Export(c *gin.Context) {
	if c.Query("format") == "csv" {
		filename := fmt.Sprintf("parts_%s.csv", time.Now().Format("20060102_150405"))
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Header("Content-Type", "text/csv; charset=utf-8")
		if err := h.exportSvc.WritePartsCSV(c.Request.Context(), itemFilterFromQuery(c), c.Writer); err != nil {
			Fail(c, err)
		}
		return
	}

	file, err := h.exportSvc.ExportPartsXLSX(c.Request.Context(), itemFilterFromQuery(c))
	if err != nil {
		Fail(c, err)
		return
	}
	filename := fmt.Sprintf("parts_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := file.Write(c.Writer); err != nil {
		InternalError(c, "导出失败")
	}
}
