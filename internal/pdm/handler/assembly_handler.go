package handler

import (
	"fmt"
	"time"

	"github.com/bitfantasy/vega/internal/pdm/service"
	"github.com/gin-gonic/gin"
)

// AssemblyHandler 装配体、装配体版本与物料清单
type AssemblyHandler struct {
	svc        *service.AssemblyService
	versionSvc *service.VersionService
	exportSvc  *service.ExportService
}

func NewAssemblyHandler(svc *service.AssemblyService, versionSvc *service.VersionService, exportSvc *service.ExportService) *AssemblyHandler {
	return &AssemblyHandler{svc: svc, versionSvc: versionSvc, exportSvc: exportSvc}
}

// Create 创建装配体（本体 + 首版本 + 组成边）
// POST /api/v1/assemblies
func (h *AssemblyHandler) Create(c *gin.Context) {
	var input service.CreateAssemblyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	asm, err := h.svc.Create(c.Request.Context(), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, asm)
}

// List 装配体列表
// GET /api/v1/assemblies
func (h *AssemblyHandler) List(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context(), itemFilterFromQuery(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// Get 装配体详情
// GET /api/v1/assemblies/:id
func (h *AssemblyHandler) Get(c *gin.Context) {
	asm, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, asm)
}

// Update 更新装配体
// PUT /api/v1/assemblies/:id
func (h *AssemblyHandler) Update(c *gin.Context) {
	var input service.UpdateAssemblyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	asm, err := h.svc.Update(c.Request.Context(), c.Param("id"), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, asm)
}

// Delete 删除装配体
// DELETE /api/v1/assemblies/:id
func (h *AssemblyHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), GetActor(c)); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// CreateVersion 追加装配体版本（版本行 + 组成边原子落库）
// POST /api/v1/assemblies/:id/versions
func (h *AssemblyHandler) CreateVersion(c *gin.Context) {
	var input service.CreateAssemblyVersionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	version, err := h.svc.CreateVersion(c.Request.Context(), c.Param("id"), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, version)
}

// ListVersions 版本列表（最新在前）
// GET /api/v1/assemblies/:id/versions
func (h *AssemblyHandler) ListVersions(c *gin.Context) {
	versions, err := h.versionSvc.ListAssemblyVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": versions})
}

// FreezeVersion 冻结装配体版本
// POST /api/v1/assemblies/:id/versions/:versionId/freeze
func (h *AssemblyHandler) FreezeVersion(c *gin.Context) {
	version, err := h.versionSvc.FreezeAssemblyVersion(c.Request.Context(), c.Param("id"), c.Param("versionId"), GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, version)
}

// GetBOM 物料清单
// GET /api/v1/assemblies/:id/versions/:versionId/bom
func (h *AssemblyHandler) GetBOM(c *gin.Context) {
	lines, err := h.svc.GetBOM(c.Request.Context(), c.Param("id"), c.Param("versionId"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": lines})
}

// ExportBOM 导出物料清单（format=csv 时导出 CSV，默认 xlsx）
// GET /api/v1/assemblies/:id/versions/:versionId/bom/export
func (h *AssemblyHandler) ExportBOM(c *gin.Context) {
	assemblyID, versionID := c.Param("id"), c.Param("versionId")

	if c.Query("format") == "csv" {
		filename := fmt.Sprintf("bom_%s.csv", time.Now().Format("20060102_150405"))
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Header("Content-Type", "text/csv; charset=utf-8")
		if err := h.exportSvc.WriteBOMCSV(c.Request.Context(), assemblyID, versionID, c.Writer); err != nil {
			Fail(c, err)
		}
		return
	}

	file, err := h.exportSvc.ExportBOMXLSX(c.Request.Context(), assemblyID, versionID)
	if err != nil {
		Fail(c, err)
		return
	}
	filename := fmt.Sprintf("bom_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := file.Write(c.Writer); err != nil {
		InternalError(c, "导出失败")
	}
}
