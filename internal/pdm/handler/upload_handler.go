package handler

import (
	"github.com/bitfantasy/vega/internal/pdm/service"
	"github.com/gin-gonic/gin"
)

// UploadHandler 设计文件上传与下载
type UploadHandler struct {
	svc *service.UploadService
}

func NewUploadHandler(svc *service.UploadService) *UploadHandler {
	return &UploadHandler{svc: svc}
}

// Upload 上传设计文件
// POST /api/v1/uploads
func (h *UploadHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "缺少 file 字段")
		return
	}
	record, err := h.svc.Save(c.Request.Context(), fh, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, record)
}

// Download 下载已上传文件
// GET /api/v1/uploads/:id
func (h *UploadHandler) Download(c *gin.Context) {
	record, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	c.FileAttachment(record.Path, record.Name)
}
