package handler

import (
	"github.com/bitfantasy/vega/internal/pdm/service"
	"github.com/gin-gonic/gin"
)

// NotificationHandler 站内通知与操作日志
type NotificationHandler struct {
	svc *service.NotificationService
}

func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// List 当前用户的通知（未读在前）
// GET /api/v1/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.ListNotifications(c.Request.Context(), GetActor(c).UserID, page, pageSize)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": items, "total": total})
}

// MarkRead 标记通知已读
// POST /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.svc.MarkNotificationRead(c.Request.Context(), c.Param("id"), GetActor(c).UserID); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// ListActivity 某实体的操作日志
// GET /api/v1/activity?entity_type=part&entity_id=xxx
func (h *NotificationHandler) ListActivity(c *gin.Context) {
	entityType, entityID := c.Query("entity_type"), c.Query("entity_id")
	if entityType == "" || entityID == "" {
		BadRequest(c, "entity_type 和 entity_id 不能为空")
		return
	}
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.ListActivity(c.Request.Context(), entityType, entityID, page, pageSize)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": items, "total": total})
}
