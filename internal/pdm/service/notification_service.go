package service

import (
	"context"
	"errors"

	"github.com/bitfantasy/vega/internal/apperr"
	"github.com/bitfantasy/vega/internal/pdm/entity"
	"github.com/bitfantasy/vega/internal/pdm/repository"
)

// NotificationService 站内通知与操作日志查询
type NotificationService struct {
	notifyRepo *repository.NotificationRepository
	logRepo    *repository.ActivityLogRepository
}

func NewNotificationService(repos *repository.Repositories) *NotificationService {
	return &NotificationService{
		notifyRepo: repos.Notification,
		logRepo:    repos.ActivityLog,
	}
}

// ListNotifications 当前用户的通知列表（未读在前）
func (s *NotificationService) ListNotifications(ctx context.Context, userID string, page, pageSize int) ([]entity.Notification, int64, error) {
	items, total, err := s.notifyRepo.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, apperr.Internal("查询通知失败", err)
	}
	return items, total, nil
}

// MarkNotificationRead 标记通知已读（只能操作自己的通知）
func (s *NotificationService) MarkNotificationRead(ctx context.Context, id, userID string) error {
	err := s.notifyRepo.MarkRead(ctx, id, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("通知不存在")
	}
	if err != nil {
		return apperr.Internal("标记通知失败", err)
	}
	return nil
}

// ListActivity 某实体的操作日志
func (s *NotificationService) ListActivity(ctx context.Context, entityType, entityID string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	items, total, err := s.logRepo.FindByEntity(ctx, entityType, entityID, page, pageSize)
	if err != nil {
		return nil, 0, apperr.Internal("查询操作日志失败", err)
	}
	return items, total, nil
}
