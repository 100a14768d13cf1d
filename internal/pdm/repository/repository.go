package repository

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// NewID 生成32位实体ID
func NewID() string {
	return uuid.New().String()[:32]
}

// Repositories 仓库集合
type Repositories struct {
	User           *UserRepository
	Part           *PartRepository
	Assembly       *AssemblyRepository
	Version        *VersionRepository
	Composition    *CompositionRepository
	Permission     *PermissionRepository
	EditRequest    *EditRequestRepository
	ReleaseRequest *ReleaseRequestRepository
	ChangeOrder    *ChangeOrderRepository
	Project        *ProjectRepository
	ActivityLog    *ActivityLogRepository
	Notification   *NotificationRepository
	File           *FileRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:           NewUserRepository(db),
		Part:           NewPartRepository(db),
		Assembly:       NewAssemblyRepository(db),
		Version:        NewVersionRepository(db),
		Composition:    NewCompositionRepository(db),
		Permission:     NewPermissionRepository(db),
		EditRequest:    NewEditRequestRepository(db),
		ReleaseRequest: NewReleaseRequestRepository(db),
		ChangeOrder:    NewChangeOrderRepository(db),
		Project:        NewProjectRepository(db),
		ActivityLog:    NewActivityLogRepository(db),
		Notification:   NewNotificationRepository(db),
		File:           NewFileRepository(db),
	}
}
