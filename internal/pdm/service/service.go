package service

import (
	"github.com/bitfantasy/vega/internal/config"
	"github.com/bitfantasy/vega/internal/pdm/repository"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Auth         *AuthService
	Part         *PartService
	Assembly     *AssemblyService
	Version      *VersionService
	Workflow     *WorkflowService
	ChangeOrder  *ChangeOrderService
	Project      *ProjectService
	Notification *NotificationService
	Search       *SearchService
	Export       *ExportService
	Upload       *UploadService
}

// NewServices 装配全部服务
func NewServices(db *gorm.DB, rdb *redis.Client, repos *repository.Repositories, cfg *config.Config) *Services {
	authz := NewAuthorizer(repos.Permission)

	partSvc := NewPartService(db, repos, authz)
	asmSvc := NewAssemblyService(db, repos, authz)

	return &Services{
		Auth:         NewAuthService(repos.User, rdb, cfg.JWT),
		Part:         partSvc,
		Assembly:     asmSvc,
		Version:      NewVersionService(db, repos, authz),
		Workflow:     NewWorkflowService(db, repos),
		ChangeOrder:  NewChangeOrderService(db, repos),
		Project:      NewProjectService(repos),
		Notification: NewNotificationService(repos),
		Search:       NewSearchService(repos),
		Export:       NewExportService(partSvc, asmSvc),
		Upload:       NewUploadService(repos.File, cfg.Upload),
	}
}
