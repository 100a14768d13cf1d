package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/vega/internal/apperr"
	"github.com/bitfantasy/vega/internal/pdm/entity"
	"github.com/bitfantasy/vega/internal/pdm/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkflowService 审批流服务：编辑权限请求 + 版本发布请求。
// 两类请求都是 pending → approved/rejected 一次性状态机，终态后拒绝再决策。
type WorkflowService struct {
	db          *gorm.DB
	partRepo    *repository.PartRepository
	asmRepo     *repository.AssemblyRepository
	versionRepo *repository.VersionRepository
	editRepo    *repository.EditRequestRepository
	releaseRepo *repository.ReleaseRequestRepository
	notifyRepo  *repository.NotificationRepository
	logRepo     *repository.ActivityLogRepository
}

func NewWorkflowService(db *gorm.DB, repos *repository.Repositories) *WorkflowService {
	return &WorkflowService{
		db:          db,
		partRepo:    repos.Part,
		asmRepo:     repos.Assembly,
		versionRepo: repos.Version,
		editRepo:    repos.EditRequest,
		releaseRepo: repos.ReleaseRequest,
		notifyRepo:  repos.Notification,
		logRepo:     repos.ActivityLog,
	}
}

// CreateEditRequestInput 创建编辑请求入参
type CreateEditRequestInput struct {
	PartID string `json:"part_id" binding:"required"`
	Reason string `json:"reason"`
}

// DecideInput 请求决策入参
type DecideInput struct {
	Approve bool `json:"approve"`
}

// CreateReleaseRequestInput 创建发布请求入参
type CreateReleaseRequestInput struct {
	ItemType      string `json:"item_type" binding:"required"`
	ItemID        string `json:"item_id" binding:"required"`
	ItemVersionID string `json:"item_version_id" binding:"required"`
	Reason        string `json:"reason"`
}

// ==================== 编辑请求 ====================

// CreateEditRequest 非所有者设计师申请零件编辑权。
// 所有者本就可编辑，无需申请。
func (s *WorkflowService) CreateEditRequest(ctx context.Context, input *CreateEditRequestInput, actor Actor) (*entity.EditRequest, error) {
	if actor.Role != entity.RoleDesigner {
		return nil, apperr.Forbidden("只有设计师需要申请编辑权限")
	}

	part, err := s.partRepo.FindByID(ctx, input.PartID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("零件不存在")
	}
	if err != nil {
		return nil, apperr.Internal("查询零件失败", err)
	}
	if part.OwnerID == actor.UserID {
		return nil, apperr.Conflict("您是零件所有者，无需申请编辑权限")
	}

	req := &entity.EditRequest{
		ID:          repository.NewID(),
		PartID:      part.ID,
		RequesterID: actor.UserID,
		Reason:      input.Reason,
		Status:      entity.RequestStatusPending,
		CreatedAt:   time.Now(),
	}
	if err := s.editRepo.Create(ctx, req); err != nil {
		return nil, apperr.Internal("创建编辑请求失败", err)
	}

	s.logRepo.LogActivity(ctx, "edit_request", req.ID, part.Code, "create", "", entity.RequestStatusPending,
		fmt.Sprintf("申请零件 %s 的编辑权限：%s", part.Code, input.Reason), actor.UserID)
	s.notifyRepo.Notify(ctx, part.OwnerID, "新的编辑权限申请",
		fmt.Sprintf("有设计师申请零件 %s（%s）的编辑权限", part.Name, part.Code), "edit_request", req.ID)
	return req, nil
}

// DecideEditRequest 决策编辑请求。通过时写入（或覆盖）授权行。
func (s *WorkflowService) DecideEditRequest(ctx context.Context, requestID string, input *DecideInput, actor Actor) (*entity.EditRequest, error) {
	if !entity.IsApproverOrAdmin(actor.Role) {
		return nil, apperr.Forbidden("只有审批人或管理员可以决策请求")
	}

	var req *entity.EditRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r entity.EditRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&r, "id = ?", requestID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("编辑请求不存在")
		}
		if err != nil {
			return err
		}
		if r.Status != entity.RequestStatusPending {
			return apperr.Conflict("请求已决策为 %s，不能重复决策", r.Status)
		}

		now := time.Now()
		if input.Approve {
			r.Status = entity.RequestStatusApproved
		} else {
			r.Status = entity.RequestStatusRejected
		}
		r.DecidedBy = actor.UserID
		r.DecidedAt = &now
		if err := tx.Save(&r).Error; err != nil {
			return err
		}

		if input.Approve {
			grant := &entity.PartPermission{
				ID:        repository.NewID(),
				PartID:    r.PartID,
				UserID:    r.RequesterID,
				CanEdit:   true,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "part_id"}, {Name: "user_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"can_edit": true, "updated_at": now}),
			}).Create(grant).Error; err != nil {
				return err
			}
		}
		req = &r
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Internal("决策编辑请求失败", err)
	}

	s.logRepo.LogActivity(ctx, "edit_request", req.ID, "", "decide",
		entity.RequestStatusPending, req.Status, "决策编辑请求", actor.UserID)
	title := "编辑权限申请被拒绝"
	if req.Status == entity.RequestStatusApproved {
		title = "编辑权限申请已通过"
	}
	s.notifyRepo.Notify(ctx, req.RequesterID, title,
		fmt.Sprintf("您的编辑权限申请已被决策为 %s", req.Status), "edit_request", req.ID)
	return req, nil
}

// ListEditRequests 编辑请求列表
func (s *WorkflowService) ListEditRequests(ctx context.Context, status, requesterID string) ([]entity.EditRequest, error) {
	reqs, err := s.editRepo.List(ctx, status, requesterID)
	if err != nil {
		return nil, apperr.Internal("查询编辑请求列表失败", err)
	}
	return reqs, nil
}

// ==================== 发布请求 ====================

// CreateReleaseRequest 申请冻结某个版本。任何已认证用户可发起，
// 只要求被引用的物料与版本真实存在。
func (s *WorkflowService) CreateReleaseRequest(ctx context.Context, input *CreateReleaseRequestInput, actor Actor) (*entity.ReleaseRequest, error) {
	if input.ItemType != entity.ItemTypePart && input.ItemType != entity.ItemTypeAssembly {
		return nil, apperr.Invalid("item_type 必须为 part 或 assembly")
	}

	switch input.ItemType {
	case entity.ItemTypePart:
		if _, err := s.versionRepo.FindPartVersion(ctx, input.ItemID, input.ItemVersionID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.NotFound("版本不存在或不属于该零件")
			}
			return nil, apperr.Internal("查询零件版本失败", err)
		}
	case entity.ItemTypeAssembly:
		if _, err := s.versionRepo.FindAssemblyVersion(ctx, input.ItemID, input.ItemVersionID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.NotFound("版本不存在或不属于该装配体")
			}
			return nil, apperr.Internal("查询装配体版本失败", err)
		}
	}

	req := &entity.ReleaseRequest{
		ID:            repository.NewID(),
		ItemType:      input.ItemType,
		ItemVersionID: input.ItemVersionID,
		RequesterID:   actor.UserID,
		Reason:        input.Reason,
		Status:        entity.RequestStatusPending,
		CreatedAt:     time.Now(),
	}
	if err := s.releaseRepo.Create(ctx, req); err != nil {
		return nil, apperr.Internal("创建发布请求失败", err)
	}

	s.logRepo.LogActivity(ctx, "release_request", req.ID, "", "create", "", entity.RequestStatusPending,
		fmt.Sprintf("申请发布 %s 版本 %s：%s", input.ItemType, input.ItemVersionID, input.Reason), actor.UserID)
	return req, nil
}

// DecideReleaseRequest 决策发布请求。通过即冻结目标版本，
// 与直接冻结共用同一冻结原语；目标已冻结时决策失败（Conflict）。
func (s *WorkflowService) DecideReleaseRequest(ctx context.Context, requestID string, input *DecideInput, actor Actor) (*entity.ReleaseRequest, error) {
	if !entity.IsApproverOrAdmin(actor.Role) {
		return nil, apperr.Forbidden("只有审批人或管理员可以决策请求")
	}

	var req *entity.ReleaseRequest
	var ownerID, itemCode string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r entity.ReleaseRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&r, "id = ?", requestID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("发布请求不存在")
		}
		if err != nil {
			return err
		}
		if r.Status != entity.RequestStatusPending {
			return apperr.Conflict("请求已决策为 %s，不能重复决策", r.Status)
		}

		now := time.Now()
		if input.Approve {
			switch r.ItemType {
			case entity.ItemTypePart:
				var v entity.PartVersion
				if err := tx.First(&v, "id = ?", r.ItemVersionID).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return apperr.NotFound("目标零件版本已不存在")
					}
					return err
				}
				if _, err := freezePartVersionTx(tx, v.PartID, v.ID, actor.UserID); err != nil {
					return err
				}
				var part entity.Part
				if err := tx.First(&part, "id = ?", v.PartID).Error; err != nil {
					return err
				}
				ownerID, itemCode = part.OwnerID, part.Code
			case entity.ItemTypeAssembly:
				var v entity.AssemblyVersion
				if err := tx.First(&v, "id = ?", r.ItemVersionID).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return apperr.NotFound("目标装配体版本已不存在")
					}
					return err
				}
				if _, err := freezeAssemblyVersionTx(tx, v.AssemblyID, v.ID, actor.UserID); err != nil {
					return err
				}
				var asm entity.Assembly
				if err := tx.First(&asm, "id = ?", v.AssemblyID).Error; err != nil {
					return err
				}
				ownerID, itemCode = asm.OwnerID, asm.Code
			}
			r.Status = entity.RequestStatusApproved
		} else {
			r.Status = entity.RequestStatusRejected
		}
		r.DecidedBy = actor.UserID
		r.DecidedAt = &now
		if err := tx.Save(&r).Error; err != nil {
			return err
		}
		req = &r
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Internal("决策发布请求失败", err)
	}

	s.logRepo.LogActivity(ctx, "release_request", req.ID, "", "decide",
		entity.RequestStatusPending, req.Status, "决策发布请求", actor.UserID)
	title := "发布申请被拒绝"
	if req.Status == entity.RequestStatusApproved {
		title = "发布申请已通过，版本已冻结"
	}
	s.notifyRepo.Notify(ctx, req.RequesterID, title,
		fmt.Sprintf("您的发布申请已被决策为 %s", req.Status), "release_request", req.ID)
	if req.Status == entity.RequestStatusApproved && ownerID != "" && ownerID != req.RequesterID {
		s.notifyRepo.Notify(ctx, ownerID, "您名下的对象有版本已冻结",
			fmt.Sprintf("%s 的一个版本经发布申请批准后已冻结", itemCode), "release_request", req.ID)
	}
	return req, nil
}

// ListReleaseRequests 发布请求列表
func (s *WorkflowService) ListReleaseRequests(ctx context.Context, status, requesterID string) ([]entity.ReleaseRequest, error) {
	reqs, err := s.releaseRepo.List(ctx, status, requesterID)
	if err != nil {
		return nil, apperr.Internal("查询发布请求列表失败", err)
	}
	return reqs, nil
}
