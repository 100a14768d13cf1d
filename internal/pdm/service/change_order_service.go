package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/vega/internal/apperr"
	"github.com/bitfantasy/vega/internal/pdm/entity"
	"github.com/bitfantasy/vega/internal/pdm/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChangeOrderService 工程变更单（ECO）服务。
// 状态机：draft → submitted → in_review → approved/rejected；approved → implemented。
// 提交后通知审批人和管理员，决策与实施通知请求人。
type ChangeOrderService struct {
	db         *gorm.DB
	ecoRepo    *repository.ChangeOrderRepository
	partRepo   *repository.PartRepository
	asmRepo    *repository.AssemblyRepository
	userRepo   *repository.UserRepository
	notifyRepo *repository.NotificationRepository
	logRepo    *repository.ActivityLogRepository
}

func NewChangeOrderService(db *gorm.DB, repos *repository.Repositories) *ChangeOrderService {
	return &ChangeOrderService{
		db:         db,
		ecoRepo:    repos.ChangeOrder,
		partRepo:   repos.Part,
		asmRepo:    repos.Assembly,
		userRepo:   repos.User,
		notifyRepo: repos.Notification,
		logRepo:    repos.ActivityLog,
	}
}

// AffectedItemInput 受影响物料入参
type AffectedItemInput struct {
	ItemType string `json:"item_type" binding:"required"`
	ItemID   string `json:"item_id" binding:"required"`
	Note     string `json:"note"`
}

// CreateChangeOrderInput 创建变更单入参
type CreateChangeOrderInput struct {
	Title         string              `json:"title" binding:"required"`
	Description   string              `json:"description"`
	Reason        string              `json:"reason"`
	Priority      string              `json:"priority"`
	AffectedItems []AffectedItemInput `json:"affected_items"`
}

// UpdateChangeOrderInput 更新变更单入参（仅草稿态，patch 语义）
type UpdateChangeOrderInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Reason      *string `json:"reason"`
	Priority    *string `json:"priority"`
}

// DecideChangeOrderInput 变更单决策入参
type DecideChangeOrderInput struct {
	Approve bool   `json:"approve"`
	Comment string `json:"comment"`
}

// ImplementChangeOrderInput 变更单实施入参
type ImplementChangeOrderInput struct {
	Notes string `json:"notes"`
}

// resolveAffectedItemsTx 校验受影响物料引用真实存在
func resolveAffectedItemsTx(tx *gorm.DB, ecoID string, inputs []AffectedItemInput) ([]entity.ChangeOrderItem, error) {
	now := time.Now()
	items := make([]entity.ChangeOrderItem, 0, len(inputs))
	for _, in := range inputs {
		switch in.ItemType {
		case entity.ItemTypePart:
			var count int64
			if err := tx.Model(&entity.Part{}).Where("id = ?", in.ItemID).Count(&count).Error; err != nil {
				return nil, err
			}
			if count == 0 {
				return nil, apperr.Invalid("受影响零件不存在：%s", in.ItemID)
			}
		case entity.ItemTypeAssembly:
			var count int64
			if err := tx.Model(&entity.Assembly{}).Where("id = ?", in.ItemID).Count(&count).Error; err != nil {
				return nil, err
			}
			if count == 0 {
				return nil, apperr.Invalid("受影响装配体不存在：%s", in.ItemID)
			}
		default:
			return nil, apperr.Invalid("受影响物料的 item_type 必须为 part 或 assembly")
		}
		items = append(items, entity.ChangeOrderItem{
			ID:            repository.NewID(),
			ChangeOrderID: ecoID,
			ItemType:      in.ItemType,
			ItemID:        in.ItemID,
			Note:          in.Note,
			CreatedAt:     now,
		})
	}
	return items, nil
}

// Create 创建变更单（草稿态，编号自动生成）
func (s *ChangeOrderService) Create(ctx context.Context, input *CreateChangeOrderInput, actor Actor) (*entity.ChangeOrder, error) {
	if !CanCreateItem(actor) {
		return nil, apperr.Forbidden("只有设计师或管理员可以发起变更单")
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperr.Invalid("变更单标题不能为空")
	}
	if len(input.Title) > 200 {
		return nil, apperr.Invalid("变更单标题长度不能超过200")
	}
	priority := input.Priority
	if priority == "" {
		priority = entity.ChangeOrderPriorityMedium
	}
	if !entity.IsValidChangeOrderPriority(priority) {
		return nil, apperr.Invalid("priority 必须为 low/medium/high/critical 之一")
	}

	now := time.Now()
	eco := &entity.ChangeOrder{
		ID:          repository.NewID(),
		Number:      fmt.Sprintf("ECO-%d", now.UnixNano()),
		Title:       input.Title,
		Description: input.Description,
		Reason:      input.Reason,
		Priority:    priority,
		Status:      entity.ChangeOrderStatusDraft,
		RequesterID: actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(eco).Error; err != nil {
			return err
		}
		items, err := resolveAffectedItemsTx(tx, eco.ID, input.AffectedItems)
		if err != nil {
			return err
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		eco.AffectedItems = items
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Internal("创建变更单失败", err)
	}

	s.logRepo.LogActivity(ctx, "change_order", eco.ID, eco.Number, "create", "", eco.Status,
		fmt.Sprintf("创建变更单 %s（%s）", eco.Title, eco.Number), actor.UserID)
	return eco, nil
}

// Get 变更单详情
func (s *ChangeOrderService) Get(ctx context.Context, id string) (*entity.ChangeOrder, error) {
	eco, err := s.ecoRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("变更单不存在")
	}
	if err != nil {
		return nil, apperr.Internal("查询变更单失败", err)
	}
	return eco, nil
}

// Update 更新变更单，仅草稿态可编辑
func (s *ChangeOrderService) Update(ctx context.Context, id string, input *UpdateChangeOrderInput, actor Actor) (*entity.ChangeOrder, error) {
	eco, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if eco.RequesterID != actor.UserID && actor.Role != entity.RoleAdmin {
		return nil, apperr.Forbidden("只有发起人或管理员可以编辑变更单")
	}
	if eco.Status != entity.ChangeOrderStatusDraft {
		return nil, apperr.Conflict("变更单当前状态为 %s，只有草稿可以编辑", eco.Status)
	}

	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" || len(*input.Title) > 200 {
			return nil, apperr.Invalid("变更单标题不能为空且长度不能超过200")
		}
		eco.Title = *input.Title
	}
	if input.Description != nil {
		eco.Description = *input.Description
	}
	if input.Reason != nil {
		eco.Reason = *input.Reason
	}
	if input.Priority != nil {
		if !entity.IsValidChangeOrderPriority(*input.Priority) {
			return nil, apperr.Invalid("priority 必须为 low/medium/high/critical 之一")
		}
		eco.Priority = *input.Priority
	}
	eco.UpdatedAt = time.Now()

	if err := s.ecoRepo.Update(ctx, eco); err != nil {
		return nil, apperr.Internal("更新变更单失败", err)
	}
	s.logRepo.LogActivity(ctx, "change_order", eco.ID, eco.Number, "update", eco.Status, eco.Status,
		"更新变更单", actor.UserID)
	return eco, nil
}

// transitionTx 行锁加载变更单并校验期望的前置状态
func transitionTx(tx *gorm.DB, id string, from ...string) (*entity.ChangeOrder, error) {
	var eco entity.ChangeOrder
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&eco, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("变更单不存在")
	}
	if err != nil {
		return nil, err
	}
	for _, f := range from {
		if eco.Status == f {
			return &eco, nil
		}
	}
	return nil, apperr.Conflict("变更单当前状态为 %s，不允许该操作", eco.Status)
}

// Submit 提交变更单进入审批（draft → submitted），通知审批人和管理员
func (s *ChangeOrderService) Submit(ctx context.Context, id string, actor Actor) (*entity.ChangeOrder, error) {
	var eco *entity.ChangeOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := transitionTx(tx, id, entity.ChangeOrderStatusDraft)
		if err != nil {
			return err
		}
		if e.RequesterID != actor.UserID && actor.Role != entity.RoleAdmin {
			return apperr.Forbidden("只有发起人或管理员可以提交变更单")
		}
		e.Status = entity.ChangeOrderStatusSubmitted
		e.UpdatedAt = time.Now()
		if err := tx.Save(e).Error; err != nil {
			return err
		}
		eco = e
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Internal("提交变更单失败", err)
	}

	s.logRepo.LogActivity(ctx, "change_order", eco.ID, eco.Number, "submit",
		entity.ChangeOrderStatusDraft, eco.Status, "提交变更单审批", actor.UserID)
	if reviewers, err := s.userRepo.ListByRoles(ctx, entity.RoleApprover, entity.RoleAdmin); err == nil {
		for _, u := range reviewers {
			s.notifyRepo.Notify(ctx, u.ID, "新的变更单待评审",
				fmt.Sprintf("变更单 %s（%s）已提交，等待评审", eco.Title, eco.Number), "change_order", eco.ID)
		}
	}
	return eco, nil
}

// StartReview 领取评审（submitted → in_review），记录评审人
func (s *ChangeOrderService) StartReview(ctx context.Context, id string, actor Actor) (*entity.ChangeOrder, error) {
	if !entity.IsApproverOrAdmin(actor.Role) {
		return nil, apperr.Forbidden("只有审批人或管理员可以评审变更单")
	}

	var eco *entity.ChangeOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := transitionTx(tx, id, entity.ChangeOrderStatusSubmitted)
		if err != nil {
			return err
		}
		e.Status = entity.ChangeOrderStatusInReview
		e.ReviewerID = actor.UserID
		e.UpdatedAt = time.Now()
		if err := tx.Save(e).Error; err != nil {
			return err
		}
		eco = e
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Internal("领取变更单评审失败", err)
	}

	s.logRepo.LogActivity(ctx, "change_order", eco.ID, eco.Number, "start_review",
		entity.ChangeOrderStatusSubmitted, eco.Status, "开始评审变更单", actor.UserID)
	s.notifyRepo.Notify(ctx, eco.RequesterID, "变更单评审中",
		fmt.Sprintf("变更单 %s（%s）已进入评审", eco.Title, eco.Number), "change_order", eco.ID)
	return eco, nil
}

// Decide 决策变更单（in_review → approved/rejected），记录决策时间并通知发起人
func (s *ChangeOrderService) Decide(ctx context.Context, id string, input *DecideChangeOrderInput, actor Actor) (*entity.ChangeOrder, error) {
	if !entity.IsApproverOrAdmin(actor.Role) {
		return nil, apperr.Forbidden("只有审批人或管理员可以决策变更单")
	}

	var eco *entity.ChangeOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := transitionTx(tx, id, entity.ChangeOrderStatusInReview)
		if err != nil {
			return err
		}
		now := time.Now()
		if input.Approve {
			e.Status = entity.ChangeOrderStatusApproved
		} else {
			e.Status = entity.ChangeOrderStatusRejected
		}
		e.ReviewerID = actor.UserID
		e.DecidedAt = &now
		e.UpdatedAt = now
		if err := tx.Save(e).Error; err != nil {
			return err
		}
		eco = e
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Internal("决策变更单失败", err)
	}

	s.logRepo.LogActivity(ctx, "change_order", eco.ID, eco.Number, "decide",
		entity.ChangeOrderStatusInReview, eco.Status, input.Comment, actor.UserID)
	title := "变更单被拒绝"
	if eco.Status == entity.ChangeOrderStatusApproved {
		title = "变更单已通过"
	}
	s.notifyRepo.Notify(ctx, eco.RequesterID, title,
		fmt.Sprintf("变更单 %s（%s）已被决策为 %s", eco.Title, eco.Number, eco.Status), "change_order", eco.ID)
	return eco, nil
}

// Implement 实施并关闭变更单（approved → implemented），记录实施说明
func (s *ChangeOrderService) Implement(ctx context.Context, id string, input *ImplementChangeOrderInput, actor Actor) (*entity.ChangeOrder, error) {
	if !entity.IsApproverOrAdmin(actor.Role) {
		return nil, apperr.Forbidden("只有审批人或管理员可以实施变更单")
	}

	var eco *entity.ChangeOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := transitionTx(tx, id, entity.ChangeOrderStatusApproved)
		if err != nil {
			return err
		}
		e.Status = entity.ChangeOrderStatusImplemented
		e.ImplementationNotes = input.Notes
		e.UpdatedAt = time.Now()
		if err := tx.Save(e).Error; err != nil {
			return err
		}
		eco = e
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Internal("实施变更单失败", err)
	}

	s.logRepo.LogActivity(ctx, "change_order", eco.ID, eco.Number, "implement",
		entity.ChangeOrderStatusApproved, eco.Status, input.Notes, actor.UserID)
	s.notifyRepo.Notify(ctx, eco.RequesterID, "变更单已实施",
		fmt.Sprintf("变更单 %s（%s）已实施并关闭", eco.Title, eco.Number), "change_order", eco.ID)
	return eco, nil
}

// Delete 删除变更单，仅限管理员
func (s *ChangeOrderService) Delete(ctx context.Context, id string, actor Actor) error {
	if actor.Role != entity.RoleAdmin {
		return apperr.Forbidden("只有管理员可以删除变更单")
	}
	eco, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.ecoRepo.Delete(ctx, id); err != nil {
		return apperr.Internal("删除变更单失败", err)
	}
	s.logRepo.LogActivity(ctx, "change_order", eco.ID, eco.Number, "delete", eco.Status, "",
		fmt.Sprintf("删除变更单 %s（%s）", eco.Title, eco.Number), actor.UserID)
	return nil
}

// List 变更单列表
func (s *ChangeOrderService) List(ctx context.Context, f repository.ChangeOrderFilter) ([]entity.ChangeOrder, error) {
	ecos, err := s.ecoRepo.List(ctx, f)
	if err != nil {
		return nil, apperr.Internal("查询变更单列表失败", err)
	}
	return ecos, nil
}
