package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/vega/internal/pdm/entity"
	"gorm.io/gorm"
)

// PermissionRepository 零件编辑授权仓库
type PermissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// HasEditGrant 是否存在可编辑授权
func (r *PermissionRepository) HasEditGrant(ctx context.Context, partID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.PartPermission{}).
		Where("part_id = ? AND user_id = ? AND can_edit = true", partID, userID).
		Count(&count).Error
	return count > 0, err
}

// ListByPart 零件的全部授权行
func (r *PermissionRepository) ListByPart(ctx context.Context, partID string) ([]entity.PartPermission, error) {
	var grants []entity.PartPermission
	err := r.db.WithContext(ctx).Where("part_id = ?", partID).Find(&grants).Error
	return grants, err
}

// ==================== 编辑请求 ====================

// EditRequestRepository 编辑权限请求仓库
type EditRequestRepository struct {
	db *gorm.DB
}

func NewEditRequestRepository(db *gorm.DB) *EditRequestRepository {
	return &EditRequestRepository{db: db}
}

// FindByID 根据ID查找编辑请求
func (r *EditRequestRepository) FindByID(ctx context.Context, id string) (*entity.EditRequest, error) {
	var req entity.EditRequest
	err := r.db.WithContext(ctx).
		Preload("Part").Preload("Requester").Preload("Decider").
		First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Create 创建编辑请求
func (r *EditRequestRepository) Create(ctx context.Context, req *entity.EditRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// List 按状态/申请人过滤列表（空值不限制）
func (r *EditRequestRepository) List(ctx context.Context, status, requesterID string) ([]entity.EditRequest, error) {
	var reqs []entity.EditRequest
	query := r.db.WithContext(ctx).
		Preload("Part").Preload("Requester").Preload("Decider")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if requesterID != "" {
		query = query.Where("requester_id = ?", requesterID)
	}
	err := query.Order("created_at DESC").Find(&reqs).Error
	return reqs, err
}

// ==================== 发布请求 ====================

// ReleaseRequestRepository 发布请求仓库
type ReleaseRequestRepository struct {
	db *gorm.DB
}

func NewReleaseRequestRepository(db *gorm.DB) *ReleaseRequestRepository {
	return &ReleaseRequestRepository{db: db}
}

// FindByID 根据ID查找发布请求
func (r *ReleaseRequestRepository) FindByID(ctx context.Context, id string) (*entity.ReleaseRequest, error) {
	var req entity.ReleaseRequest
	err := r.db.WithContext(ctx).
		Preload("Requester").Preload("Decider").
		First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Create 创建发布请求
func (r *ReleaseRequestRepository) Create(ctx context.Context, req *entity.ReleaseRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// List 按状态/申请人过滤列表（空值不限制）
func (r *ReleaseRequestRepository) List(ctx context.Context, status, requesterID string) ([]entity.ReleaseRequest, error) {
	var reqs []entity.ReleaseRequest
	query := r.db.WithContext(ctx).
		Preload("Requester").Preload("Decider")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if requesterID != "" {
		query = query.Where("requester_id = ?", requesterID)
	}
	err := query.Order("created_at DESC").Find(&reqs).Error
	return reqs, err
}
