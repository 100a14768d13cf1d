package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/vega/internal/pdm/entity"
	"gorm.io/gorm"
)

// ChangeOrderFilter 变更单列表过滤条件（AND 组合）
type ChangeOrderFilter struct {
	Query       string // 编号/标题/描述模糊匹配
	Status      string
	Priority    string
	RequesterID string
}

// ChangeOrderRepository 变更单仓库
type ChangeOrderRepository struct {
	db *gorm.DB
}

func NewChangeOrderRepository(db *gorm.DB) *ChangeOrderRepository {
	return &ChangeOrderRepository{db: db}
}

// FindByID 根据ID查找变更单（含请求人、评审人与受影响物料）
func (r *ChangeOrderRepository) FindByID(ctx context.Context, id string) (*entity.ChangeOrder, error) {
	var eco entity.ChangeOrder
	err := r.db.WithContext(ctx).
		Preload("Requester").
		Preload("Reviewer").
		Preload("AffectedItems").
		First(&eco, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &eco, nil
}

// Create 创建变更单
func (r *ChangeOrderRepository) Create(ctx context.Context, eco *entity.ChangeOrder) error {
	return r.db.WithContext(ctx).Create(eco).Error
}

// Update 更新变更单
func (r *ChangeOrderRepository) Update(ctx context.Context, eco *entity.ChangeOrder) error {
	return r.db.WithContext(ctx).Save(eco).Error
}

// List 变更单列表（最新在前）
func (r *ChangeOrderRepository) List(ctx context.Context, f ChangeOrderFilter) ([]entity.ChangeOrder, error) {
	query := r.db.WithContext(ctx).Model(&entity.ChangeOrder{}).
		Preload("Requester").
		Preload("AffectedItems")

	if f.Query != "" {
		like := "%" + f.Query + "%"
		query = query.Where("number ILIKE ? OR title ILIKE ? OR description ILIKE ?", like, like, like)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		query = query.Where("priority = ?", f.Priority)
	}
	if f.RequesterID != "" {
		query = query.Where("requester_id = ?", f.RequesterID)
	}

	var ecos []entity.ChangeOrder
	err := query.Order("created_at DESC").Find(&ecos).Error
	return ecos, err
}

// Delete 删除变更单及其受影响物料行
func (r *ChangeOrderRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&entity.ChangeOrderItem{}, "change_order_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&entity.ChangeOrder{}, "id = ?", id).Error
	})
}
