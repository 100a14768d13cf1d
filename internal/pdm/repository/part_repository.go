package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/vega/internal/pdm/entity"
	"gorm.io/gorm"
)

// PartRepository 零件仓库
type PartRepository struct {
	db *gorm.DB
}

func NewPartRepository(db *gorm.DB) *PartRepository {
	return &PartRepository{db: db}
}

// ItemFilter 物料列表过滤条件（多条件取AND，缺省即不限制）
type ItemFilter struct {
	Query       string // code/name/description/material/vendor 子串
	Owner       string // 所有者用户名
	Criticality string
	Lifecycle   string
	Tag         string // tags 子串
}

// FindByID 根据ID查找零件
func (r *PartRepository) FindByID(ctx context.Context, id string) (*entity.Part, error) {
	var part entity.Part
	err := r.db.WithContext(ctx).Preload("Owner").First(&part, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &part, nil
}

// ExistsByCode 零件编码是否已存在
func (r *PartRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Part{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

// Update 保存零件
func (r *PartRepository) Update(ctx context.Context, part *entity.Part) error {
	return r.db.WithContext(ctx).Save(part).Error
}

// List 按过滤条件获取零件列表
func (r *PartRepository) List(ctx context.Context, f ItemFilter) ([]entity.Part, error) {
	var parts []entity.Part
	query := r.db.WithContext(ctx).Model(&entity.Part{}).Preload("Owner")

	if f.Query != "" {
		like := "%" + f.Query + "%"
		query = query.Where(
			"parts.code ILIKE ? OR parts.name ILIKE ? OR parts.description ILIKE ? OR parts.material ILIKE ? OR parts.vendor ILIKE ?",
			like, like, like, like, like,
		)
	}
	if f.Owner != "" {
		query = query.Joins("JOIN users ON users.id = parts.owner_id").
			Where("users.username = ?", f.Owner)
	}
	if f.Criticality != "" {
		query = query.Where("parts.criticality = ?", f.Criticality)
	}
	if f.Lifecycle != "" {
		query = query.Where("parts.lifecycle_state = ?", f.Lifecycle)
	}
	if f.Tag != "" {
		query = query.Where("parts.tags ILIKE ?", "%"+f.Tag+"%")
	}

	err := query.Order("parts.code ASC").Find(&parts).Error
	return parts, err
}

// SearchByKeyword 全局搜索用（code/name 子串）
func (r *PartRepository) SearchByKeyword(ctx context.Context, q string, limit int) ([]entity.Part, error) {
	var parts []entity.Part
	like := "%" + q + "%"
	err := r.db.WithContext(ctx).
		Where("code ILIKE ? OR name ILIKE ?", like, like).
		Order("code ASC").
		Limit(limit).
		Find(&parts).Error
	return parts, err
}
