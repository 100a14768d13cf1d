package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/vega/internal/pdm/entity"
	"gorm.io/gorm"
)

// AssemblyRepository 装配体仓库
type AssemblyRepository struct {
	db *gorm.DB
}

func NewAssemblyRepository(db *gorm.DB) *AssemblyRepository {
	return &AssemblyRepository{db: db}
}

// FindByID 根据ID查找装配体
func (r *AssemblyRepository) FindByID(ctx context.Context, id string) (*entity.Assembly, error) {
	var asm entity.Assembly
	err := r.db.WithContext(ctx).Preload("Owner").First(&asm, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &asm, nil
}

// ExistsByCode 装配体编码是否已存在
func (r *AssemblyRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Assembly{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

// Update 保存装配体
func (r *AssemblyRepository) Update(ctx context.Context, asm *entity.Assembly) error {
	return r.db.WithContext(ctx).Save(asm).Error
}

// List 按过滤条件获取装配体列表
func (r *AssemblyRepository) List(ctx context.Context, f ItemFilter) ([]entity.Assembly, error) {
	var asms []entity.Assembly
	query := r.db.WithContext(ctx).Model(&entity.Assembly{}).Preload("Owner")

	if f.Query != "" {
		like := "%" + f.Query + "%"
		query = query.Where(
			"assemblies.code ILIKE ? OR assemblies.name ILIKE ? OR assemblies.description ILIKE ?",
			like, like, like,
		)
	}
	if f.Owner != "" {
		query = query.Joins("JOIN users ON users.id = assemblies.owner_id").
			Where("users.username = ?", f.Owner)
	}
	if f.Criticality != "" {
		query = query.Where("assemblies.criticality = ?", f.Criticality)
	}
	if f.Lifecycle != "" {
		query = query.Where("assemblies.lifecycle_state = ?", f.Lifecycle)
	}
	if f.Tag != "" {
		query = query.Where("assemblies.tags ILIKE ?", "%"+f.Tag+"%")
	}

	err := query.Order("assemblies.code ASC").Find(&asms).Error
	return asms, err
}

// SearchByKeyword 全局搜索用（code/name 子串）
func (r *AssemblyRepository) SearchByKeyword(ctx context.Context, q string, limit int) ([]entity.Assembly, error) {
	var asms []entity.Assembly
	like := "%" + q + "%"
	err := r.db.WithContext(ctx).
		Where("code ILIKE ? OR name ILIKE ?", like, like).
		Order("code ASC").
		Limit(limit).
		Find(&asms).Error
	return asms, err
}
