package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/vega/internal/pdm/entity"
	"gorm.io/gorm"
)

// VersionRepository 版本台账仓库（零件版本 + 装配体版本）
type VersionRepository struct {
	db *gorm.DB
}

func NewVersionRepository(db *gorm.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

// ==================== 零件版本 ====================

// FindPartVersion 查找属于指定零件的版本（不匹配父级视为不存在）
func (r *VersionRepository) FindPartVersion(ctx context.Context, partID, versionID string) (*entity.PartVersion, error) {
	var v entity.PartVersion
	err := r.db.WithContext(ctx).
		First(&v, "id = ? AND part_id = ?", versionID, partID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// FindPartVersionByID 仅按ID查找零件版本
func (r *VersionRepository) FindPartVersionByID(ctx context.Context, versionID string) (*entity.PartVersion, error) {
	var v entity.PartVersion
	err := r.db.WithContext(ctx).First(&v, "id = ?", versionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// FindPartVersionsByIDs 批量解析零件版本
func (r *VersionRepository) FindPartVersionsByIDs(ctx context.Context, ids []string) ([]entity.PartVersion, error) {
	var versions []entity.PartVersion
	if len(ids) == 0 {
		return versions, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&versions).Error
	return versions, err
}

// ListByPart 零件全部版本（最新在前，带冻结人）
func (r *VersionRepository) ListByPart(ctx context.Context, partID string) ([]entity.PartVersion, error) {
	var versions []entity.PartVersion
	err := r.db.WithContext(ctx).
		Preload("Freezer").
		Where("part_id = ?", partID).
		Order("created_at DESC").
		Find(&versions).Error
	return versions, err
}

// LatestByPart 零件最近创建的版本；无版本时返回 ErrNotFound
func (r *VersionRepository) LatestByPart(ctx context.Context, partID string) (*entity.PartVersion, error) {
	var v entity.PartVersion
	err := r.db.WithContext(ctx).
		Where("part_id = ?", partID).
		Order("created_at DESC").
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CountByPart 零件版本数（版本号按计数分配）
func (r *VersionRepository) CountByPart(ctx context.Context, partID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.PartVersion{}).
		Where("part_id = ?", partID).Count(&count).Error
	return count, err
}

// ListByParts 批量获取多个零件的版本（避免N+1，列表聚合用）
func (r *VersionRepository) ListByParts(ctx context.Context, partIDs []string) ([]entity.PartVersion, error) {
	var versions []entity.PartVersion
	if len(partIDs) == 0 {
		return versions, nil
	}
	err := r.db.WithContext(ctx).
		Where("part_id IN ?", partIDs).
		Order("created_at ASC").
		Find(&versions).Error
	return versions, err
}

// ==================== 装配体版本 ====================

// FindAssemblyVersion 查找属于指定装配体的版本
func (r *VersionRepository) FindAssemblyVersion(ctx context.Context, assemblyID, versionID string) (*entity.AssemblyVersion, error) {
	var v entity.AssemblyVersion
	err := r.db.WithContext(ctx).
		First(&v, "id = ? AND assembly_id = ?", versionID, assemblyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// FindAssemblyVersionByID 仅按ID查找装配体版本
func (r *VersionRepository) FindAssemblyVersionByID(ctx context.Context, versionID string) (*entity.AssemblyVersion, error) {
	var v entity.AssemblyVersion
	err := r.db.WithContext(ctx).First(&v, "id = ?", versionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListByAssembly 装配体全部版本（最新在前，带冻结人）
func (r *VersionRepository) ListByAssembly(ctx context.Context, assemblyID string) ([]entity.AssemblyVersion, error) {
	var versions []entity.AssemblyVersion
	err := r.db.WithContext(ctx).
		Preload("Freezer").
		Where("assembly_id = ?", assemblyID).
		Order("created_at DESC").
		Find(&versions).Error
	return versions, err
}

// LatestByAssembly 装配体最近创建的版本；无版本时返回 ErrNotFound
func (r *VersionRepository) LatestByAssembly(ctx context.Context, assemblyID string) (*entity.AssemblyVersion, error) {
	var v entity.AssemblyVersion
	err := r.db.WithContext(ctx).
		Where("assembly_id = ?", assemblyID).
		Order("created_at DESC").
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CountByAssembly 装配体版本数
func (r *VersionRepository) CountByAssembly(ctx context.Context, assemblyID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.AssemblyVersion{}).
		Where("assembly_id = ?", assemblyID).Count(&count).Error
	return count, err
}

// ListByAssemblies 批量获取多个装配体的版本
func (r *VersionRepository) ListByAssemblies(ctx context.Context, assemblyIDs []string) ([]entity.AssemblyVersion, error) {
	var versions []entity.AssemblyVersion
	if len(assemblyIDs) == 0 {
		return versions, nil
	}
	err := r.db.WithContext(ctx).
		Where("assembly_id IN ?", assemblyIDs).
		Order("created_at ASC").
		Find(&versions).Error
	return versions, err
}
