package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/vega/internal/pdm/entity"
	"gorm.io/gorm"
)

// ProjectRepository 项目仓库
type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create 创建项目
func (r *ProjectRepository) Create(ctx context.Context, p *entity.Project) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// FindByID 根据ID查找项目（带任务）
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*entity.Project, error) {
	var p entity.Project
	err := r.db.WithContext(ctx).
		Preload("Manager").
		Preload("Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Tasks.Assignee").
		First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ExistsByCode 项目编码是否已存在
func (r *ProjectRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Project{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

// Update 保存项目
func (r *ProjectRepository) Update(ctx context.Context, p *entity.Project) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// Delete 删除项目及其任务
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&entity.Task{}, "project_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&entity.Project{}, "id = ?", id).Error
	})
}

// List 项目列表（按状态过滤，空值不限制）
func (r *ProjectRepository) List(ctx context.Context, status string) ([]entity.Project, error) {
	var projects []entity.Project
	query := r.db.WithContext(ctx).Preload("Manager")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("created_at DESC").Find(&projects).Error
	return projects, err
}

// SearchByKeyword 全局搜索用
func (r *ProjectRepository) SearchByKeyword(ctx context.Context, q string, limit int) ([]entity.Project, error) {
	var projects []entity.Project
	like := "%" + q + "%"
	err := r.db.WithContext(ctx).
		Where("code ILIKE ? OR name ILIKE ?", like, like).
		Order("code ASC").
		Limit(limit).
		Find(&projects).Error
	return projects, err
}

// ==================== 任务 ====================

// CreateTask 创建任务
func (r *ProjectRepository) CreateTask(ctx context.Context, t *entity.Task) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// FindTask 查找属于指定项目的任务
func (r *ProjectRepository) FindTask(ctx context.Context, projectID, taskID string) (*entity.Task, error) {
	var t entity.Task
	err := r.db.WithContext(ctx).
		Preload("Assignee").
		First(&t, "id = ? AND project_id = ?", taskID, projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask 保存任务
func (r *ProjectRepository) UpdateTask(ctx context.Context, t *entity.Task) error {
	return r.db.WithContext(ctx).Save(t).Error
}

// DeleteTask 删除任务
func (r *ProjectRepository) DeleteTask(ctx context.Context, projectID, taskID string) error {
	result := r.db.WithContext(ctx).Delete(&entity.Task{}, "id = ? AND project_id = ?", taskID, projectID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
