package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/vega/internal/pdm/entity"
	"gorm.io/gorm"
)

// FileRepository 上传文件台账仓库
type FileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{db: db}
}

// Create 登记上传文件
func (r *FileRepository) Create(ctx context.Context, f *entity.UploadedFile) error {
	return r.db.WithContext(ctx).Create(f).Error
}

// FindByID 根据ID查找文件记录
func (r *FileRepository) FindByID(ctx context.Context, id string) (*entity.UploadedFile, error) {
	var f entity.UploadedFile
	err := r.db.WithContext(ctx).Preload("Uploader").First(&f, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}
