package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/bitfantasy/vega/internal/apperr"
	"github.com/bitfantasy/vega/internal/config"
	"github.com/bitfantasy/vega/internal/pdm/entity"
	"github.com/bitfantasy/vega/internal/pdm/repository"
)

// UploadService 设计文件上传：内容落盘，台账入库。
// working_path / storage_path 引用的就是这里登记的文件路径。
type UploadService struct {
	fileRepo *repository.FileRepository
	cfg      config.UploadConfig
}

func NewUploadService(fileRepo *repository.FileRepository, cfg config.UploadConfig) *UploadService {
	return &UploadService{fileRepo: fileRepo, cfg: cfg}
}

// Save 保存上传文件并登记台账
func (s *UploadService) Save(ctx context.Context, fh *multipart.FileHeader, actor Actor) (*entity.UploadedFile, error) {
	if fh.Size > s.cfg.MaxSizeMB*1024*1024 {
		return nil, apperr.Invalid("文件大小超过 %dMB 限制", s.cfg.MaxSizeMB)
	}

	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return nil, apperr.Internal("创建上传目录失败", err)
	}

	id := repository.NewID()
	dst := filepath.Join(s.cfg.Dir, fmt.Sprintf("%s_%s", id, filepath.Base(fh.Filename)))

	src, err := fh.Open()
	if err != nil {
		return nil, apperr.Internal("读取上传文件失败", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return nil, apperr.Internal("写入上传文件失败", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dst)
		return nil, apperr.Internal("写入上传文件失败", err)
	}

	record := &entity.UploadedFile{
		ID:         id,
		Name:       fh.Filename,
		Size:       fh.Size,
		Path:       dst,
		UploadedBy: actor.UserID,
		CreatedAt:  time.Now(),
	}
	if err := s.fileRepo.Create(ctx, record); err != nil {
		os.Remove(dst)
		return nil, apperr.Internal("登记上传文件失败", err)
	}
	return record, nil
}

// Get 上传文件台账记录
func (s *UploadService) Get(ctx context.Context, id string) (*entity.UploadedFile, error) {
	record, err := s.fileRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("文件不存在")
	}
	if err != nil {
		return nil, apperr.Internal("查询文件失败", err)
	}
	return record, nil
}
