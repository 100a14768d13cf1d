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

// VersionService 版本台账服务。
// 冻结是全系统唯一的一段内部原语（freezePartVersionTx / freezeAssemblyVersionTx），
// 直接冻结接口和发布请求审批走同一入口，保证副作用一致。
type VersionService struct {
	db          *gorm.DB
	partRepo    *repository.PartRepository
	asmRepo     *repository.AssemblyRepository
	versionRepo *repository.VersionRepository
	compRepo    *repository.CompositionRepository
	logRepo     *repository.ActivityLogRepository
	authz       *Authorizer
}

func NewVersionService(db *gorm.DB, repos *repository.Repositories, authz *Authorizer) *VersionService {
	return &VersionService{
		db:          db,
		partRepo:    repos.Part,
		asmRepo:     repos.Assembly,
		versionRepo: repos.Version,
		compRepo:    repos.Composition,
		logRepo:     repos.ActivityLog,
		authz:       authz,
	}
}

// CreateVersionInput 创建版本入参（label 缺省按计数自动分配）
type CreateVersionInput struct {
	Label       string `json:"label"`
	WorkingPath string `json:"working_path"`
	ChangeNotes string `json:"change_notes"`
}

// VersionPair 版本对比结果
type VersionPair struct {
	A *entity.PartVersion `json:"a"`
	B *entity.PartVersion `json:"b"`
}

// ==================== 零件版本 ====================

// CreatePartVersion 为零件追加新工作版本。
// 同一零件任意时刻至多一个工作版本：最新版本未冻结时拒绝。
func (s *VersionService) CreatePartVersion(ctx context.Context, partID string, input *CreateVersionInput, actor Actor) (*entity.PartVersion, error) {
	part, err := s.partRepo.FindByID(ctx, partID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("零件不存在")
	}
	if err != nil {
		return nil, apperr.Internal("查询零件失败", err)
	}

	ok, err := s.authz.CanEditPart(ctx, part, actor)
	if err != nil {
		return nil, apperr.Internal("查询编辑授权失败", err)
	}
	if !ok {
		return nil, apperr.Forbidden("没有该零件的编辑权限")
	}

	var version *entity.PartVersion
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 锁零件行，串行化同一零件的版本创建，避免重复版本号和双工作版本
		var locked entity.Part
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, "id = ?", partID).Error; err != nil {
			return err
		}

		var latest entity.PartVersion
		err := tx.Where("part_id = ?", partID).Order("created_at DESC").First(&latest).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil && latest.Status != entity.VersionStatusFrozen {
			return apperr.Conflict("当前版本 %s 尚未冻结，同一零件只能有一个工作版本", latest.VersionLabel)
		}

		label := input.Label
		if label == "" {
			var count int64
			if err := tx.Model(&entity.PartVersion{}).Where("part_id = ?", partID).Count(&count).Error; err != nil {
				return err
			}
			label = fmt.Sprintf("V%d", count+1)
		}

		version = &entity.PartVersion{
			ID:           repository.NewID(),
			PartID:       partID,
			VersionLabel: label,
			Status:       entity.VersionStatusWorking,
			WorkingPath:  input.WorkingPath,
			ChangeNotes:  input.ChangeNotes,
			CreatedAt:    time.Now(),
		}
		return tx.Create(version).Error
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Internal("创建零件版本失败", err)
	}

	s.logRepo.LogActivity(ctx, "part", part.ID, part.Code, "create_version", "", entity.VersionStatusWorking,
		fmt.Sprintf("创建工作版本 %s", version.VersionLabel), actor.UserID)
	return version, nil
}

// freezePartVersionTx 事务内冻结零件版本。已冻结版本拒绝再次冻结。
// 直接冻结和发布请求审批共用此原语。
func freezePartVersionTx(tx *gorm.DB, partID, versionID, actorID string) (*entity.PartVersion, error) {
	var v entity.PartVersion
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&v, "id = ? AND part_id = ?", versionID, partID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("版本不存在或不属于该零件")
	}
	if err != nil {
		return nil, err
	}
	if v.Status == entity.VersionStatusFrozen {
		return nil, apperr.Conflict("版本 %s 已冻结，不能重复冻结", v.VersionLabel)
	}

	now := time.Now()
	v.Status = entity.VersionStatusFrozen
	if v.StoragePath == "" {
		v.StoragePath = v.WorkingPath
	}
	v.FrozenBy = actorID
	v.FrozenAt = &now
	if err := tx.Save(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// FreezePartVersion 冻结零件版本（approver/admin）
func (s *VersionService) FreezePartVersion(ctx context.Context, partID, versionID string, actor Actor) (*entity.PartVersion, error) {
	if !entity.IsApproverOrAdmin(actor.Role) {
		return nil, apperr.Forbidden("只有审批人或管理员可以冻结版本")
	}

	part, err := s.partRepo.FindByID(ctx, partID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("零件不存在")
	}
	if err != nil {
		return nil, apperr.Internal("查询零件失败", err)
	}

	var frozen *entity.PartVersion
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := freezePartVersionTx(tx, partID, versionID, actor.UserID)
		if err != nil {
			return err
		}
		frozen = v
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Internal("冻结零件版本失败", err)
	}

	s.logRepo.LogActivity(ctx, "part", part.ID, part.Code, "freeze",
		entity.VersionStatusWorking, entity.VersionStatusFrozen,
		fmt.Sprintf("冻结版本 %s", frozen.VersionLabel), actor.UserID)
	return frozen, nil
}

// BulkFreezePartVersions 批量冻结。任一版本不满足冻结条件则整批失败。
func (s *VersionService) BulkFreezePartVersions(ctx context.Context, partID string, versionIDs []string, actor Actor) ([]entity.PartVersion, error) {
	if !entity.IsApproverOrAdmin(actor.Role) {
		return nil, apperr.Forbidden("只有审批人或管理员可以冻结版本")
	}
	if len(versionIDs) == 0 {
		return nil, apperr.Invalid("version_ids 不能为空")
	}

	part, err := s.partRepo.FindByID(ctx, partID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("零件不存在")
	}
	if err != nil {
		return nil, apperr.Internal("查询零件失败", err)
	}

	var frozen []entity.PartVersion
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range versionIDs {
			v, err := freezePartVersionTx(tx, partID, id, actor.UserID)
			if err != nil {
				return err
			}
			frozen = append(frozen, *v)
		}
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Internal("批量冻结零件版本失败", err)
	}

	s.logRepo.LogActivity(ctx, "part", part.ID, part.Code, "bulk_freeze",
		entity.VersionStatusWorking, entity.VersionStatusFrozen,
		fmt.Sprintf("批量冻结 %d 个版本", len(frozen)), actor.UserID)
	return frozen, nil
}

// RollbackPartVersion 回滚到历史冻结版本：不改写历史，
// 以目标版本内容新建下一个工作版本。
// 目标版本被组成关系引用、或当前最新版本未冻结时拒绝。
func (s *VersionService) RollbackPartVersion(ctx context.Context, partID, versionID string, actor Actor) (*entity.PartVersion, error) {
	part, err := s.partRepo.FindByID(ctx, partID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("零件不存在")
	}
	if err != nil {
		return nil, apperr.Internal("查询零件失败", err)
	}

	ok, err := s.authz.CanEditPart(ctx, part, actor)
	if err != nil {
		return nil, apperr.Internal("查询编辑授权失败", err)
	}
	if !ok {
		return nil, apperr.Forbidden("没有该零件的编辑权限")
	}

	var restored *entity.PartVersion
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked entity.Part
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, "id = ?", partID).Error; err != nil {
			return err
		}

		var target entity.PartVersion
		err := tx.First(&target, "id = ? AND part_id = ?", versionID, partID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("版本不存在或不属于该零件")
		}
		if err != nil {
			return err
		}

		var refCount int64
		if err := tx.Model(&entity.AssemblyPart{}).
			Where("part_version_id = ?", versionID).Count(&refCount).Error; err != nil {
			return err
		}
		if refCount > 0 {
			return apperr.Conflict("版本 %s 被装配体引用，不能作为回滚目标", target.VersionLabel)
		}

		var latest entity.PartVersion
		if err := tx.Where("part_id = ?", partID).Order("created_at DESC").First(&latest).Error; err != nil {
			return err
		}
		if latest.Status != entity.VersionStatusFrozen {
			return apperr.Conflict("当前版本 %s 尚未冻结，请先冻结或放弃当前工作版本", latest.VersionLabel)
		}

		var count int64
		if err := tx.Model(&entity.PartVersion{}).Where("part_id = ?", partID).Count(&count).Error; err != nil {
			return err
		}

		restored = &entity.PartVersion{
			ID:           repository.NewID(),
			PartID:       partID,
			VersionLabel: fmt.Sprintf("V%d", count+1),
			Status:       entity.VersionStatusWorking,
			WorkingPath:  target.StoragePath,
			ChangeNotes:  fmt.Sprintf("回滚自 %s", target.VersionLabel),
			CreatedAt:    time.Now(),
		}
		return tx.Create(restored).Error
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Internal("回滚零件版本失败", err)
	}

	s.logRepo.LogActivity(ctx, "part", part.ID, part.Code, "rollback", "", entity.VersionStatusWorking,
		fmt.Sprintf("回滚生成新工作版本 %s", restored.VersionLabel), actor.UserID)
	return restored, nil
}

// ListPartVersions 零件全部版本（最新在前）
func (s *VersionService) ListPartVersions(ctx context.Context, partID string) ([]entity.PartVersion, error) {
	if _, err := s.partRepo.FindByID(ctx, partID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("零件不存在")
		}
		return nil, apperr.Internal("查询零件失败", err)
	}
	versions, err := s.versionRepo.ListByPart(ctx, partID)
	if err != nil {
		return nil, apperr.Internal("查询版本列表失败", err)
	}
	return versions, nil
}

// ComparePartVersions 取同一零件的两个版本做对比
func (s *VersionService) ComparePartVersions(ctx context.Context, partID, versionA, versionB string) (*VersionPair, error) {
	a, err := s.versionRepo.FindPartVersion(ctx, partID, versionA)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("版本 %s 不存在或不属于该零件", versionA)
	}
	if err != nil {
		return nil, apperr.Internal("查询版本失败", err)
	}
	b, err := s.versionRepo.FindPartVersion(ctx, partID, versionB)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("版本 %s 不存在或不属于该零件", versionB)
	}
	if err != nil {
		return nil, apperr.Internal("查询版本失败", err)
	}
	return &VersionPair{A: a, B: b}, nil
}

// ==================== 装配体版本 ====================

// freezeAssemblyVersionTx 事务内冻结装配体版本，语义与零件版本一致
func freezeAssemblyVersionTx(tx *gorm.DB, assemblyID, versionID, actorID string) (*entity.AssemblyVersion, error) {
	var v entity.AssemblyVersion
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&v, "id = ? AND assembly_id = ?", versionID, assemblyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("版本不存在或不属于该装配体")
	}
	if err != nil {
		return nil, err
	}
	if v.Status == entity.VersionStatusFrozen {
		return nil, apperr.Conflict("版本 %s 已冻结，不能重复冻结", v.VersionLabel)
	}

	now := time.Now()
	v.Status = entity.VersionStatusFrozen
	if v.StoragePath == "" {
		v.StoragePath = v.WorkingPath
	}
	v.FrozenBy = actorID
	v.FrozenAt = &now
	if err := tx.Save(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// FreezeAssemblyVersion 冻结装配体版本（approver/admin）
func (s *VersionService) FreezeAssemblyVersion(ctx context.Context, assemblyID, versionID string, actor Actor) (*entity.AssemblyVersion, error) {
	if !entity.IsApproverOrAdmin(actor.Role) {
		return nil, apperr.Forbidden("只有审批人或管理员可以冻结版本")
	}

	asm, err := s.asmRepo.FindByID(ctx, assemblyID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("装配体不存在")
	}
	if err != nil {
		return nil, apperr.Internal("查询装配体失败", err)
	}

	var frozen *entity.AssemblyVersion
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := freezeAssemblyVersionTx(tx, assemblyID, versionID, actor.UserID)
		if err != nil {
			return err
		}
		frozen = v
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Internal("冻结装配体版本失败", err)
	}

	s.logRepo.LogActivity(ctx, "assembly", asm.ID, asm.Code, "freeze",
		entity.VersionStatusWorking, entity.VersionStatusFrozen,
		fmt.Sprintf("冻结版本 %s", frozen.VersionLabel), actor.UserID)
	return frozen, nil
}

// ListAssemblyVersions 装配体全部版本（最新在前）
func (s *VersionService) ListAssemblyVersions(ctx context.Context, assemblyID string) ([]entity.AssemblyVersion, error) {
	if _, err := s.asmRepo.FindByID(ctx, assemblyID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("装配体不存在")
		}
		return nil, apperr.Internal("查询装配体失败", err)
	}
	versions, err := s.versionRepo.ListByAssembly(ctx, assemblyID)
	if err != nil {
		return nil, apperr.Internal("查询版本列表失败", err)
	}
	return versions, nil
}
