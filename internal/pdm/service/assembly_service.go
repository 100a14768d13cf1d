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

// AssemblyService 装配体与组成关系服务。
// 核心规则：组成边只允许指向已冻结的零件版本。
type AssemblyService struct {
	db          *gorm.DB
	asmRepo     *repository.AssemblyRepository
	versionRepo *repository.VersionRepository
	compRepo    *repository.CompositionRepository
	logRepo     *repository.ActivityLogRepository
	authz       *Authorizer
}

func NewAssemblyService(db *gorm.DB, repos *repository.Repositories, authz *Authorizer) *AssemblyService {
	return &AssemblyService{
		db:          db,
		asmRepo:     repos.Assembly,
		versionRepo: repos.Version,
		compRepo:    repos.Composition,
		logRepo:     repos.ActivityLog,
		authz:       authz,
	}
}

// CreateAssemblyInput 创建装配体入参（装配体与首个版本、组成边同事务落库）
type CreateAssemblyInput struct {
	Code           string   `json:"code" binding:"required"`
	Name           string   `json:"name" binding:"required"`
	Description    string   `json:"description"`
	Tags           string   `json:"tags"`
	Criticality    string   `json:"criticality"`
	LifecycleState string   `json:"lifecycle_state"`
	WorkingPath    string   `json:"working_path"`
	ChangeNotes    string   `json:"change_notes"`
	PartVersionIDs []string `json:"part_version_ids" binding:"required"`
}

// CreateAssemblyVersionInput 追加装配体版本入参
type CreateAssemblyVersionInput struct {
	Label          string   `json:"label"`
	WorkingPath    string   `json:"working_path"`
	ChangeNotes    string   `json:"change_notes"`
	PartVersionIDs []string `json:"part_version_ids" binding:"required"`
}

// UpdateAssemblyInput 更新装配体元数据入参
type UpdateAssemblyInput struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	Tags           *string `json:"tags"`
	Criticality    *string `json:"criticality"`
	LifecycleState *string `json:"lifecycle_state"`
}

// AssemblyListItem 装配体列表行（含版本聚合）
type AssemblyListItem struct {
	entity.Assembly
	VersionCount        int    `json:"version_count"`
	LatestVersionLabel  string `json:"latest_version_label"`
	LatestVersionStatus string `json:"latest_version_status"`
}

// resolveFrozenPartVersionsTx 事务内解析并校验组成边目标：
// 全部存在且全部冻结才放行，任何一条不满足则整单失败。
// 共享锁持有到事务提交，避免校验后、落边前目标版本被并发删除。
func resolveFrozenPartVersionsTx(tx *gorm.DB, ids []string) ([]entity.PartVersion, error) {
	if len(ids) == 0 {
		return nil, apperr.Invalid("part_version_ids 不能为空")
	}

	var versions []entity.PartVersion
	if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
		Where("id IN ?", ids).Find(&versions).Error; err != nil {
		return nil, err
	}
	if len(versions) != len(ids) {
		found := make(map[string]bool, len(versions))
		for _, v := range versions {
			found[v.ID] = true
		}
		var missing []string
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return nil, apperr.Invalid("零件版本不存在：%s", strings.Join(missing, "、"))
	}
	for _, v := range versions {
		if v.Status != entity.VersionStatusFrozen {
			return nil, apperr.Conflict("零件版本 %s 尚未冻结，装配体只能引用冻结版本", v.VersionLabel)
		}
	}
	return versions, nil
}

// createAssemblyVersionTx 事务内创建装配体版本及全部组成边
func createAssemblyVersionTx(tx *gorm.DB, assemblyID, label, workingPath, changeNotes string, partVersionIDs []string) (*entity.AssemblyVersion, error) {
	versions, err := resolveFrozenPartVersionsTx(tx, partVersionIDs)
	if err != nil {
		return nil, err
	}

	if label == "" {
		var count int64
		if err := tx.Model(&entity.AssemblyVersion{}).Where("assembly_id = ?", assemblyID).Count(&count).Error; err != nil {
			return nil, err
		}
		label = fmt.Sprintf("V%d", count+1)
	}

	now := time.Now()
	version := &entity.AssemblyVersion{
		ID:           repository.NewID(),
		AssemblyID:   assemblyID,
		VersionLabel: label,
		Status:       entity.VersionStatusWorking,
		WorkingPath:  workingPath,
		ChangeNotes:  changeNotes,
		CreatedAt:    now,
	}
	if err := tx.Create(version).Error; err != nil {
		return nil, err
	}

	edges := make([]entity.AssemblyPart, len(versions))
	for i, v := range versions {
		edges[i] = entity.AssemblyPart{
			ID:                repository.NewID(),
			AssemblyVersionID: version.ID,
			PartVersionID:     v.ID,
			CreatedAt:         now,
		}
	}
	if err := tx.Create(&edges).Error; err != nil {
		return nil, err
	}
	return version, nil
}

// Create 创建装配体：本体、首个版本V1、组成边一个事务内完成
func (s *AssemblyService) Create(ctx context.Context, input *CreateAssemblyInput, actor Actor) (*entity.Assembly, error) {
	if !CanCreateItem(actor) {
		return nil, apperr.Forbidden("只有设计师或管理员可以创建装配体")
	}
	if err := validateItemFields(input.Code, input.Name, input.Description, input.Criticality, input.LifecycleState); err != nil {
		return nil, err
	}

	exists, err := s.asmRepo.ExistsByCode(ctx, input.Code)
	if err != nil {
		return nil, apperr.Internal("查询装配体编码失败", err)
	}
	if exists {
		return nil, apperr.Conflict("装配体编码 %s 已存在", input.Code)
	}

	now := time.Now()
	asm := &entity.Assembly{
		ID:             repository.NewID(),
		Code:           input.Code,
		Name:           input.Name,
		Description:    input.Description,
		Tags:           input.Tags,
		Criticality:    input.Criticality,
		LifecycleState: input.LifecycleState,
		OwnerID:        actor.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if asm.Criticality == "" {
		asm.Criticality = entity.CriticalityNormal
	}
	if asm.LifecycleState == "" {
		asm.LifecycleState = entity.LifecycleDraft
	}

	var version *entity.AssemblyVersion
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(asm).Error; err != nil {
			return err
		}
		v, err := createAssemblyVersionTx(tx, asm.ID, "V1", input.WorkingPath, input.ChangeNotes, input.PartVersionIDs)
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Internal("创建装配体失败", err)
	}

	s.logRepo.LogActivity(ctx, "assembly", asm.ID, asm.Code, "create", "", asm.LifecycleState,
		fmt.Sprintf("创建装配体 %s（%s），初始版本 V1，含 %d 个零件版本", asm.Name, asm.Code, len(input.PartVersionIDs)), actor.UserID)

	asm.Versions = []entity.AssemblyVersion{*version}
	return asm, nil
}

// CreateVersion 为装配体追加新版本（版本行 + 组成边原子落库）
func (s *AssemblyService) CreateVersion(ctx context.Context, assemblyID string, input *CreateAssemblyVersionInput, actor Actor) (*entity.AssemblyVersion, error) {
	asm, err := s.Get(ctx, assemblyID)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanEditAssembly(asm, actor) {
		return nil, apperr.Forbidden("没有该装配体的编辑权限")
	}

	var version *entity.AssemblyVersion
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked entity.Assembly
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, "id = ?", assemblyID).Error; err != nil {
			return err
		}

		var latest entity.AssemblyVersion
		err := tx.Where("assembly_id = ?", assemblyID).Order("created_at DESC").First(&latest).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil && latest.Status != entity.VersionStatusFrozen {
			return apperr.Conflict("当前版本 %s 尚未冻结，同一装配体只能有一个工作版本", latest.VersionLabel)
		}

		v, err := createAssemblyVersionTx(tx, assemblyID, input.Label, input.WorkingPath, input.ChangeNotes, input.PartVersionIDs)
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Internal("创建装配体版本失败", err)
	}

	s.logRepo.LogActivity(ctx, "assembly", asm.ID, asm.Code, "create_version", "", entity.VersionStatusWorking,
		fmt.Sprintf("创建工作版本 %s，含 %d 个零件版本", version.VersionLabel, len(input.PartVersionIDs)), actor.UserID)
	return version, nil
}

// Get 装配体详情
func (s *AssemblyService) Get(ctx context.Context, id string) (*entity.Assembly, error) {
	asm, err := s.asmRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("装配体不存在")
	}
	if err != nil {
		return nil, apperr.Internal("查询装配体失败", err)
	}
	return asm, nil
}

// Update 更新装配体元数据（patch 语义）
func (s *AssemblyService) Update(ctx context.Context, id string, input *UpdateAssemblyInput, actor Actor) (*entity.Assembly, error) {
	asm, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.authz.CanEditAssembly(asm, actor) {
		return nil, apperr.Forbidden("没有该装配体的编辑权限")
	}

	if input.Criticality != nil && !entity.ValidCriticality(*input.Criticality) {
		return nil, apperr.Invalid("criticality 必须为 %s 之一", strings.Join(entity.Criticalities, "/"))
	}
	if input.LifecycleState != nil && !entity.ValidLifecycleState(*input.LifecycleState) {
		return nil, apperr.Invalid("lifecycle_state 必须为 %s 之一", strings.Join(entity.LifecycleStates, "/"))
	}
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, apperr.Invalid("名称不能为空")
		}
		if len(*input.Name) > 200 {
			return nil, apperr.Invalid("名称不能超过200个字符")
		}
		asm.Name = *input.Name
	}
	if input.Description != nil {
		if len(*input.Description) > 2000 {
			return nil, apperr.Invalid("描述不能超过2000个字符")
		}
		asm.Description = *input.Description
	}
	if input.Tags != nil {
		asm.Tags = *input.Tags
	}
	fromState := asm.LifecycleState
	if input.Criticality != nil {
		asm.Criticality = *input.Criticality
	}
	if input.LifecycleState != nil {
		asm.LifecycleState = *input.LifecycleState
	}
	asm.UpdatedAt = time.Now()

	if err := s.asmRepo.Update(ctx, asm); err != nil {
		return nil, apperr.Internal("更新装配体失败", err)
	}

	s.logRepo.LogActivity(ctx, "assembly", asm.ID, asm.Code, "update", fromState, asm.LifecycleState,
		"更新装配体元数据", actor.UserID)
	return asm, nil
}

// Delete 删除装配体：版本、组成边、发布请求级联清理
func (s *AssemblyService) Delete(ctx context.Context, id string, actor Actor) error {
	if actor.Role != entity.RoleAdmin {
		return apperr.Forbidden("只有管理员可以删除装配体")
	}

	asm, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		versionIDs := tx.Model(&entity.AssemblyVersion{}).Select("id").Where("assembly_id = ?", id)
		if err := tx.Where("assembly_version_id IN (?)", versionIDs).
			Delete(&entity.AssemblyPart{}).Error; err != nil {
			return err
		}
		releaseVersionIDs := tx.Model(&entity.AssemblyVersion{}).Select("id").Where("assembly_id = ?", id)
		if err := tx.Where("item_type = ? AND item_version_id IN (?)", entity.ItemTypeAssembly, releaseVersionIDs).
			Delete(&entity.ReleaseRequest{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&entity.AssemblyVersion{}, "assembly_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&entity.Assembly{}, "id = ?", id).Error
	})
	if err != nil {
		return apperr.Internal("删除装配体失败", err)
	}

	s.logRepo.LogActivity(ctx, "assembly", asm.ID, asm.Code, "delete", asm.LifecycleState, "",
		fmt.Sprintf("删除装配体 %s（%s）", asm.Name, asm.Code), actor.UserID)
	return nil
}

// List 装配体列表（过滤 + 版本聚合）
func (s *AssemblyService) List(ctx context.Context, f repository.ItemFilter) ([]AssemblyListItem, error) {
	assemblies, err := s.asmRepo.List(ctx, f)
	if err != nil {
		return nil, apperr.Internal("查询装配体列表失败", err)
	}

	ids := make([]string, len(assemblies))
	for i, a := range assemblies {
		ids[i] = a.ID
	}
	versions, err := s.versionRepo.ListByAssemblies(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("查询版本聚合失败", err)
	}

	type agg struct {
		count  int
		label  string
		status string
	}
	byAsm := make(map[string]*agg, len(assemblies))
	for _, v := range versions {
		a := byAsm[v.AssemblyID]
		if a == nil {
			a = &agg{}
			byAsm[v.AssemblyID] = a
		}
		a.count++
		a.label = v.VersionLabel
		a.status = v.Status
	}

	items := make([]AssemblyListItem, len(assemblies))
	for i, a := range assemblies {
		items[i] = AssemblyListItem{Assembly: a}
		if agg := byAsm[a.ID]; agg != nil {
			items[i].VersionCount = agg.count
			items[i].LatestVersionLabel = agg.label
			items[i].LatestVersionStatus = agg.status
		}
	}
	return items, nil
}

// GetBOM 装配体版本的物料清单
func (s *AssemblyService) GetBOM(ctx context.Context, assemblyID, versionID string) ([]entity.BOMLine, error) {
	if _, err := s.Get(ctx, assemblyID); err != nil {
		return nil, err
	}
	if _, err := s.versionRepo.FindAssemblyVersion(ctx, assemblyID, versionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("版本不存在或不属于该装配体")
		}
		return nil, apperr.Internal("查询装配体版本失败", err)
	}
	lines, err := s.compRepo.BOM(ctx, versionID)
	if err != nil {
		return nil, apperr.Internal("查询物料清单失败", err)
	}
	return lines, nil
}
