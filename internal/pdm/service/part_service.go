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

// PartService 零件注册表服务
type PartService struct {
	db          *gorm.DB
	partRepo    *repository.PartRepository
	versionRepo *repository.VersionRepository
	compRepo    *repository.CompositionRepository
	logRepo     *repository.ActivityLogRepository
	authz       *Authorizer
}

func NewPartService(db *gorm.DB, repos *repository.Repositories, authz *Authorizer) *PartService {
	return &PartService{
		db:          db,
		partRepo:    repos.Part,
		versionRepo: repos.Version,
		compRepo:    repos.Composition,
		logRepo:     repos.ActivityLog,
		authz:       authz,
	}
}

// CreatePartInput 创建零件入参
type CreatePartInput struct {
	Code           string `json:"code" binding:"required"`
	Name           string `json:"name" binding:"required"`
	Description    string `json:"description"`
	Material       string `json:"material"`
	Vendor         string `json:"vendor"`
	Tags           string `json:"tags"`
	Criticality    string `json:"criticality"`
	LifecycleState string `json:"lifecycle_state"`
	WorkingPath    string `json:"working_path"`
	ChangeNotes    string `json:"change_notes"`
}

// UpdatePartInput 更新零件入参（指针字段缺省即不改，patch 语义）
type UpdatePartInput struct {
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	Material       *string `json:"material"`
	Vendor         *string `json:"vendor"`
	Tags           *string `json:"tags"`
	Criticality    *string `json:"criticality"`
	LifecycleState *string `json:"lifecycle_state"`
}

// PartListItem 零件列表行（含版本聚合）
type PartListItem struct {
	entity.Part
	VersionCount        int    `json:"version_count"`
	LatestVersionLabel  string `json:"latest_version_label"`
	LatestVersionStatus string `json:"latest_version_status"`
}

// validateItemFields 物料公共字段校验
func validateItemFields(code, name, description, criticality, lifecycle string) error {
	if strings.TrimSpace(code) == "" {
		return apperr.Invalid("编码不能为空")
	}
	if len(code) > 50 {
		return apperr.Invalid("编码不能超过50个字符")
	}
	if strings.TrimSpace(name) == "" {
		return apperr.Invalid("名称不能为空")
	}
	if len(name) > 200 {
		return apperr.Invalid("名称不能超过200个字符")
	}
	if len(description) > 2000 {
		return apperr.Invalid("描述不能超过2000个字符")
	}
	if criticality != "" && !entity.ValidCriticality(criticality) {
		return apperr.Invalid("criticality 必须为 %s 之一", strings.Join(entity.Criticalities, "/"))
	}
	if lifecycle != "" && !entity.ValidLifecycleState(lifecycle) {
		return apperr.Invalid("lifecycle_state 必须为 %s 之一", strings.Join(entity.LifecycleStates, "/"))
	}
	return nil
}

// Create 创建零件。零件、首个工作版本V1、创建者编辑授权在同一事务内落库。
func (s *PartService) Create(ctx context.Context, input *CreatePartInput, actor Actor) (*entity.Part, error) {
	if !CanCreateItem(actor) {
		return nil, apperr.Forbidden("只有设计师或管理员可以创建零件")
	}
	if err := validateItemFields(input.Code, input.Name, input.Description, input.Criticality, input.LifecycleState); err != nil {
		return nil, err
	}

	exists, err := s.partRepo.ExistsByCode(ctx, input.Code)
	if err != nil {
		return nil, apperr.Internal("查询零件编码失败", err)
	}
	if exists {
		return nil, apperr.Conflict("零件编码 %s 已存在", input.Code)
	}

	now := time.Now()
	part := &entity.Part{
		ID:             repository.NewID(),
		Code:           input.Code,
		Name:           input.Name,
		Description:    input.Description,
		Material:       input.Material,
		Vendor:         input.Vendor,
		Tags:           input.Tags,
		Criticality:    input.Criticality,
		LifecycleState: input.LifecycleState,
		OwnerID:        actor.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if part.Criticality == "" {
		part.Criticality = entity.CriticalityNormal
	}
	if part.LifecycleState == "" {
		part.LifecycleState = entity.LifecycleDraft
	}

	version := &entity.PartVersion{
		ID:           repository.NewID(),
		PartID:       part.ID,
		VersionLabel: "V1",
		Status:       entity.VersionStatusWorking,
		WorkingPath:  input.WorkingPath,
		ChangeNotes:  input.ChangeNotes,
		CreatedAt:    now,
	}

	grant := &entity.PartPermission{
		ID:        repository.NewID(),
		PartID:    part.ID,
		UserID:    actor.UserID,
		CanEdit:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(part).Error; err != nil {
			return err
		}
		if err := tx.Create(version).Error; err != nil {
			return err
		}
		return tx.Create(grant).Error
	})
	if err != nil {
		return nil, apperr.Internal("创建零件失败", err)
	}

	s.logRepo.LogActivity(ctx, "part", part.ID, part.Code, "create", "", part.LifecycleState,
		fmt.Sprintf("创建零件 %s（%s），初始版本 V1", part.Name, part.Code), actor.UserID)

	part.Versions = []entity.PartVersion{*version}
	return part, nil
}

// Get 零件详情
func (s *PartService) Get(ctx context.Context, id string) (*entity.Part, error) {
	part, err := s.partRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("零件不存在")
	}
	if err != nil {
		return nil, apperr.Internal("查询零件失败", err)
	}
	return part, nil
}

// Update 更新零件元数据（patch 语义，未传字段保持原值）
func (s *PartService) Update(ctx context.Context, id string, input *UpdatePartInput, actor Actor) (*entity.Part, error) {
	part, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ok, err := s.authz.CanEditPart(ctx, part, actor)
	if err != nil {
		return nil, apperr.Internal("查询编辑授权失败", err)
	}
	if !ok {
		return nil, apperr.Forbidden("没有该零件的编辑权限")
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
		part.Name = *input.Name
	}
	if input.Description != nil {
		if len(*input.Description) > 2000 {
			return nil, apperr.Invalid("描述不能超过2000个字符")
		}
		part.Description = *input.Description
	}
	if input.Material != nil {
		part.Material = *input.Material
	}
	if input.Vendor != nil {
		part.Vendor = *input.Vendor
	}
	if input.Tags != nil {
		part.Tags = *input.Tags
	}
	fromState := part.LifecycleState
	if input.Criticality != nil {
		part.Criticality = *input.Criticality
	}
	if input.LifecycleState != nil {
		part.LifecycleState = *input.LifecycleState
	}
	part.UpdatedAt = time.Now()

	if err := s.partRepo.Update(ctx, part); err != nil {
		return nil, apperr.Internal("更新零件失败", err)
	}

	s.logRepo.LogActivity(ctx, "part", part.ID, part.Code, "update", fromState, part.LifecycleState,
		"更新零件元数据", actor.UserID)
	return part, nil
}

// Delete 删除零件。被组成关系引用的零件拒绝删除；
// 授权行、编辑请求、发布请求、版本、零件本体按依赖顺序在同一事务内删除。
func (s *PartService) Delete(ctx context.Context, id string, actor Actor) error {
	if actor.Role != entity.RoleAdmin {
		return apperr.Forbidden("只有管理员可以删除零件")
	}

	part, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 锁零件行，保证引用检查与删除之间不会插入新的组成边
		var locked entity.Part
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, "id = ?", id).Error; err != nil {
			return err
		}
		return s.deletePartTx(tx, id)
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return appErr
		}
		return apperr.Internal("删除零件失败", err)
	}

	s.logRepo.LogActivity(ctx, "part", part.ID, part.Code, "delete", part.LifecycleState, "",
		fmt.Sprintf("删除零件 %s（%s）", part.Name, part.Code), actor.UserID)
	return nil
}

// deletePartTx 事务内级联删除单个零件（调用前需已持有零件行锁）
func (s *PartService) deletePartTx(tx *gorm.DB, id string) error {
	var blocking []string
	if err := tx.Raw(`
		SELECT DISTINCT a.code
		FROM assembly_parts ap
		JOIN part_versions pv ON pv.id = ap.part_version_id
		JOIN assembly_versions av ON av.id = ap.assembly_version_id
		JOIN assemblies a ON a.id = av.assembly_id
		WHERE pv.part_id = ?`, id).Scan(&blocking).Error; err != nil {
		return err
	}
	if len(blocking) > 0 {
		return apperr.Conflict("零件被装配体 %s 引用，无法删除", strings.Join(blocking, "、"))
	}

	if err := tx.Delete(&entity.PartPermission{}, "part_id = ?", id).Error; err != nil {
		return err
	}
	if err := tx.Delete(&entity.EditRequest{}, "part_id = ?", id).Error; err != nil {
		return err
	}
	versionIDs := tx.Model(&entity.PartVersion{}).Select("id").Where("part_id = ?", id)
	if err := tx.Where("item_type = ? AND item_version_id IN (?)", entity.ItemTypePart, versionIDs).
		Delete(&entity.ReleaseRequest{}).Error; err != nil {
		return err
	}
	if err := tx.Delete(&entity.PartVersion{}, "part_id = ?", id).Error; err != nil {
		return err
	}
	return tx.Delete(&entity.Part{}, "id = ?", id).Error
}

// BulkDelete 批量删除零件。任一零件被引用则整批拒绝，不产生部分删除。
func (s *PartService) BulkDelete(ctx context.Context, ids []string, actor Actor) error {
	if actor.Role != entity.RoleAdmin {
		return apperr.Forbidden("只有管理员可以删除零件")
	}
	if len(ids) == 0 {
		return apperr.Invalid("ids 不能为空")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parts []entity.Part
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", ids).Find(&parts).Error; err != nil {
			return err
		}
		if len(parts) != len(ids) {
			return apperr.NotFound("部分零件不存在")
		}

		// 整批引用检查先行，fail-closed
		var blocking []string
		if err := tx.Raw(`
			SELECT DISTINCT a.code
			FROM assembly_parts ap
			JOIN part_versions pv ON pv.id = ap.part_version_id
			JOIN assembly_versions av ON av.id = ap.assembly_version_id
			JOIN assemblies a ON a.id = av.assembly_id
			WHERE pv.part_id IN ?`, ids).Scan(&blocking).Error; err != nil {
			return err
		}
		if len(blocking) > 0 {
			return apperr.Conflict("批次中存在被装配体 %s 引用的零件，整批拒绝删除", strings.Join(blocking, "、"))
		}

		for _, p := range parts {
			if err := s.deletePartTx(tx, p.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return appErr
		}
		return apperr.Internal("批量删除零件失败", err)
	}

	s.logRepo.LogActivity(ctx, "part", strings.Join(ids, ","), "", "bulk_delete", "", "",
		fmt.Sprintf("批量删除 %d 个零件", len(ids)), actor.UserID)
	return nil
}

// List 零件列表（过滤 + 版本聚合）
func (s *PartService) List(ctx context.Context, f repository.ItemFilter) ([]PartListItem, error) {
	parts, err := s.partRepo.List(ctx, f)
	if err != nil {
		return nil, apperr.Internal("查询零件列表失败", err)
	}

	ids := make([]string, len(parts))
	for i, p := range parts {
		ids[i] = p.ID
	}
	versions, err := s.versionRepo.ListByParts(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("查询版本聚合失败", err)
	}

	type agg struct {
		count  int
		label  string
		status string
	}
	byPart := make(map[string]*agg, len(parts))
	for _, v := range versions {
		a := byPart[v.PartID]
		if a == nil {
			a = &agg{}
			byPart[v.PartID] = a
		}
		a.count++
		// versions 按创建时间升序，最后一条即最新
		a.label = v.VersionLabel
		a.status = v.Status
	}

	items := make([]PartListItem, len(parts))
	for i, p := range parts {
		items[i] = PartListItem{Part: p}
		if a := byPart[p.ID]; a != nil {
			items[i].VersionCount = a.count
			items[i].LatestVersionLabel = a.label
			items[i].LatestVersionStatus = a.status
		}
	}
	return items, nil
}

// Impact 影响分析：引用了该零件任一版本的装配体清单
func (s *PartService) Impact(ctx context.Context, partID string) ([]entity.ImpactLine, error) {
	if _, err := s.Get(ctx, partID); err != nil {
		return nil, err
	}
	lines, err := s.compRepo.ImpactByPart(ctx, partID)
	if err != nil {
		return nil, apperr.Internal("影响分析查询失败", err)
	}
	return lines, nil
}
