package service

import (
	"context"

	"github.com/bitfantasy/vega/internal/pdm/entity"
	"github.com/bitfantasy/vega/internal/pdm/repository"
)

// Actor 已认证调用者（认证在中间件完成，service 只做授权）
type Actor struct {
	UserID string
	Role   string
}

// Authorizer 授权判定。编辑权的口径全系统唯一：
// admin 永真；所有者隐式可编辑；其余看授权行。
type Authorizer struct {
	permRepo *repository.PermissionRepository
}

func NewAuthorizer(permRepo *repository.PermissionRepository) *Authorizer {
	return &Authorizer{permRepo: permRepo}
}

// CanEditPart 是否可编辑零件（admin | 所有者 | 显式授权）
func (a *Authorizer) CanEditPart(ctx context.Context, part *entity.Part, actor Actor) (bool, error) {
	if actor.Role == entity.RoleAdmin {
		return true, nil
	}
	if part.OwnerID == actor.UserID {
		return true, nil
	}
	return a.permRepo.HasEditGrant(ctx, part.ID, actor.UserID)
}

// CanEditAssembly 是否可编辑装配体（装配体无授权行，admin | 所有者）
func (a *Authorizer) CanEditAssembly(asm *entity.Assembly, actor Actor) bool {
	return actor.Role == entity.RoleAdmin || asm.OwnerID == actor.UserID
}

// CanCreateItem 物料创建（designer | admin）
func CanCreateItem(actor Actor) bool {
	return actor.Role == entity.RoleDesigner || actor.Role == entity.RoleAdmin
}
