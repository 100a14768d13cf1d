package entity

import "time"

// 请求状态：pending → approved / rejected，终态不可再变
const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)

// PartPermission 零件编辑授权（所有者无需授权行，授权用于非所有者）
type PartPermission struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	PartID    string    `json:"part_id" gorm:"size:32;not null;uniqueIndex:uk_part_permission,priority:1"`
	UserID    string    `json:"user_id" gorm:"size:32;not null;uniqueIndex:uk_part_permission,priority:2"`
	CanEdit   bool      `json:"can_edit" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PartPermission) TableName() string {
	return "part_permissions"
}

// EditRequest 非所有者设计师申请零件编辑权
type EditRequest struct {
	ID          string     `json:"id" gorm:"primaryKey;size:32"`
	PartID      string     `json:"part_id" gorm:"size:32;not null;index"`
	RequesterID string     `json:"requester_id" gorm:"size:32;not null;index"`
	Reason      string     `json:"reason" gorm:"type:text"`
	Status      string     `json:"status" gorm:"size:16;not null;default:pending"`
	DecidedBy   string     `json:"decided_by" gorm:"size:32"`
	DecidedAt   *time.Time `json:"decided_at"`
	CreatedAt   time.Time  `json:"created_at"`

	// 关联
	Part      *Part `json:"part,omitempty" gorm:"foreignKey:PartID"`
	Requester *User `json:"requester,omitempty" gorm:"foreignKey:RequesterID"`
	Decider   *User `json:"decider,omitempty" gorm:"foreignKey:DecidedBy"`
}

func (EditRequest) TableName() string {
	return "edit_requests"
}

// ReleaseRequest 版本发布（冻结）请求
type ReleaseRequest struct {
	ID            string     `json:"id" gorm:"primaryKey;size:32"`
	ItemType      string     `json:"item_type" gorm:"size:16;not null"` // part / assembly
	ItemVersionID string     `json:"item_version_id" gorm:"size:32;not null;index"`
	RequesterID   string     `json:"requester_id" gorm:"size:32;not null;index"`
	Reason        string     `json:"reason" gorm:"type:text"`
	Status        string     `json:"status" gorm:"size:16;not null;default:pending"`
	DecidedBy     string     `json:"decided_by" gorm:"size:32"`
	DecidedAt     *time.Time `json:"decided_at"`
	CreatedAt     time.Time  `json:"created_at"`

	// 关联
	Requester *User `json:"requester,omitempty" gorm:"foreignKey:RequesterID"`
	Decider   *User `json:"decider,omitempty" gorm:"foreignKey:DecidedBy"`
}

func (ReleaseRequest) TableName() string {
	return "release_requests"
}
