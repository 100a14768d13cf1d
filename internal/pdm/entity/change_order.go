package entity

import "time"

// 变更单状态机：
// draft → submitted → in_review → approved / rejected；approved → implemented。
// rejected 与 implemented 为终态。
const (
	ChangeOrderStatusDraft       = "draft"
	ChangeOrderStatusSubmitted   = "submitted"
	ChangeOrderStatusInReview    = "in_review"
	ChangeOrderStatusApproved    = "approved"
	ChangeOrderStatusRejected    = "rejected"
	ChangeOrderStatusImplemented = "implemented"
)

// 变更单优先级
const (
	ChangeOrderPriorityLow      = "low"
	ChangeOrderPriorityMedium   = "medium"
	ChangeOrderPriorityHigh     = "high"
	ChangeOrderPriorityCritical = "critical"
)

// IsValidChangeOrderPriority 校验优先级枚举
func IsValidChangeOrderPriority(p string) bool {
	switch p {
	case ChangeOrderPriorityLow, ChangeOrderPriorityMedium, ChangeOrderPriorityHigh, ChangeOrderPriorityCritical:
		return true
	}
	return false
}

// ChangeOrder 工程变更单（ECO）。正式的变更管理流程：
// 设计师起草并提交，审批人领取评审后决策，通过的变更单实施后关闭。
type ChangeOrder struct {
	ID                  string     `json:"id" gorm:"primaryKey;size:32"`
	Number              string     `json:"number" gorm:"size:32;not null;uniqueIndex"`
	Title               string     `json:"title" gorm:"size:200;not null"`
	Description         string     `json:"description" gorm:"type:text"`
	Reason              string     `json:"reason" gorm:"type:text"`
	Priority            string     `json:"priority" gorm:"size:16;not null;default:medium"`
	Status              string     `json:"status" gorm:"size:16;not null;default:draft;index"`
	RequesterID         string     `json:"requester_id" gorm:"size:32;not null;index"`
	ReviewerID          string     `json:"reviewer_id" gorm:"size:32"`
	DecidedAt           *time.Time `json:"decided_at"`
	ImplementationNotes string     `json:"implementation_notes" gorm:"type:text"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	// 关联
	Requester     *User             `json:"requester,omitempty" gorm:"foreignKey:RequesterID"`
	Reviewer      *User             `json:"reviewer,omitempty" gorm:"foreignKey:ReviewerID"`
	AffectedItems []ChangeOrderItem `json:"affected_items,omitempty" gorm:"foreignKey:ChangeOrderID"`
}

func (ChangeOrder) TableName() string {
	return "change_orders"
}

// ChangeOrderItem 变更单的受影响物料（零件或装配体）
type ChangeOrderItem struct {
	ID            string    `json:"id" gorm:"primaryKey;size:32"`
	ChangeOrderID string    `json:"change_order_id" gorm:"size:32;not null;index"`
	ItemType      string    `json:"item_type" gorm:"size:16;not null"` // part / assembly
	ItemID        string    `json:"item_id" gorm:"size:32;not null;index"`
	Note          string    `json:"note" gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at"`
}

func (ChangeOrderItem) TableName() string {
	return "change_order_items"
}
