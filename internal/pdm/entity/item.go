package entity

import "time"

// 物料类型
const (
	ItemTypePart     = "part"
	ItemTypeAssembly = "assembly"
)

// 重要度
const (
	CriticalityNormal   = "normal"
	CriticalityLow      = "low"
	CriticalityHigh     = "high"
	CriticalityCritical = "critical"
)

// 生命周期状态（业务标签，与版本冻结状态相互独立，系统不自动联动）
const (
	LifecycleDraft    = "draft"
	LifecycleActive   = "active"
	LifecycleReleased = "released"
	LifecycleObsolete = "obsolete"
)

// Criticalities 重要度合法值
var Criticalities = []string{CriticalityNormal, CriticalityLow, CriticalityHigh, CriticalityCritical}

// LifecycleStates 生命周期合法值
var LifecycleStates = []string{LifecycleDraft, LifecycleActive, LifecycleReleased, LifecycleObsolete}

// ValidCriticality 校验重要度枚举
func ValidCriticality(v string) bool {
	for _, c := range Criticalities {
		if v == c {
			return true
		}
	}
	return false
}

// ValidLifecycleState 校验生命周期枚举
func ValidLifecycleState(v string) bool {
	for _, s := range LifecycleStates {
		if v == s {
			return true
		}
	}
	return false
}

// Part 零件主记录
type Part struct {
	ID             string    `json:"id" gorm:"primaryKey;size:32"`
	Code           string    `json:"code" gorm:"size:50;not null;uniqueIndex"`
	Name           string    `json:"name" gorm:"size:200;not null"`
	Description    string    `json:"description" gorm:"size:2000"`
	Material       string    `json:"material" gorm:"size:128"`
	Vendor         string    `json:"vendor" gorm:"size:128"`
	Tags           string    `json:"tags" gorm:"size:512"`
	Criticality    string    `json:"criticality" gorm:"size:16;not null;default:normal"`
	LifecycleState string    `json:"lifecycle_state" gorm:"size:16;not null;default:draft"`
	OwnerID        string    `json:"owner_id" gorm:"size:32;not null;index"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// 关联
	Owner    *User         `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Versions []PartVersion `json:"versions,omitempty" gorm:"foreignKey:PartID"`
}

func (Part) TableName() string {
	return "parts"
}

// Assembly 装配体主记录
type Assembly struct {
	ID             string    `json:"id" gorm:"primaryKey;size:32"`
	Code           string    `json:"code" gorm:"size:50;not null;uniqueIndex"`
	Name           string    `json:"name" gorm:"size:200;not null"`
	Description    string    `json:"description" gorm:"size:2000"`
	Tags           string    `json:"tags" gorm:"size:512"`
	Criticality    string    `json:"criticality" gorm:"size:16;not null;default:normal"`
	LifecycleState string    `json:"lifecycle_state" gorm:"size:16;not null;default:draft"`
	OwnerID        string    `json:"owner_id" gorm:"size:32;not null;index"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// 关联
	Owner    *User             `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Versions []AssemblyVersion `json:"versions,omitempty" gorm:"foreignKey:AssemblyID"`
}

func (Assembly) TableName() string {
	return "assemblies"
}
