package entity

import "time"

// 版本状态：working → frozen，单向，冻结后不可再变
const (
	VersionStatusWorking = "working"
	VersionStatusFrozen  = "frozen"
)

// PartVersion 零件版本快照
type PartVersion struct {
	ID           string     `json:"id" gorm:"primaryKey;size:32"`
	PartID       string     `json:"part_id" gorm:"size:32;not null;index;uniqueIndex:uk_part_version_label,priority:1"`
	VersionLabel string     `json:"version_label" gorm:"size:16;not null;uniqueIndex:uk_part_version_label,priority:2"`
	Status       string     `json:"status" gorm:"size:16;not null;default:working"`
	WorkingPath  string     `json:"working_path" gorm:"size:512"`
	StoragePath  string     `json:"storage_path" gorm:"size:512"`
	ChangeNotes  string     `json:"change_notes" gorm:"type:text"`
	FrozenBy     string     `json:"frozen_by" gorm:"size:32"`
	FrozenAt     *time.Time `json:"frozen_at"`
	CreatedAt    time.Time  `json:"created_at"`

	// 关联
	Part    *Part `json:"part,omitempty" gorm:"foreignKey:PartID"`
	Freezer *User `json:"freezer,omitempty" gorm:"foreignKey:FrozenBy"`
}

func (PartVersion) TableName() string {
	return "part_versions"
}

// AssemblyVersion 装配体版本快照
type AssemblyVersion struct {
	ID           string     `json:"id" gorm:"primaryKey;size:32"`
	AssemblyID   string     `json:"assembly_id" gorm:"size:32;not null;index;uniqueIndex:uk_assembly_version_label,priority:1"`
	VersionLabel string     `json:"version_label" gorm:"size:16;not null;uniqueIndex:uk_assembly_version_label,priority:2"`
	Status       string     `json:"status" gorm:"size:16;not null;default:working"`
	WorkingPath  string     `json:"working_path" gorm:"size:512"`
	StoragePath  string     `json:"storage_path" gorm:"size:512"`
	ChangeNotes  string     `json:"change_notes" gorm:"type:text"`
	FrozenBy     string     `json:"frozen_by" gorm:"size:32"`
	FrozenAt     *time.Time `json:"frozen_at"`
	CreatedAt    time.Time  `json:"created_at"`

	// 关联
	Assembly *Assembly      `json:"assembly,omitempty" gorm:"foreignKey:AssemblyID"`
	Freezer  *User          `json:"freezer,omitempty" gorm:"foreignKey:FrozenBy"`
	Edges    []AssemblyPart `json:"edges,omitempty" gorm:"foreignKey:AssemblyVersionID"`
}

func (AssemblyVersion) TableName() string {
	return "assembly_versions"
}

// AssemblyPart 装配体版本 → 冻结零件版本 的组成边
type AssemblyPart struct {
	ID                string    `json:"id" gorm:"primaryKey;size:32"`
	AssemblyVersionID string    `json:"assembly_version_id" gorm:"size:32;not null;index;uniqueIndex:uk_assembly_part_edge,priority:1"`
	PartVersionID     string    `json:"part_version_id" gorm:"size:32;not null;index;uniqueIndex:uk_assembly_part_edge,priority:2"`
	CreatedAt         time.Time `json:"created_at"`

	// 关联
	PartVersion *PartVersion `json:"part_version,omitempty" gorm:"foreignKey:PartVersionID"`
}

func (AssemblyPart) TableName() string {
	return "assembly_parts"
}

// BOMLine 装配体版本物料清单行（联查产物，非表）
type BOMLine struct {
	PartID       string `json:"part_id"`
	PartCode     string `json:"part_code"`
	PartName     string `json:"part_name"`
	Material     string `json:"material"`
	Vendor       string `json:"vendor"`
	VersionID    string `json:"version_id"`
	VersionLabel string `json:"version_label"`
	Status       string `json:"status"`
}

// ImpactLine 零件反查装配体结果行（联查产物，非表）
type ImpactLine struct {
	AssemblyID        string `json:"assembly_id"`
	AssemblyCode      string `json:"assembly_code"`
	AssemblyName      string `json:"assembly_name"`
	AssemblyVersionID string `json:"assembly_version_id"`
	VersionLabel      string `json:"version_label"`
	PartVersionID     string `json:"part_version_id"`
	PartVersionLabel  string `json:"part_version_label"`
}
