package entity

import "time"

// 任务状态
const (
	TaskStatusTodo  = "todo"
	TaskStatusDoing = "doing"
	TaskStatusDone  = "done"
)

// Project 项目（传统项目跟踪，不与物料生命周期联动）
type Project struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	Code        string    `json:"code" gorm:"size:50;not null;uniqueIndex"`
	Name        string    `json:"name" gorm:"size:200;not null"`
	Description string    `json:"description" gorm:"size:2000"`
	Status      string    `json:"status" gorm:"size:16;not null;default:active"`
	ManagerID   string    `json:"manager_id" gorm:"size:32;index"`
	CreatedBy   string    `json:"created_by" gorm:"size:32"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// 关联
	Manager *User  `json:"manager,omitempty" gorm:"foreignKey:ManagerID"`
	Tasks   []Task `json:"tasks,omitempty" gorm:"foreignKey:ProjectID"`
}

func (Project) TableName() string {
	return "projects"
}

// Task 项目任务
type Task struct {
	ID         string     `json:"id" gorm:"primaryKey;size:32"`
	ProjectID  string     `json:"project_id" gorm:"size:32;not null;index"`
	Title      string     `json:"title" gorm:"size:200;not null"`
	Detail     string     `json:"detail" gorm:"type:text"`
	Status     string     `json:"status" gorm:"size:16;not null;default:todo"`
	AssigneeID string     `json:"assignee_id" gorm:"size:32;index"`
	DueDate    *time.Time `json:"due_date"`
	CreatedBy  string     `json:"created_by" gorm:"size:32"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// 关联
	Assignee *User `json:"assignee,omitempty" gorm:"foreignKey:AssigneeID"`
}

func (Task) TableName() string {
	return "tasks"
}
