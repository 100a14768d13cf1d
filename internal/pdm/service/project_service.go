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
)

// ProjectService 项目与任务服务
type ProjectService struct {
	projectRepo *repository.ProjectRepository
	logRepo     *repository.ActivityLogRepository
	notifyRepo  *repository.NotificationRepository
}

func NewProjectService(repos *repository.Repositories) *ProjectService {
	return &ProjectService{
		projectRepo: repos.Project,
		logRepo:     repos.ActivityLog,
		notifyRepo:  repos.Notification,
	}
}

// CreateProjectInput 创建项目入参
type CreateProjectInput struct {
	Code        string `json:"code" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	ManagerID   string `json:"manager_id"`
}

// UpdateProjectInput 更新项目入参
type UpdateProjectInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	ManagerID   *string `json:"manager_id"`
}

// CreateTaskInput 创建任务入参
type CreateTaskInput struct {
	Title      string     `json:"title" binding:"required"`
	Detail     string     `json:"detail"`
	AssigneeID string     `json:"assignee_id"`
	DueDate    *time.Time `json:"due_date"`
}

// UpdateTaskInput 更新任务入参
type UpdateTaskInput struct {
	Title      *string    `json:"title"`
	Detail     *string    `json:"detail"`
	Status     *string    `json:"status"`
	AssigneeID *string    `json:"assignee_id"`
	DueDate    *time.Time `json:"due_date"`
}

// CreateProject 创建项目
func (s *ProjectService) CreateProject(ctx context.Context, input *CreateProjectInput, actor Actor) (*entity.Project, error) {
	if strings.TrimSpace(input.Code) == "" || strings.TrimSpace(input.Name) == "" {
		return nil, apperr.Invalid("项目编码和名称不能为空")
	}

	exists, err := s.projectRepo.ExistsByCode(ctx, input.Code)
	if err != nil {
		return nil, apperr.Internal("查询项目编码失败", err)
	}
	if exists {
		return nil, apperr.Conflict("项目编码 %s 已存在", input.Code)
	}

	now := time.Now()
	managerID := input.ManagerID
	if managerID == "" {
		managerID = actor.UserID
	}
	project := &entity.Project{
		ID:          repository.NewID(),
		Code:        input.Code,
		Name:        input.Name,
		Description: input.Description,
		Status:      "active",
		ManagerID:   managerID,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.projectRepo.Create(ctx, project); err != nil {
		return nil, apperr.Internal("创建项目失败", err)
	}

	s.logRepo.LogActivity(ctx, "project", project.ID, project.Code, "create", "", project.Status,
		fmt.Sprintf("创建项目 %s（%s）", project.Name, project.Code), actor.UserID)
	return project, nil
}

// GetProject 项目详情（含任务）
func (s *ProjectService) GetProject(ctx context.Context, id string) (*entity.Project, error) {
	project, err := s.projectRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("项目不存在")
	}
	if err != nil {
		return nil, apperr.Internal("查询项目失败", err)
	}
	return project, nil
}

// UpdateProject 更新项目（patch 语义）
func (s *ProjectService) UpdateProject(ctx context.Context, id string, input *UpdateProjectInput, actor Actor) (*entity.Project, error) {
	project, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, apperr.Invalid("项目名称不能为空")
		}
		project.Name = *input.Name
	}
	if input.Description != nil {
		project.Description = *input.Description
	}
	if input.Status != nil {
		project.Status = *input.Status
	}
	if input.ManagerID != nil {
		project.ManagerID = *input.ManagerID
	}
	project.UpdatedAt = time.Now()

	if err := s.projectRepo.Update(ctx, project); err != nil {
		return nil, apperr.Internal("更新项目失败", err)
	}
	return project, nil
}

// DeleteProject 删除项目及其任务
func (s *ProjectService) DeleteProject(ctx context.Context, id string, actor Actor) error {
	if actor.Role != entity.RoleAdmin {
		return apperr.Forbidden("只有管理员可以删除项目")
	}
	project, err := s.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if err := s.projectRepo.Delete(ctx, id); err != nil {
		return apperr.Internal("删除项目失败", err)
	}
	s.logRepo.LogActivity(ctx, "project", project.ID, project.Code, "delete", project.Status, "",
		fmt.Sprintf("删除项目 %s（%s）", project.Name, project.Code), actor.UserID)
	return nil
}

// ListProjects 项目列表
func (s *ProjectService) ListProjects(ctx context.Context, status string) ([]entity.Project, error) {
	projects, err := s.projectRepo.List(ctx, status)
	if err != nil {
		return nil, apperr.Internal("查询项目列表失败", err)
	}
	return projects, nil
}

// ==================== 任务 ====================

// CreateTask 在项目下创建任务
func (s *ProjectService) CreateTask(ctx context.Context, projectID string, input *CreateTaskInput, actor Actor) (*entity.Task, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperr.Invalid("任务标题不能为空")
	}

	now := time.Now()
	task := &entity.Task{
		ID:         repository.NewID(),
		ProjectID:  projectID,
		Title:      input.Title,
		Detail:     input.Detail,
		Status:     entity.TaskStatusTodo,
		AssigneeID: input.AssigneeID,
		DueDate:    input.DueDate,
		CreatedBy:  actor.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.projectRepo.CreateTask(ctx, task); err != nil {
		return nil, apperr.Internal("创建任务失败", err)
	}

	s.notifyRepo.Notify(ctx, task.AssigneeID, "新任务指派",
		fmt.Sprintf("任务「%s」已指派给您", task.Title), "task", task.ID)
	return task, nil
}

// UpdateTask 更新任务（patch 语义）
func (s *ProjectService) UpdateTask(ctx context.Context, projectID, taskID string, input *UpdateTaskInput, actor Actor) (*entity.Task, error) {
	task, err := s.projectRepo.FindTask(ctx, projectID, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("任务不存在")
	}
	if err != nil {
		return nil, apperr.Internal("查询任务失败", err)
	}

	if input.Status != nil {
		switch *input.Status {
		case entity.TaskStatusTodo, entity.TaskStatusDoing, entity.TaskStatusDone:
		default:
			return nil, apperr.Invalid("status 必须为 todo/doing/done 之一")
		}
		task.Status = *input.Status
	}
	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, apperr.Invalid("任务标题不能为空")
		}
		task.Title = *input.Title
	}
	if input.Detail != nil {
		task.Detail = *input.Detail
	}
	if input.AssigneeID != nil {
		task.AssigneeID = *input.AssigneeID
	}
	if input.DueDate != nil {
		task.DueDate = input.DueDate
	}
	task.UpdatedAt = time.Now()

	if err := s.projectRepo.UpdateTask(ctx, task); err != nil {
		return nil, apperr.Internal("更新任务失败", err)
	}
	return task, nil
}

// DeleteTask 删除任务
func (s *ProjectService) DeleteTask(ctx context.Context, projectID, taskID string) error {
	err := s.projectRepo.DeleteTask(ctx, projectID, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("任务不存在")
	}
	if err != nil {
		return apperr.Internal("删除任务失败", err)
	}
	return nil
}
