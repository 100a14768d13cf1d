package handler

import (
	"strconv"

	"github.com/bitfantasy/vega/internal/apperr"
	"github.com/bitfantasy/vega/internal/pdm/service"
	"github.com/gin-gonic/gin"
)

// Handlers 处理器集合
type Handlers struct {
	Auth         *AuthHandler
	Part         *PartHandler
	Assembly     *AssemblyHandler
	Workflow     *WorkflowHandler
	ChangeOrder  *ChangeOrderHandler
	Project      *ProjectHandler
	Notification *NotificationHandler
	Search       *SearchHandler
	Upload       *UploadHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Auth:         NewAuthHandler(svc.Auth),
		Part:         NewPartHandler(svc.Part, svc.Version, svc.Export),
		Assembly:     NewAssemblyHandler(svc.Assembly, svc.Version, svc.Export),
		Workflow:     NewWorkflowHandler(svc.Workflow),
		ChangeOrder:  NewChangeOrderHandler(svc.ChangeOrder),
		Project:      NewProjectHandler(svc.Project),
		Notification: NewNotificationHandler(svc.Notification),
		Search:       NewSearchHandler(svc.Search),
		Upload:       NewUploadHandler(svc.Upload),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// Forbidden 禁止访问响应
func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// Conflict 业务冲突响应
func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// Fail 将 service 层错误翻译成 HTTP 响应
func Fail(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindInvalid:
		BadRequest(c, err.Error())
	case apperr.KindNotFound:
		NotFound(c, err.Error())
	case apperr.KindConflict:
		Conflict(c, err.Error())
	case apperr.KindForbidden:
		Forbidden(c, err.Error())
	default:
		InternalError(c, "服务器内部错误")
	}
}

// GetActor 从上下文获取已认证调用者
func GetActor(c *gin.Context) service.Actor {
	return service.Actor{
		UserID: c.GetString("user_id"),
		Role:   c.GetString("role"),
	}
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}
