package handler

import (
	"github.com/bitfantasy/vega/internal/pdm/service"
	"github.com/gin-gonic/gin"
)

// AuthHandler 认证与用户
type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Login 用户名密码登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var input service.LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	pair, err := h.svc.Login(c.Request.Context(), &input)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, pair)
}

// Refresh 刷新令牌
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var input struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	pair, err := h.svc.Refresh(c.Request.Context(), input.RefreshToken)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, pair)
}

// Logout 登出（作废刷新令牌）
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), GetActor(c).UserID); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// Register 管理员创建用户
// POST /api/v1/users
func (h *AuthHandler) Register(c *gin.Context) {
	var input service.RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	user, err := h.svc.Register(c.Request.Context(), &input, GetActor(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, user)
}

// Profile 当前用户信息
// GET /api/v1/auth/profile
func (h *AuthHandler) Profile(c *gin.Context) {
	user, err := h.svc.GetProfile(c.Request.Context(), GetActor(c).UserID)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, user)
}

// ListUsers 用户列表
// GET /api/v1/users?q=xxx
func (h *AuthHandler) ListUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context(), c.Query("q"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": users})
}
