package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/vega/internal/apperr"
	"github.com/bitfantasy/vega/internal/config"
	"github.com/bitfantasy/vega/internal/middleware"
	"github.com/bitfantasy/vega/internal/pdm/entity"
	"github.com/bitfantasy/vega/internal/pdm/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// AuthService 本地账号认证：bcrypt 校验 + JWT 双令牌。
// refresh token 的 jti 存 redis，登出即失效。
type AuthService struct {
	userRepo *repository.UserRepository
	rdb      *redis.Client
	cfg      config.JWTConfig
}

func NewAuthService(userRepo *repository.UserRepository, rdb *redis.Client, cfg config.JWTConfig) *AuthService {
	return &AuthService{userRepo: userRepo, rdb: rdb, cfg: cfg}
}

// LoginInput 登录入参
type LoginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenPair 登录/刷新返回的令牌对
type TokenPair struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	User         *entity.User `json:"user"`
}

// RegisterInput 管理员创建用户入参
type RegisterInput struct {
	Username string `json:"username" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

func refreshKey(userID, jti string) string {
	return fmt.Sprintf("vega:refresh:%s:%s", userID, jti)
}

// Login 用户名密码登录
func (s *AuthService) Login(ctx context.Context, input *LoginInput) (*TokenPair, error) {
	user, err := s.userRepo.FindByUsername(ctx, input.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Invalid("用户名或密码错误")
	}
	if err != nil {
		return nil, apperr.Internal("查询用户失败", err)
	}
	if user.Status != "active" {
		return nil, apperr.Forbidden("账号已被禁用")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, apperr.Invalid("用户名或密码错误")
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, apperr.Internal("更新登录时间失败", err)
	}
	return pair, nil
}

// issueTokens 签发 access/refresh 令牌对，refresh 的 jti 登记到 redis
func (s *AuthService) issueTokens(ctx context.Context, user *entity.User) (*TokenPair, error) {
	now := time.Now()

	accessClaims := middleware.JWTClaims{
		UserID:   user.ID,
		Username: user.Username,
		Name:     user.Name,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenExpire)),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return nil, apperr.Internal("签发访问令牌失败", err)
	}

	jti := uuid.New().String()
	refreshClaims := jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   user.ID,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTokenExpire)),
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return nil, apperr.Internal("签发刷新令牌失败", err)
	}

	if err := s.rdb.Set(ctx, refreshKey(user.ID, jti), "1", s.cfg.RefreshTokenExpire).Err(); err != nil {
		return nil, apperr.Internal("登记刷新令牌失败", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.cfg.AccessTokenExpire.Seconds()),
		User:         user,
	}, nil
}

// Refresh 用刷新令牌换取新的令牌对（旧 jti 作废，单次使用）
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(refreshToken, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.Forbidden("刷新令牌无效或已过期")
	}

	key := refreshKey(claims.Subject, claims.ID)
	n, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return nil, apperr.Internal("校验刷新令牌失败", err)
	}
	if n == 0 {
		return nil, apperr.Forbidden("刷新令牌已失效")
	}

	user, err := s.userRepo.FindByID(ctx, claims.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Forbidden("用户不存在")
	}
	if err != nil {
		return nil, apperr.Internal("查询用户失败", err)
	}
	return s.issueTokens(ctx, user)
}

// Logout 作废用户的全部刷新令牌
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	iter := s.rdb.Scan(ctx, 0, refreshKey(userID, "*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return apperr.Internal("清理刷新令牌失败", err)
	}
	if len(keys) > 0 {
		if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
			return apperr.Internal("清理刷新令牌失败", err)
		}
	}
	return nil
}

// Register 管理员创建用户
func (s *AuthService) Register(ctx context.Context, input *RegisterInput, actor Actor) (*entity.User, error) {
	if actor.Role != entity.RoleAdmin {
		return nil, apperr.Forbidden("只有管理员可以创建用户")
	}
	if len(input.Password) < 8 {
		return nil, apperr.Invalid("密码长度不能少于8位")
	}
	role := input.Role
	if role == "" {
		role = entity.RoleDesigner
	}
	if role != entity.RoleAdmin && role != entity.RoleDesigner && role != entity.RoleApprover {
		return nil, apperr.Invalid("role 必须为 %s 之一", strings.Join([]string{entity.RoleAdmin, entity.RoleDesigner, entity.RoleApprover}, "/"))
	}

	if _, err := s.userRepo.FindByUsername(ctx, input.Username); err == nil {
		return nil, apperr.Conflict("用户名 %s 已存在", input.Username)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal("查询用户失败", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal("生成密码哈希失败", err)
	}

	now := time.Now()
	user := &entity.User{
		ID:           repository.NewID(),
		Username:     input.Username,
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: string(hash),
		Role:         role,
		Status:       "active",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, apperr.Internal("创建用户失败", err)
	}
	return user, nil
}

// GetProfile 当前用户信息
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*entity.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("用户不存在")
	}
	if err != nil {
		return nil, apperr.Internal("查询用户失败", err)
	}
	return user, nil
}

// ListUsers 用户列表（审批人选择、授权管理用）
func (s *AuthService) ListUsers(ctx context.Context, q string) ([]entity.User, error) {
	var users []entity.User
	var err error
	if q != "" {
		users, err = s.userRepo.Search(ctx, q)
	} else {
		users, err = s.userRepo.ListAll(ctx)
	}
	if err != nil {
		return nil, apperr.Internal("查询用户列表失败", err)
	}
	return users, nil
}
