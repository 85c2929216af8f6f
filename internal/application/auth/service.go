// Package auth 实现注册、登录与令牌刷新
package auth

import (
	"context"

	"github.com/google/uuid"

	"comicforge-api/internal/config"
	"comicforge-api/internal/domain/entity"
	"comicforge-api/internal/domain/repository"
	"comicforge-api/pkg/errors"
	"comicforge-api/pkg/logger"
	"comicforge-api/pkg/utils"
)

// Service 认证服务
type Service struct {
	users repository.UserRepository
	jwt   *utils.JWTManager
	cfg   *config.JWTConfig
}

// NewService 创建认证服务
func NewService(users repository.UserRepository, jwt *utils.JWTManager, cfg *config.JWTConfig) *Service {
	return &Service{users: users, jwt: jwt, cfg: cfg}
}

// Register 注册新用户并签发令牌
func (s *Service) Register(ctx context.Context, email, password, name string) (*entity.User, *utils.TokenPair, error) {
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, errors.New(errors.CodeConflict, "email already registered")
	}

	user := &entity.User{
		ID:    uuid.NewString(),
		Email: email,
		Name:  name,
		Role:  entity.UserRoleCreator,
	}
	if err := user.SetPassword(password); err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInternalError, "failed to hash password")
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	pair, err := s.jwt.GenerateTokenPair(user.ID, string(user.Role), s.cfg.Expiration, s.cfg.RefreshExpiration)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInternalError, "failed to issue tokens")
	}

	logger.Info(ctx, "user registered", "user_id", user.ID)
	return user, pair, nil
}

// Login 校验凭证并签发令牌
func (s *Service) Login(ctx context.Context, email, password string) (*entity.User, *utils.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}
	// 不区分账号不存在与密码错误
	if user == nil || !user.CheckPassword(password) {
		return nil, nil, errors.New(errors.CodeUnauthorized, "invalid email or password")
	}

	pair, err := s.jwt.GenerateTokenPair(user.ID, string(user.Role), s.cfg.Expiration, s.cfg.RefreshExpiration)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInternalError, "failed to issue tokens")
	}

	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		logger.Warn(ctx, "failed to record login time", "user_id", user.ID, "error", err.Error())
	}
	return user, pair, nil
}

// Refresh 用刷新令牌换取新令牌对
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*utils.TokenPair, error) {
	claims, err := s.jwt.ParseToken(refreshToken)
	if err != nil {
		if err == utils.ErrExpiredToken {
			return nil, errors.ErrTokenExpired
		}
		return nil, errors.ErrTokenInvalid
	}
	if claims.Type != "refresh" {
		return nil, errors.ErrTokenInvalid
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.ErrUserNotFound
	}

	pair, err := s.jwt.GenerateTokenPair(user.ID, string(user.Role), s.cfg.Expiration, s.cfg.RefreshExpiration)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternalError, "failed to issue tokens")
	}
	return pair, nil
}
