package handler

import (
	"github.com/gin-gonic/gin"

	"comicforge-api/internal/application/auth"
	"comicforge-api/internal/domain/entity"
	"comicforge-api/internal/interfaces/http/dto"
	"comicforge-api/pkg/utils"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	service *auth.Service
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(service *auth.Service) *AuthHandler {
	return &AuthHandler{service: service}
}

type authResponse struct {
	User  *entity.User      `json:"user"`
	Token dto.TokenResponse `json:"token"`
}

func tokenResponse(pair *utils.TokenPair) dto.TokenResponse {
	return dto.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}
}

// Register 注册
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	user, pair, err := h.service.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	dto.Created(c, authResponse{User: user, Token: tokenResponse(pair)})
}

// Login 登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	user, pair, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	dto.Success(c, authResponse{User: user, Token: tokenResponse(pair)})
}

// Refresh 刷新令牌
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	pair, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}

	dto.Success(c, tokenResponse(pair))
}
