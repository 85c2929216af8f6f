package dto

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Name     string `json:"name" binding:"required,max=64"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest 刷新令牌请求
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenResponse 令牌响应
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// GenerateStoryRequest 新建故事并生成首页
type GenerateStoryRequest struct {
	Prompt          string   `json:"prompt" binding:"required,max=2000"`
	Title           string   `json:"title" binding:"max=128"`
	Style           string   `json:"style" binding:"max=64"`
	ReferenceAssets []string `json:"reference_assets" binding:"max=4,dive,url"`
}

// GeneratePageRequest 为已有故事生成下一页
type GeneratePageRequest struct {
	Prompt          string   `json:"prompt" binding:"required,max=2000"`
	Style           string   `json:"style" binding:"max=64"`
	ReferenceAssets []string `json:"reference_assets" binding:"max=4,dive,url"`
}

// ListQuery 分页查询参数
type ListQuery struct {
	Page     int `form:"page,default=1" binding:"min=1"`
	PageSize int `form:"page_size,default=20" binding:"min=1,max=100"`
}

// CreditsResponse 余量响应
type CreditsResponse struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"reset_at,omitempty"`
}
