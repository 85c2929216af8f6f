package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers) {
	// 认证管理
	auth := v1.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
	}

	// 故事与生成
	stories := v1.Group("/stories")
	{
		stories.GET("", h.Story.List)
		stories.POST("/generate", h.Generation.GenerateStory)
		stories.GET("/:sid", h.Story.Get)
		stories.DELETE("/:sid", h.Story.Delete)
		stories.GET("/:sid/pages", h.Story.ListPages)
		stories.POST("/:sid/pages/generate", h.Generation.GeneratePage)
	}

	v1.GET("/pages/:pid", h.Story.GetPage)

	// 余量与用量
	v1.GET("/credits", h.Quota.Credits)
	v1.GET("/usage", h.Quota.Usage)
}
