package handler

import (
	"github.com/gin-gonic/gin"

	"comicforge-api/internal/application/story"
	"comicforge-api/internal/interfaces/http/dto"
)

// StoryHandler 故事查询处理器
type StoryHandler struct {
	service *story.Service
}

// NewStoryHandler 创建故事查询处理器
func NewStoryHandler(service *story.Service) *StoryHandler {
	return &StoryHandler{service: service}
}

// List 用户故事列表
func (h *StoryHandler) List(c *gin.Context) {
	userID := c.GetString("user_id")
	pagination := bindPagination(c)

	result, err := h.service.ListStories(c.Request.Context(), userID, pagination)
	if err != nil {
		respondError(c, err)
		return
	}

	dto.SuccessWithPage(c, result.Items, pageMeta(result))
}

// Get 故事详情
func (h *StoryHandler) Get(c *gin.Context) {
	userID := c.GetString("user_id")
	storyID := c.Param("sid")

	s, err := h.service.GetStory(c.Request.Context(), userID, storyID)
	if err != nil {
		respondError(c, err)
		return
	}

	dto.Success(c, s)
}

// Delete 删除故事及其所有页
func (h *StoryHandler) Delete(c *gin.Context) {
	userID := c.GetString("user_id")
	storyID := c.Param("sid")

	if err := h.service.DeleteStory(c.Request.Context(), userID, storyID); err != nil {
		respondError(c, err)
		return
	}

	dto.NoContent(c)
}

// GetPage 单页详情
func (h *StoryHandler) GetPage(c *gin.Context) {
	userID := c.GetString("user_id")
	pageID := c.Param("pid")

	p, err := h.service.GetPage(c.Request.Context(), userID, pageID)
	if err != nil {
		respondError(c, err)
		return
	}

	dto.Success(c, p)
}

// ListPages 故事的页列表
func (h *StoryHandler) ListPages(c *gin.Context) {
	userID := c.GetString("user_id")
	storyID := c.Param("sid")
	pagination := bindPagination(c)

	result, err := h.service.ListPages(c.Request.Context(), userID, storyID, pagination)
	if err != nil {
		respondError(c, err)
		return
	}

	dto.SuccessWithPage(c, result.Items, pageMeta(result))
}
