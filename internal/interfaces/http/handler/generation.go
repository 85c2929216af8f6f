package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"comicforge-api/internal/application/generation"
	"comicforge-api/internal/interfaces/http/dto"
)

// IdempotencyKeyHeader 幂等键请求头
const IdempotencyKeyHeader = "Idempotency-Key"

// Generator 生成编排入口
type Generator interface {
	Generate(ctx context.Context, req *generation.Request) (*generation.Outcome, error)
}

// GenerationHandler 生成编排处理器
type GenerationHandler struct {
	orchestrator Generator
}

// NewGenerationHandler 创建生成编排处理器
func NewGenerationHandler(orchestrator Generator) *GenerationHandler {
	return &GenerationHandler{orchestrator: orchestrator}
}

// GenerateStory 新建故事并生成首页
func (h *GenerationHandler) GenerateStory(c *gin.Context) {
	var req dto.GenerateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	h.generate(c, &generation.Request{
		Scope:           generation.ScopeNewStory,
		UserID:          c.GetString("user_id"),
		IdempotencyKey:  c.GetHeader(IdempotencyKeyHeader),
		Prompt:          req.Prompt,
		Title:           req.Title,
		Style:           req.Style,
		ReferenceAssets: req.ReferenceAssets,
	})
}

// GeneratePage 为已有故事生成下一页
func (h *GenerationHandler) GeneratePage(c *gin.Context) {
	var req dto.GeneratePageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	h.generate(c, &generation.Request{
		Scope:           generation.ScopeContinueStory,
		UserID:          c.GetString("user_id"),
		IdempotencyKey:  c.GetHeader(IdempotencyKeyHeader),
		StoryID:         c.Param("sid"),
		Prompt:          req.Prompt,
		Style:           req.Style,
		ReferenceAssets: req.ReferenceAssets,
	})
}

// generate 调用编排器并原样写回结果。
// 响应体由编排器给出，重放时与首次响应逐字节一致
func (h *GenerationHandler) generate(c *gin.Context, req *generation.Request) {
	outcome, err := h.orchestrator.Generate(c.Request.Context(), req)
	if err != nil {
		dto.AppError(c, generation.MapError(err))
		return
	}

	if outcome.Replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	c.Data(outcome.Status, "application/json; charset=utf-8", outcome.Body)
}
