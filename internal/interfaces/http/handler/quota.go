package handler

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"comicforge-api/internal/application/generation"
	"comicforge-api/internal/application/story"
	"comicforge-api/internal/infrastructure/persistence/redis"
	"comicforge-api/internal/interfaces/http/dto"
)

// QuotaHandler 余量与用量查询处理器
type QuotaHandler struct {
	ledger generation.QuotaLedger
	cache  *redis.Cache
	story  *story.Service
}

// NewQuotaHandler 创建余量查询处理器
func NewQuotaHandler(ledger generation.QuotaLedger, cache *redis.Cache, storyService *story.Service) *QuotaHandler {
	return &QuotaHandler{ledger: ledger, cache: cache, story: storyService}
}

// Credits 查询当前周配额余量。
// 结果短缓存即可，余量展示不要求精确到单次调用
func (h *QuotaHandler) Credits(c *gin.Context) {
	userID := c.GetString("user_id")

	raw, err := h.cache.GetOrLoad(c.Request.Context(), "credits:"+userID, 5*time.Second, func() (interface{}, error) {
		status, err := h.ledger.Peek(c.Request.Context(), userID)
		if err != nil {
			return nil, err
		}
		resp := dto.CreditsResponse{
			Limit:     status.Limit,
			Remaining: status.Remaining,
		}
		if !status.ResetAt.IsZero() {
			resp.ResetAt = status.ResetAt.Format(time.RFC3339)
		}
		return resp, nil
	})
	if err != nil {
		respondError(c, err)
		return
	}

	var resp dto.CreditsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, resp)
}

// Usage 查询最近的计量事件
func (h *QuotaHandler) Usage(c *gin.Context) {
	userID := c.GetString("user_id")
	pagination := bindPagination(c)

	result, err := h.story.ListUsage(c.Request.Context(), userID, pagination)
	if err != nil {
		respondError(c, err)
		return
	}

	dto.SuccessWithPage(c, result.Items, pageMeta(result))
}
