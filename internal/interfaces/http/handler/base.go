package handler

import (
	"github.com/gin-gonic/gin"

	"comicforge-api/internal/application/generation"
	"comicforge-api/internal/domain/repository"
	"comicforge-api/internal/interfaces/http/dto"
)

// respondError 把任意错误归一后写成统一错误响应
func respondError(c *gin.Context, err error) {
	dto.AppError(c, generation.MapError(err))
}

// bindPagination 解析分页查询参数
func bindPagination(c *gin.Context) repository.Pagination {
	var query dto.ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		return repository.NewPagination(1, 20)
	}
	return repository.NewPagination(query.Page, query.PageSize)
}

// pageMeta 把分页结果转为响应元数据
func pageMeta[T any](result *repository.PagedResult[T]) *dto.PageMeta {
	return &dto.PageMeta{
		Page:       result.Page,
		PageSize:   result.PageSize,
		Total:      int(result.Total),
		TotalPages: result.TotalPages,
	}
}
