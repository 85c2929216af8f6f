package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"comicforge-api/internal/domain/entity"
	"comicforge-api/internal/domain/repository"
)

// PageRepository 漫画页仓储实现
type PageRepository struct {
	client *Client
}

// NewPageRepository 创建漫画页仓储
func NewPageRepository(client *Client) *PageRepository {
	return &PageRepository{client: client}
}

// Create 创建页
func (r *PageRepository) Create(ctx context.Context, page *entity.Page) error {
	ctx, span := tracer.Start(ctx, "postgres.PageRepository.Create")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		INSERT INTO pages (id, story_id, owner_id, seq, prompt, style, image_url,
			provider, model, width, height, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING created_at
	`

	err := q.QueryRowContext(ctx, query,
		page.ID, page.StoryID, page.OwnerID, page.Seq, page.Prompt, page.Style,
		page.ImageURL, page.Provider, page.Model, page.Width, page.Height, page.DurationMs,
	).Scan(&page.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create page: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取页
func (r *PageRepository) GetByID(ctx context.Context, id string) (*entity.Page, error) {
	ctx, span := tracer.Start(ctx, "postgres.PageRepository.GetByID")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		SELECT id, story_id, owner_id, seq, prompt, style, image_url,
			provider, model, width, height, duration_ms, created_at
		FROM pages
		WHERE id = $1
	`

	var page entity.Page
	err := q.QueryRowContext(ctx, query, id).Scan(
		&page.ID, &page.StoryID, &page.OwnerID, &page.Seq, &page.Prompt, &page.Style,
		&page.ImageURL, &page.Provider, &page.Model, &page.Width, &page.Height,
		&page.DurationMs, &page.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	return &page, nil
}

// ListByStory 获取故事的页列表（按 seq 升序）
func (r *PageRepository) ListByStory(ctx context.Context, storyID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Page], error) {
	ctx, span := tracer.Start(ctx, "postgres.PageRepository.ListByStory")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	var total int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages WHERE story_id = $1`, storyID).Scan(&total); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}

	query := `
		SELECT id, story_id, owner_id, seq, prompt, style, image_url,
			provider, model, width, height, duration_ms, created_at
		FROM pages
		WHERE story_id = $1
		ORDER BY seq ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := q.QueryContext(ctx, query, storyID, pagination.Limit(), pagination.Offset())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	pages := make([]*entity.Page, 0, pagination.Limit())
	for rows.Next() {
		var page entity.Page
		if err := rows.Scan(
			&page.ID, &page.StoryID, &page.OwnerID, &page.Seq, &page.Prompt, &page.Style,
			&page.ImageURL, &page.Provider, &page.Model, &page.Width, &page.Height,
			&page.DurationMs, &page.CreatedAt,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, &page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pages: %w", err)
	}

	return repository.NewPagedResult(pages, total, pagination), nil
}

// NextSeq 获取故事的下一个页序号。
// 依赖外层事务串住并发续写，否则可能撞 (story_id, seq) 唯一约束
func (r *PageRepository) NextSeq(ctx context.Context, storyID string) (int, error) {
	ctx, span := tracer.Start(ctx, "postgres.PageRepository.NextSeq")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	var next int
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM pages WHERE story_id = $1`, storyID).Scan(&next); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get next seq: %w", err)
	}
	return next, nil
}

// Delete 删除页
func (r *PageRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.PageRepository.Delete")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	if _, err := q.ExecContext(ctx, `DELETE FROM pages WHERE id = $1`, id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete page: %w", err)
	}
	return nil
}
