package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"comicforge-api/internal/domain/entity"
	"comicforge-api/internal/domain/repository"
)

// StoryRepository 故事仓储实现
type StoryRepository struct {
	client *Client
}

// NewStoryRepository 创建故事仓储
func NewStoryRepository(client *Client) *StoryRepository {
	return &StoryRepository{client: client}
}

// Create 创建故事
func (r *StoryRepository) Create(ctx context.Context, story *entity.Story) error {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.Create")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		INSERT INTO stories (id, owner_id, title, prompt, style, status, page_count, cover_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := q.QueryRowContext(ctx, query,
		story.ID, story.OwnerID, story.Title, story.Prompt, story.Style,
		story.Status, story.PageCount, nullString(story.CoverURL),
	).Scan(&story.CreatedAt, &story.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create story: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取故事
func (r *StoryRepository) GetByID(ctx context.Context, id string) (*entity.Story, error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.GetByID")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		SELECT id, owner_id, title, prompt, style, status, page_count, cover_url, created_at, updated_at
		FROM stories
		WHERE id = $1
	`

	var story entity.Story
	var coverURL sql.NullString

	err := q.QueryRowContext(ctx, query, id).Scan(
		&story.ID, &story.OwnerID, &story.Title, &story.Prompt, &story.Style,
		&story.Status, &story.PageCount, &coverURL, &story.CreatedAt, &story.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get story: %w", err)
	}

	story.CoverURL = coverURL.String
	return &story, nil
}

// ListByOwner 获取用户故事列表（按创建时间倒序，不含生成中的空壳）
func (r *StoryRepository) ListByOwner(ctx context.Context, ownerID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Story], error) {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.ListByOwner")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	var total int64
	countQuery := `SELECT COUNT(*) FROM stories WHERE owner_id = $1 AND status = $2`
	if err := q.QueryRowContext(ctx, countQuery, ownerID, entity.StoryStatusActive).Scan(&total); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count stories: %w", err)
	}

	query := `
		SELECT id, owner_id, title, prompt, style, status, page_count, cover_url, created_at, updated_at
		FROM stories
		WHERE owner_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := q.QueryContext(ctx, query, ownerID, entity.StoryStatusActive, pagination.Limit(), pagination.Offset())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	stories := make([]*entity.Story, 0, pagination.Limit())
	for rows.Next() {
		var story entity.Story
		var coverURL sql.NullString
		if err := rows.Scan(
			&story.ID, &story.OwnerID, &story.Title, &story.Prompt, &story.Style,
			&story.Status, &story.PageCount, &coverURL, &story.CreatedAt, &story.UpdatedAt,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		story.CoverURL = coverURL.String
		stories = append(stories, &story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stories: %w", err)
	}

	return repository.NewPagedResult(stories, total, pagination), nil
}

// Activate 将故事置为 active，并写入封面与页数
func (r *StoryRepository) Activate(ctx context.Context, id string, coverURL string, pageCount int) error {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.Activate")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		UPDATE stories
		SET status = $2, cover_url = $3, page_count = $4, updated_at = NOW()
		WHERE id = $1
	`

	result, err := q.ExecContext(ctx, query, id, entity.StoryStatusActive, coverURL, pageCount)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to activate story: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IncrementPageCount 页数 +1
func (r *StoryRepository) IncrementPageCount(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.IncrementPageCount")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `UPDATE stories SET page_count = page_count + 1, updated_at = NOW() WHERE id = $1`

	result, err := q.ExecContext(ctx, query, id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to increment page count: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete 删除故事（页由外键级联删除）
func (r *StoryRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.StoryRepository.Delete")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	if _, err := q.ExecContext(ctx, `DELETE FROM stories WHERE id = $1`, id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete story: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
