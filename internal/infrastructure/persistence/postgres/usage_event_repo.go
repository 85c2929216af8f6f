package postgres

import (
	"context"
	"fmt"

	"comicforge-api/internal/domain/entity"
	"comicforge-api/internal/domain/repository"
)

// UsageEventRepository 计量事件仓储实现
type UsageEventRepository struct {
	client *Client
}

// NewUsageEventRepository 创建计量事件仓储
func NewUsageEventRepository(client *Client) *UsageEventRepository {
	return &UsageEventRepository{client: client}
}

// Create 记录一条计量事件
func (r *UsageEventRepository) Create(ctx context.Context, event *entity.UsageEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.UsageEventRepository.Create")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	query := `
		INSERT INTO usage_events (id, user_id, story_id, page_id, scope, provider, model, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`

	err := q.QueryRowContext(ctx, query,
		event.ID, event.UserID, event.StoryID, event.PageID, event.Scope,
		event.Provider, event.Model, event.DurationMs,
	).Scan(&event.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create usage event: %w", err)
	}
	return nil
}

// ListByUser 获取用户最近的计量事件（按时间倒序）
func (r *UsageEventRepository) ListByUser(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.UsageEvent], error) {
	ctx, span := tracer.Start(ctx, "postgres.UsageEventRepository.ListByUser")
	defer span.End()

	q := getQuerier(ctx, r.client.db)

	var total int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage_events WHERE user_id = $1`, userID).Scan(&total); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count usage events: %w", err)
	}

	query := `
		SELECT id, user_id, story_id, page_id, scope, provider, model, duration_ms, created_at
		FROM usage_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := q.QueryContext(ctx, query, userID, pagination.Limit(), pagination.Offset())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list usage events: %w", err)
	}
	defer rows.Close()

	events := make([]*entity.UsageEvent, 0, pagination.Limit())
	for rows.Next() {
		var event entity.UsageEvent
		if err := rows.Scan(
			&event.ID, &event.UserID, &event.StoryID, &event.PageID, &event.Scope,
			&event.Provider, &event.Model, &event.DurationMs, &event.CreatedAt,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan usage event: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage events: %w", err)
	}

	return repository.NewPagedResult(events, total, pagination), nil
}
