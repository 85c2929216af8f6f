// Package entity 定义领域实体
package entity

import (
	"time"
)

// UsageEvent 生成计量事件，成功生成一页记一条
type UsageEvent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	StoryID    string    `json:"story_id"`
	PageID     string    `json:"page_id"`
	Scope      string    `json:"scope"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
