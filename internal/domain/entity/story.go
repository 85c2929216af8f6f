// Package entity 定义领域实体
package entity

import (
	"time"
)

// StoryStatus 故事状态
type StoryStatus string

const (
	// StoryStatusGenerating 首页仍在生成中，故事尚不可见
	StoryStatusGenerating StoryStatus = "generating"
	// StoryStatusActive 至少有一页生成成功
	StoryStatusActive StoryStatus = "active"
)

// Story 漫画故事实体
type Story struct {
	ID        string      `json:"id"`
	OwnerID   string      `json:"owner_id"`
	Title     string      `json:"title"`
	Prompt    string      `json:"prompt"`
	Style     string      `json:"style"`
	Status    StoryStatus `json:"status"`
	PageCount int         `json:"page_count"`
	CoverURL  string      `json:"cover_url,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
