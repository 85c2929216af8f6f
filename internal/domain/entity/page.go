// Package entity 定义领域实体
package entity

import (
	"time"
)

// Page 漫画页实体
type Page struct {
	ID         string    `json:"id"`
	StoryID    string    `json:"story_id"`
	OwnerID    string    `json:"owner_id"`
	Seq        int       `json:"seq"`
	Prompt     string    `json:"prompt"`
	Style      string    `json:"style"`
	ImageURL   string    `json:"image_url"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
