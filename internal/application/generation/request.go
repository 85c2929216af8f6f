// Package generation 实现漫画页生成的请求编排：
// 幂等租约去重、配额计量、提供商回退与补偿回滚。
package generation

import (
	"strings"
	"time"

	"comicforge-api/pkg/errors"
)

// Scope 请求的逻辑范围，用于区分新建故事与续写
type Scope string

const (
	// ScopeNewStory 新建故事并生成首页
	ScopeNewStory Scope = "story.new"
	// ScopeContinueStory 为已有故事生成下一页
	ScopeContinueStory Scope = "story.continue"
)

// Request 一次生成调用的全部输入，仅在请求生命周期内存在
type Request struct {
	Scope          Scope
	UserID         string
	IdempotencyKey string

	Prompt          string
	Style           string
	Title           string   // 新建故事时的标题，可为空（取 prompt 截断）
	StoryID         string   // 续写时的目标故事
	ReferenceAssets []string // 参考图 URL，可为空
}

// Validate 在触碰任何共享状态之前拒绝畸形请求
func (r *Request) Validate() error {
	if r.UserID == "" {
		return errors.ErrUnauthorized
	}
	if strings.TrimSpace(r.IdempotencyKey) == "" {
		return errors.ErrIdempotencyKey
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return errors.New(errors.CodeInvalidParam, "prompt is required")
	}
	switch r.Scope {
	case ScopeNewStory:
	case ScopeContinueStory:
		if r.StoryID == "" {
			return errors.New(errors.CodeInvalidParam, "story id is required")
		}
	default:
		return errors.New(errors.CodeInvalidParam, "unknown generation scope")
	}
	return nil
}

// Outcome 编排结果：最终响应的状态码与响应体。
// Replayed 表示命中已完成租约，未执行任何生成工作。
type Outcome struct {
	Status   int
	Body     []byte
	Replayed bool
}

// ResultPayload 成功响应体，经租约缓存后可逐字节重放
type ResultPayload struct {
	StoryID    string    `json:"story_id"`
	PageID     string    `json:"page_id"`
	Seq        int       `json:"seq"`
	ImageURL   string    `json:"image_url"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// LimitPayload 配额/突发限流拒绝响应体（429），携带余量与重置时间
type LimitPayload struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// ConflictPayload 幂等冲突响应体（409）
type ConflictPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
