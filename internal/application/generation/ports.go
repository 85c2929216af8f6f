package generation

import (
	"context"
	"fmt"
	"time"

	"comicforge-api/internal/domain/entity"
)

// QuotaDecision 一次配额判定的结果
type QuotaDecision struct {
	Granted   bool
	Remaining int
	ResetAt   time.Time
}

// QuotaStatus 只读配额快照，不改变任何计数
type QuotaStatus struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// QuotaLedger 周配额与突发限流的原子计量。
// Reserve/Refund 必须成对出现；CheckBurst 记录本次调用且永不回退。
type QuotaLedger interface {
	Reserve(ctx context.Context, userID string) (*QuotaDecision, error)
	Refund(ctx context.Context, userID string) error
	CheckBurst(ctx context.Context, userID string, scope Scope) (*QuotaDecision, error)
	Peek(ctx context.Context, userID string) (*QuotaStatus, error)
}

// AcquireState 租约获取的三种结果
type AcquireState int

const (
	// AcquireAcquired 取得锁，本请求执行生成
	AcquireAcquired AcquireState = iota
	// AcquireInProgress 同 key 的请求仍持有锁
	AcquireInProgress
	// AcquireReplay 同 key 的请求已完成，直接重放缓存响应
	AcquireReplay
)

// Acquire 租约获取结果；Replay 时携带缓存的状态码与响应体
type Acquire struct {
	State  AcquireState
	Token  string
	Status int
	Body   []byte
}

// LeaseStore 幂等租约存储。Token 为持有者凭证，
// Complete/Release 仅在凭证仍匹配时生效（过期重占后静默失效）。
type LeaseStore interface {
	Acquire(ctx context.Context, scope Scope, userID, idempotencyKey string) (*Acquire, error)
	Complete(ctx context.Context, token string, status int, body []byte) error
	Release(ctx context.Context, token string) error
}

// ProviderProfile 回退链中的一个候选配置
type ProviderProfile struct {
	Name   string
	Model  string
	Width  int
	Height int
}

// ProviderRequest 发往图像提供商的生成参数
type ProviderRequest struct {
	Prompt          string
	Style           string
	Model           string
	Width           int
	Height          int
	ReferenceAssets []string
}

// ProviderResult 提供商返回的生成产物，ImageURL 为临时地址
type ProviderResult struct {
	ImageURL string
}

// ImageProvider 单个图像生成后端
type ImageProvider interface {
	Name() string
	Generate(ctx context.Context, req *ProviderRequest) (*ProviderResult, error)
}

// ProviderRegistry 按名称解析提供商实例
type ProviderRegistry interface {
	Get(name string) (ImageProvider, bool)
}

// Uploader 把提供商的临时图片转存为持久地址
type Uploader interface {
	Upload(ctx context.Context, sourceURL, objectName string) (string, error)
}

// UsagePublisher 生成完成后的用量事件投递，尽力而为
type UsagePublisher interface {
	Publish(ctx context.Context, event *entity.UsageEvent) error
}

// ProviderErrorKind 提供商失败的归类，驱动错误映射
type ProviderErrorKind string

const (
	ProviderErrInvalidInput  ProviderErrorKind = "invalid_input"
	ProviderErrContentPolicy ProviderErrorKind = "content_policy"
	ProviderErrCreditLimit   ProviderErrorKind = "credit_limit"
	ProviderErrOther         ProviderErrorKind = "other"
)

// ProviderCallError 携带提供商名称与上游状态码的调用失败
type ProviderCallError struct {
	Provider   string
	StatusCode int
	Kind       ProviderErrorKind
	Message    string
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("provider %s: [%d] %s", e.Provider, e.StatusCode, e.Message)
}
