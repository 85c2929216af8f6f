package generation

import (
	"context"
	"errors"
	"time"

	"comicforge-api/pkg/logger"
	"comicforge-api/pkg/metrics"
)

// ErrNoProviders 回退链为空或没有任何可解析的提供商
var ErrNoProviders = errors.New("no image providers configured")

// AttemptObserver 在单个提供商失败、切换到下一个之前被调用
type AttemptObserver func(profile ProviderProfile, err error)

// FallbackResult 成功命中的提供商与产物
type FallbackResult struct {
	Result   *ProviderResult
	Profile  ProviderProfile
	Duration time.Duration
}

// FallbackExecutor 按固定顺序逐个尝试提供商，每个恰好一次。
// 任一成功立即返回；全部失败时抛出最后一个错误。
type FallbackExecutor struct {
	registry       ProviderRegistry
	profiles       []ProviderProfile
	attemptTimeout time.Duration
	observer       AttemptObserver
}

// NewFallbackExecutor 构造回退执行器，profiles 的顺序即尝试顺序
func NewFallbackExecutor(registry ProviderRegistry, profiles []ProviderProfile, attemptTimeout time.Duration, observer AttemptObserver) *FallbackExecutor {
	return &FallbackExecutor{
		registry:       registry,
		profiles:       profiles,
		attemptTimeout: attemptTimeout,
		observer:       observer,
	}
}

// Generate 执行回退链。Model/Width/Height 由各候选配置覆盖
func (e *FallbackExecutor) Generate(ctx context.Context, req *ProviderRequest) (*FallbackResult, error) {
	var lastErr error
	attempted := false

	for _, profile := range e.profiles {
		provider, ok := e.registry.Get(profile.Name)
		if !ok {
			logger.Warn(ctx, "image provider not registered, skipping", "provider", profile.Name)
			continue
		}
		attempted = true

		attempt := *req
		attempt.Model = profile.Model
		if profile.Width > 0 {
			attempt.Width = profile.Width
		}
		if profile.Height > 0 {
			attempt.Height = profile.Height
		}

		result, elapsed, err := e.attempt(ctx, provider, &attempt)
		if err == nil {
			metrics.ProviderCallTotal.WithLabelValues(profile.Name, profile.Model, "success").Inc()
			metrics.ProviderCallDuration.WithLabelValues(profile.Name, profile.Model).Observe(elapsed.Seconds())
			return &FallbackResult{Result: result, Profile: profile, Duration: elapsed}, nil
		}

		metrics.ProviderCallTotal.WithLabelValues(profile.Name, profile.Model, "error").Inc()
		metrics.ProviderFallbackTotal.WithLabelValues(profile.Name).Inc()
		logger.Warn(ctx, "image provider failed, falling back",
			"provider", profile.Name,
			"model", profile.Model,
			"error", err.Error())
		if e.observer != nil {
			e.observer(profile, err)
		}
		lastErr = err

		// 外层上下文已结束时继续尝试没有意义
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}

	if !attempted {
		return nil, ErrNoProviders
	}
	return nil, lastErr
}

func (e *FallbackExecutor) attempt(ctx context.Context, provider ImageProvider, req *ProviderRequest) (*ProviderResult, time.Duration, error) {
	attemptCtx := ctx
	if e.attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.attemptTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := provider.Generate(attemptCtx, req)
	return result, time.Since(start), err
}
