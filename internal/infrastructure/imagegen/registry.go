package imagegen

import (
	"comicforge-api/internal/application/generation"
	"comicforge-api/internal/config"
)

// Registry 按名称持有已配置的提供商实例
type Registry struct {
	providers map[string]generation.ImageProvider
}

var _ generation.ProviderRegistry = (*Registry)(nil)

// NewRegistry 根据配置构建提供商注册表
func NewRegistry(cfg *config.ImageGenConfig) *Registry {
	providers := make(map[string]generation.ImageProvider, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		providers[name] = NewOpenAIProvider(name, pc)
	}
	return &Registry{providers: providers}
}

// Get 按名称解析提供商
func (r *Registry) Get(name string) (generation.ImageProvider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Profiles 按回退链顺序展开候选配置。
// 链里引用了未配置的提供商时跳过该项，由执行器再兜底
func Profiles(cfg *config.ImageGenConfig) []generation.ProviderProfile {
	profiles := make([]generation.ProviderProfile, 0, len(cfg.FallbackChain))
	for _, name := range cfg.FallbackChain {
		pc, ok := cfg.Providers[name]
		if !ok {
			continue
		}
		profiles = append(profiles, generation.ProviderProfile{
			Name:   name,
			Model:  pc.Model,
			Width:  pc.Width,
			Height: pc.Height,
		})
	}
	return profiles
}
