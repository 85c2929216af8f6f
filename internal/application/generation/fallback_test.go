package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name   string
	result *ProviderResult
	err    error
	calls  int
	seen   []*ProviderRequest
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Generate(_ context.Context, req *ProviderRequest) (*ProviderResult, error) {
	p.calls++
	cp := *req
	p.seen = append(p.seen, &cp)
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

type stubRegistry map[string]ImageProvider

func (r stubRegistry) Get(name string) (ImageProvider, bool) {
	p, ok := r[name]
	return p, ok
}

func TestFallbackExecutor_FirstProviderWins(t *testing.T) {
	primary := &stubProvider{name: "flux", result: &ProviderResult{ImageURL: "https://tmp/flux.png"}}
	backup := &stubProvider{name: "sdxl", result: &ProviderResult{ImageURL: "https://tmp/sdxl.png"}}
	registry := stubRegistry{"flux": primary, "sdxl": backup}

	exec := NewFallbackExecutor(registry, []ProviderProfile{
		{Name: "flux", Model: "flux-pro", Width: 1024, Height: 1024},
		{Name: "sdxl", Model: "sdxl-turbo"},
	}, time.Second, nil)

	result, err := exec.Generate(context.Background(), &ProviderRequest{Prompt: "a cat detective"})
	require.NoError(t, err)
	assert.Equal(t, "https://tmp/flux.png", result.Result.ImageURL)
	assert.Equal(t, "flux", result.Profile.Name)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, backup.calls, "后续候选不应被触碰")

	// 候选配置覆盖模型与尺寸
	require.Len(t, primary.seen, 1)
	assert.Equal(t, "flux-pro", primary.seen[0].Model)
	assert.Equal(t, 1024, primary.seen[0].Width)
}

func TestFallbackExecutor_FallsThroughOnFailure(t *testing.T) {
	primaryErr := &ProviderCallError{Provider: "flux", StatusCode: 500, Kind: ProviderErrOther, Message: "boom"}
	primary := &stubProvider{name: "flux", err: primaryErr}
	backup := &stubProvider{name: "sdxl", result: &ProviderResult{ImageURL: "https://tmp/sdxl.png"}}
	registry := stubRegistry{"flux": primary, "sdxl": backup}

	var observed []ProviderProfile
	exec := NewFallbackExecutor(registry, []ProviderProfile{
		{Name: "flux", Model: "flux-pro"},
		{Name: "sdxl", Model: "sdxl-turbo"},
	}, time.Second, func(profile ProviderProfile, err error) {
		observed = append(observed, profile)
		assert.ErrorIs(t, err, primaryErr)
	})

	result, err := exec.Generate(context.Background(), &ProviderRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "sdxl", result.Profile.Name)
	assert.Equal(t, 1, primary.calls, "每个候选最多尝试一次")
	assert.Equal(t, 1, backup.calls)
	require.Len(t, observed, 1)
	assert.Equal(t, "flux", observed[0].Name)
}

func TestFallbackExecutor_AllFailReturnsLastError(t *testing.T) {
	firstErr := &ProviderCallError{Provider: "flux", StatusCode: 503, Kind: ProviderErrOther, Message: "overloaded"}
	lastErr := &ProviderCallError{Provider: "sdxl", StatusCode: 429, Kind: ProviderErrOther, Message: "rate limited"}
	registry := stubRegistry{
		"flux": &stubProvider{name: "flux", err: firstErr},
		"sdxl": &stubProvider{name: "sdxl", err: lastErr},
	}

	exec := NewFallbackExecutor(registry, []ProviderProfile{
		{Name: "flux"}, {Name: "sdxl"},
	}, time.Second, nil)

	_, err := exec.Generate(context.Background(), &ProviderRequest{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, lastErr)
}

func TestFallbackExecutor_EmptyChain(t *testing.T) {
	exec := NewFallbackExecutor(stubRegistry{}, nil, time.Second, nil)

	_, err := exec.Generate(context.Background(), &ProviderRequest{Prompt: "p"})
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestFallbackExecutor_UnknownProviderSkipped(t *testing.T) {
	backup := &stubProvider{name: "sdxl", result: &ProviderResult{ImageURL: "https://tmp/sdxl.png"}}
	exec := NewFallbackExecutor(stubRegistry{"sdxl": backup}, []ProviderProfile{
		{Name: "missing"}, {Name: "sdxl"},
	}, time.Second, nil)

	result, err := exec.Generate(context.Background(), &ProviderRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "sdxl", result.Profile.Name)
}

func TestFallbackExecutor_OnlyUnknownProviders(t *testing.T) {
	exec := NewFallbackExecutor(stubRegistry{}, []ProviderProfile{{Name: "ghost"}}, time.Second, nil)

	_, err := exec.Generate(context.Background(), &ProviderRequest{Prompt: "p"})
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestFallbackExecutor_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &stubProvider{name: "flux"}
	primary.err = errors.New("canceled mid flight")
	backup := &stubProvider{name: "sdxl", result: &ProviderResult{ImageURL: "u"}}
	exec := NewFallbackExecutor(stubRegistry{"flux": primary, "sdxl": backup}, []ProviderProfile{
		{Name: "flux"}, {Name: "sdxl"},
	}, time.Second, nil)

	cancel()
	_, err := exec.Generate(ctx, &ProviderRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, 0, backup.calls, "上下文结束后不再尝试后续候选")
}
