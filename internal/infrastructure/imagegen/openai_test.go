package imagegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comicforge-api/internal/application/generation"
	"comicforge-api/internal/config"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAIProvider("test", config.ProviderConfig{
		APIKey:  "sk-test",
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	})
}

func TestOpenAIProvider_Generate(t *testing.T) {
	var captured apiRequest
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"url": "https://tmp.example/img.png"}},
		})
	})

	result, err := provider.Generate(context.Background(), &generation.ProviderRequest{
		Prompt: "a raccoon opens a noodle shop",
		Style:  "manga",
		Model:  "flux-pro",
		Width:  1024,
		Height: 768,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://tmp.example/img.png", result.ImageURL)

	assert.Equal(t, "flux-pro", captured.Model)
	assert.Equal(t, 1, captured.N)
	assert.Equal(t, "1024x768", captured.Size)
	assert.Contains(t, captured.Prompt, "manga style")
}

func TestOpenAIProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind generation.ProviderErrorKind
	}{
		{
			name:     "content policy",
			status:   http.StatusBadRequest,
			body:     `{"error":{"message":"Your request was rejected by our safety system","type":"invalid_request_error"}}`,
			wantKind: generation.ProviderErrContentPolicy,
		},
		{
			name:     "invalid input",
			status:   http.StatusBadRequest,
			body:     `{"error":{"message":"Invalid size parameter","type":"invalid_request_error"}}`,
			wantKind: generation.ProviderErrInvalidInput,
		},
		{
			name:     "credit exhausted by status",
			status:   http.StatusPaymentRequired,
			body:     `{"error":{"message":"Payment required"}}`,
			wantKind: generation.ProviderErrCreditLimit,
		},
		{
			name:     "credit exhausted by code",
			status:   http.StatusTooManyRequests,
			body:     `{"error":{"message":"You exceeded your current quota","code":"insufficient_quota"}}`,
			wantKind: generation.ProviderErrCreditLimit,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `{"error":{"message":"The server had an error"}}`,
			wantKind: generation.ProviderErrOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := provider.Generate(context.Background(), &generation.ProviderRequest{Prompt: "p"})
			require.Error(t, err)

			provErr, ok := err.(*generation.ProviderCallError)
			require.True(t, ok, "expected ProviderCallError, got %T", err)
			assert.Equal(t, tt.wantKind, provErr.Kind)
			assert.Equal(t, tt.status, provErr.StatusCode)
			assert.Equal(t, "test", provErr.Provider)
		})
	}
}

func TestOpenAIProvider_EmptyData(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[]}`))
	})

	_, err := provider.Generate(context.Background(), &generation.ProviderRequest{Prompt: "p"})
	assert.Error(t, err)
}

func TestRegistry_ProfilesFollowFallbackChain(t *testing.T) {
	cfg := &config.ImageGenConfig{
		Providers: map[string]config.ProviderConfig{
			"flux": {Model: "flux-pro", Width: 1024, Height: 1024},
			"sdxl": {Model: "sdxl-turbo", Width: 768, Height: 768},
		},
		FallbackChain: []string{"flux", "ghost", "sdxl"},
	}

	profiles := Profiles(cfg)
	require.Len(t, profiles, 2, "链中未配置的提供商被跳过")
	assert.Equal(t, "flux", profiles[0].Name)
	assert.Equal(t, "flux-pro", profiles[0].Model)
	assert.Equal(t, "sdxl", profiles[1].Name)

	registry := NewRegistry(cfg)
	_, ok := registry.Get("flux")
	assert.True(t, ok)
	_, ok = registry.Get("ghost")
	assert.False(t, ok)
}
