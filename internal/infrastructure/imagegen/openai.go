// Package imagegen 提供图像生成提供商适配器。
// 所有后端走 OpenAI 兼容的 images/generations 接口。
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"comicforge-api/internal/application/generation"
	"comicforge-api/internal/config"
)

// OpenAIProvider OpenAI 兼容图像生成后端
type OpenAIProvider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ generation.ImageProvider = (*OpenAIProvider)(nil)

// NewOpenAIProvider 创建 OpenAI 兼容提供商
func NewOpenAIProvider(name string, cfg config.ProviderConfig) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		name:    name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name 提供商名称
func (p *OpenAIProvider) Name() string { return p.name }

type apiRequest struct {
	Model           string   `json:"model"`
	Prompt          string   `json:"prompt"`
	N               int      `json:"n"`
	Size            string   `json:"size,omitempty"`
	ResponseFormat  string   `json:"response_format"`
	ReferenceImages []string `json:"reference_images,omitempty"`
}

type apiResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Generate 调用 images/generations 生成一张图
func (p *OpenAIProvider) Generate(ctx context.Context, req *generation.ProviderRequest) (*generation.ProviderResult, error) {
	body, err := json.Marshal(apiRequest{
		Model:           req.Model,
		Prompt:          composePrompt(req),
		N:               1,
		Size:            imageSize(req),
		ResponseFormat:  "url",
		ReferenceImages: req.ReferenceAssets,
	})
	if err != nil {
		return nil, fmt.Errorf("imagegen: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("imagegen: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &generation.ProviderCallError{
			Provider: p.name,
			Kind:     generation.ProviderErrOther,
			Message:  err.Error(),
		}
	}
	defer httpResp.Body.Close()

	if err := p.mapHTTPError(httpResp); err != nil {
		return nil, err
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("imagegen: decode response: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, fmt.Errorf("imagegen: empty image data in response")
	}

	return &generation.ProviderResult{ImageURL: resp.Data[0].URL}, nil
}

// mapHTTPError 把上游 HTTP 失败归类为 ProviderCallError
func (p *OpenAIProvider) mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	resp.Body.Close()

	message := string(body)
	var parsed apiError
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}

	return &generation.ProviderCallError{
		Provider:   p.name,
		StatusCode: resp.StatusCode,
		Kind:       classify(resp.StatusCode, message, parsed.Error.Type, parsed.Error.Code),
		Message:    message,
	}
}

func classify(status int, message, errType, errCode string) generation.ProviderErrorKind {
	lower := strings.ToLower(message + " " + errType + " " + errCode)

	switch {
	case strings.Contains(lower, "content_policy"),
		strings.Contains(lower, "content policy"),
		strings.Contains(lower, "safety system"),
		strings.Contains(lower, "moderation"):
		return generation.ProviderErrContentPolicy
	case status == http.StatusPaymentRequired,
		strings.Contains(lower, "insufficient_quota"),
		strings.Contains(lower, "billing"),
		strings.Contains(lower, "credit"):
		return generation.ProviderErrCreditLimit
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return generation.ProviderErrInvalidInput
	default:
		return generation.ProviderErrOther
	}
}

func composePrompt(req *generation.ProviderRequest) string {
	if req.Style == "" {
		return req.Prompt
	}
	return fmt.Sprintf("%s, %s style comic panel", req.Prompt, req.Style)
}

func imageSize(req *generation.ProviderRequest) string {
	if req.Width <= 0 || req.Height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", req.Width, req.Height)
}
