// Package storage 提供生成图片的对象存储转存
package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"comicforge-api/internal/application/generation"
	"comicforge-api/internal/config"
)

var tracer = otel.Tracer("storage")

// R2Uploader 把提供商的临时图片 URL 转存到 Cloudflare R2
type R2Uploader struct {
	client     *minio.Client
	bucket     string
	publicURL  string
	httpClient *http.Client
}

var _ generation.Uploader = (*R2Uploader)(nil)

// NewR2Uploader 创建 R2 上传器（S3 兼容接口）
func NewR2Uploader(cfg *config.R2Config) (*R2Uploader, error) {
	endpoint := fmt.Sprintf("%s.r2.cloudflarestorage.com", cfg.AccountID)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: true,
		Region: "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create r2 client: %w", err)
	}

	return &R2Uploader{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// Upload 拉取临时图片并写入 R2，返回持久公开地址。
// 提供商的临时地址通常在几分钟内失效，必须在响应前完成转存
func (u *R2Uploader) Upload(ctx context.Context, sourceURL, objectName string) (string, error) {
	ctx, span := tracer.Start(ctx, "storage.Upload")
	span.SetAttributes(
		attribute.String("storage.bucket", u.bucket),
		attribute.String("storage.object", objectName),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build fetch request: %w", err)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to fetch source image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch source image: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}

	_, err = u.client.PutObject(ctx, u.bucket, objectName, resp.Body, resp.ContentLength,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to put object: %w", err)
	}

	return u.publicURL + "/" + objectName, nil
}
