// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"comicforge-api/internal/application/auth"
	"comicforge-api/internal/application/generation"
	"comicforge-api/internal/config"
	"comicforge-api/internal/domain/repository"
	"comicforge-api/internal/infrastructure/imagegen"
	"comicforge-api/internal/infrastructure/messaging"
	"comicforge-api/internal/infrastructure/persistence/postgres"
	"comicforge-api/internal/infrastructure/persistence/redis"
	"comicforge-api/internal/infrastructure/storage"
	"comicforge-api/pkg/logger"
	"comicforge-api/pkg/utils"
)

// PostgresOnlyDataLayer 仅包含 PostgreSQL 的数据层（用于 bootstrap）
type PostgresOnlyDataLayer struct {
	PgClient  *postgres.Client
	TxManager *postgres.TxManager
	UserRepo  *postgres.UserRepository
	StoryRepo *postgres.StoryRepository
	PageRepo  *postgres.PageRepository
	UsageRepo *postgres.UsageEventRepository
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideQuotaLedger 提供配额账本
func ProvideQuotaLedger(client *redis.Client, cfg *config.Config) *redis.QuotaLedger {
	return redis.NewQuotaLedger(client, &cfg.Generation)
}

// ProvideLeaseStore 提供幂等租约存储
func ProvideLeaseStore(client *redis.Client, cfg *config.Config) *redis.LeaseStore {
	return redis.NewLeaseStore(client, &cfg.Generation.Lease)
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideImageRegistry 提供图像生成提供商注册表
func ProvideImageRegistry(cfg *config.Config) *imagegen.Registry {
	return imagegen.NewRegistry(&cfg.ImageGen)
}

// ProvideFallbackExecutor 提供带回退链的生成执行器
func ProvideFallbackExecutor(registry *imagegen.Registry, cfg *config.Config) *generation.FallbackExecutor {
	observer := func(profile generation.ProviderProfile, err error) {
		logger.Warn(context.Background(), "provider attempt failed, falling through",
			"provider", profile.Name,
			"model", profile.Model,
			"error", err.Error(),
		)
	}
	return generation.NewFallbackExecutor(registry, imagegen.Profiles(&cfg.ImageGen), cfg.ImageGen.AttemptTimeout, observer)
}

// ProvideR2Uploader 提供 R2 对象存储上传器
func ProvideR2Uploader(cfg *config.Config) (*storage.R2Uploader, error) {
	return storage.NewR2Uploader(&cfg.Storage.R2)
}

// ProvideJWTManager 提供 JWT 管理器
func ProvideJWTManager(cfg *config.Config) *utils.JWTManager {
	return utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer)
}

// ProvideAuthService 提供认证服务
func ProvideAuthService(users repository.UserRepository, jwt *utils.JWTManager, cfg *config.Config) *auth.Service {
	return auth.NewService(users, jwt, &cfg.Security.JWT)
}

// ProvideOrchestrator 提供生成编排器
func ProvideOrchestrator(
	quota generation.QuotaLedger,
	leases generation.LeaseStore,
	executor *generation.FallbackExecutor,
	uploader generation.Uploader,
	stories repository.StoryRepository,
	pages repository.PageRepository,
	usage repository.UsageEventRepository,
	tx repository.Transactor,
	publisher generation.UsagePublisher,
	cfg *config.Config,
) *generation.Orchestrator {
	return generation.NewOrchestrator(quota, leases, executor, uploader, stories, pages, usage, tx, publisher, cfg.ImageGen.DefaultStyle)
}
