//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"comicforge-api/internal/application/generation"
	"comicforge-api/internal/application/story"
	"comicforge-api/internal/config"
	"comicforge-api/internal/domain/repository"
	"comicforge-api/internal/infrastructure/messaging"
	"comicforge-api/internal/infrastructure/persistence/postgres"
	"comicforge-api/internal/infrastructure/persistence/redis"
	"comicforge-api/internal/infrastructure/storage"
	"comicforge-api/internal/interfaces/http/handler"
	"comicforge-api/internal/interfaces/http/middleware"
	"comicforge-api/internal/interfaces/http/router"
)

// InitializePostgresOnly 仅初始化 PostgreSQL 数据层（用于 bootstrap）
func InitializePostgresOnly(ctx context.Context, cfg *config.Config) (*PostgresOnlyDataLayer, func(), error) {
	wire.Build(
		PostgresSet,
		wire.Struct(new(PostgresOnlyDataLayer), "*"),
	)
	return nil, nil, nil
}

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		GenerationSet,
		RouterSet,
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewUserRepository,
	postgres.NewStoryRepository,
	postgres.NewPageRepository,
	postgres.NewUsageEventRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	// 接口绑定
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.UserRepository), new(*postgres.UserRepository)),
	wire.Bind(new(repository.StoryRepository), new(*postgres.StoryRepository)),
	wire.Bind(new(repository.PageRepository), new(*postgres.PageRepository)),
	wire.Bind(new(repository.UsageEventRepository), new(*postgres.UsageEventRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	ProvideQuotaLedger,
	ProvideLeaseStore,
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
	wire.Bind(new(generation.QuotaLedger), new(*redis.QuotaLedger)),
	wire.Bind(new(generation.LeaseStore), new(*redis.LeaseStore)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	wire.Bind(new(generation.UsagePublisher), new(*messaging.Producer)),
)

// GenerationSet 生成管线提供者集合（提供商、回退执行器、对象存储、编排器）
var GenerationSet = wire.NewSet(
	ProvideImageRegistry,
	ProvideFallbackExecutor,
	ProvideR2Uploader,
	ProvideOrchestrator,
	wire.Bind(new(generation.Uploader), new(*storage.R2Uploader)),
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideJWTManager,
	ProvideAuthService,
	story.NewService,
	handler.NewHealthHandler,
	handler.NewAuthHandler,
	handler.NewStoryHandler,
	handler.NewGenerationHandler,
	handler.NewQuotaHandler,
	wire.Bind(new(handler.Generator), new(*generation.Orchestrator)),
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)
