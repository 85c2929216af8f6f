// Package main 系统初始化工具：建表并创建首个管理员
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"comicforge-api/internal/config"
	"comicforge-api/internal/domain/entity"
	"comicforge-api/internal/wire"
)

// schema 建表语句，可重复执行
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		name          TEXT NOT NULL,
		avatar_url    TEXT,
		role          TEXT NOT NULL DEFAULT 'creator',
		last_login_at TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS stories (
		id         UUID PRIMARY KEY,
		owner_id   UUID NOT NULL REFERENCES users(id),
		title      TEXT NOT NULL,
		prompt     TEXT NOT NULL,
		style      TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'generating',
		cover_url  TEXT,
		page_count INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stories_owner ON stories(owner_id, status, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS pages (
		id          UUID PRIMARY KEY,
		story_id    UUID NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
		owner_id    UUID NOT NULL REFERENCES users(id),
		seq         INT NOT NULL,
		prompt      TEXT NOT NULL,
		style       TEXT NOT NULL,
		image_url   TEXT NOT NULL,
		provider    TEXT NOT NULL,
		model       TEXT NOT NULL,
		width       INT NOT NULL DEFAULT 0,
		height      INT NOT NULL DEFAULT 0,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (story_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS usage_events (
		id          UUID PRIMARY KEY,
		user_id     UUID NOT NULL REFERENCES users(id),
		story_id    UUID NOT NULL,
		page_id     UUID NOT NULL,
		scope       TEXT NOT NULL,
		provider    TEXT NOT NULL,
		model       TEXT NOT NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_events_user ON usage_events(user_id, created_at DESC)`,
}

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. 初始化数据层（仅 PostgreSQL）
	dataLayer, cleanup, err := wire.InitializePostgresOnly(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize data layer: %v", err)
	}
	defer cleanup()

	// 3. 建表
	for _, stmt := range schema {
		if _, err := dataLayer.PgClient.DB().ExecContext(ctx, stmt); err != nil {
			log.Fatalf("failed to apply schema: %v", err)
		}
	}
	fmt.Println("Schema applied.")

	// 4. 创建首个管理员
	adminEmail := os.Getenv("BOOTSTRAP_ADMIN_EMAIL")
	if adminEmail == "" {
		adminEmail = "admin@comicforge.dev"
	}
	adminPassword := os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "admin123" // 生产环境请务必通过环境变量设置
	}

	existing, err := dataLayer.UserRepo.GetByEmail(ctx, adminEmail)
	if err != nil {
		log.Fatalf("failed to check admin existence: %v", err)
	}

	if existing == nil {
		fmt.Printf("Creating admin user: %s...\n", adminEmail)
		admin := &entity.User{
			ID:    uuid.NewString(),
			Email: adminEmail,
			Name:  "System Admin",
			Role:  entity.UserRoleAdmin,
		}
		if err := admin.SetPassword(adminPassword); err != nil {
			log.Fatalf("failed to hash admin password: %v", err)
		}

		if err := dataLayer.UserRepo.Create(ctx, admin); err != nil {
			log.Fatalf("failed to create admin user: %v", err)
		}
		fmt.Println("Admin user created successfully.")
	} else {
		fmt.Printf("Admin user %s already exists.\n", adminEmail)
	}

	fmt.Println("Bootstrap completed successfully.")
}
