package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"comicforge-api/internal/application/generation"
	"comicforge-api/internal/config"
)

// 租约获取：completed 返回缓存响应，locked 报冲突，否则上锁。
// 返回 {state, status, body}
var acquireScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state == 'completed' then
	return {'replay', redis.call('HGET', KEYS[1], 'status'), redis.call('HGET', KEYS[1], 'body')}
end
if state == 'locked' then
	return {'in_progress', '', ''}
end
redis.call('HSET', KEYS[1], 'state', 'locked', 'token', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return {'acquired', '', ''}
`)

// 租约完成：仅当前持有者可以写入最终响应并延长保留期
var completeScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'token') ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'state', 'completed', 'status', ARGV[2], 'body', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// 租约释放：仅当前持有者可以删除，让同 key 重试立即可行
var releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'token') ~= ARGV[1] then
	return 0
end
return redis.call('DEL', KEYS[1])
`)

// LeaseStore 基于 Redis hash 的幂等租约存储。
// key 为 (scope, user, idempotency key) 的摘要，token 为持有者凭证；
// 锁过期被他人重占后，旧持有者的 Complete/Release 静默失效。
type LeaseStore struct {
	client *Client
	cfg    *config.LeaseConfig
}

// NewLeaseStore 创建租约存储
func NewLeaseStore(client *Client, cfg *config.LeaseConfig) *LeaseStore {
	return &LeaseStore{client: client, cfg: cfg}
}

// leaseKey 摘要避免把用户原始幂等键直接落进 keyspace
func leaseKey(scope generation.Scope, userID, idempotencyKey string) string {
	sum := sha256.Sum256([]byte(string(scope) + "|" + userID + "|" + idempotencyKey))
	return hex.EncodeToString(sum[:])
}

// Acquire 获取或查询租约
func (s *LeaseStore) Acquire(ctx context.Context, scope generation.Scope, userID, idempotencyKey string) (*generation.Acquire, error) {
	ctx, span := tracer.Start(ctx, "lease.Acquire")
	span.SetAttributes(attribute.String("lease.scope", string(scope)))
	defer span.End()

	key := leaseKey(scope, userID, idempotencyKey)
	// token 自带 key，Complete/Release 无需回传三元组
	token := key + "." + uuid.NewString()

	vals, err := acquireScript.Run(ctx, s.client.rdb, []string{"lease:" + key},
		token, s.cfg.LockTTL.Milliseconds()).StringSlice()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("lease acquire: %w", err)
	}

	span.SetAttributes(attribute.String("lease.state", vals[0]))
	switch vals[0] {
	case "replay":
		status, err := strconv.Atoi(vals[1])
		if err != nil {
			return nil, fmt.Errorf("lease acquire: corrupt cached status %q", vals[1])
		}
		return &generation.Acquire{
			State:  generation.AcquireReplay,
			Status: status,
			Body:   []byte(vals[2]),
		}, nil
	case "in_progress":
		return &generation.Acquire{State: generation.AcquireInProgress}, nil
	default:
		return &generation.Acquire{State: generation.AcquireAcquired, Token: token}, nil
	}
}

// Complete 把租约置为已完成并缓存最终响应
func (s *LeaseStore) Complete(ctx context.Context, token string, status int, body []byte) error {
	ctx, span := tracer.Start(ctx, "lease.Complete")
	defer span.End()

	key, err := tokenKey(token)
	if err != nil {
		return err
	}
	if err := completeScript.Run(ctx, s.client.rdb, []string{"lease:" + key},
		token, status, body, s.cfg.CompletedTTL.Milliseconds()).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("lease complete: %w", err)
	}
	return nil
}

// Release 删除仍由本持有者持有的租约
func (s *LeaseStore) Release(ctx context.Context, token string) error {
	ctx, span := tracer.Start(ctx, "lease.Release")
	defer span.End()

	key, err := tokenKey(token)
	if err != nil {
		return err
	}
	if err := releaseScript.Run(ctx, s.client.rdb, []string{"lease:" + key}, token).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("lease release: %w", err)
	}
	return nil
}

func tokenKey(token string) (string, error) {
	key, _, ok := strings.Cut(token, ".")
	if !ok || key == "" {
		return "", fmt.Errorf("malformed lease token")
	}
	return key, nil
}
