package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"comicforge-api/internal/application/generation"
	"comicforge-api/internal/config"
)

// 周配额预留：计数未达上限则 +1，首次使用时锚定固定窗口。
// 返回 {granted, remaining, pttl_ms}
var reserveScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if used >= limit then
	return {0, 0, redis.call('PTTL', KEYS[1])}
end
used = redis.call('INCR', KEYS[1])
if used == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, limit - used, redis.call('PTTL', KEYS[1])}
`)

// 周配额退还：仅在计数存在且大于零时 -1，窗口 TTL 保持不变
var refundScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
if used <= 0 then
	return 0
end
redis.call('DECR', KEYS[1])
return 1
`)

// 突发滑动窗口：无论放行与否都记录本次调用。
// 返回 {granted, remaining, oldest_score_ms}
var burstScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, ARGV[1])
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
local count = redis.call('ZCARD', KEYS[1])
local limit = tonumber(ARGV[5])
if count > limit then
	local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	return {0, 0, oldest[2]}
end
return {1, limit - count, 0}
`)

// QuotaLedger 基于 Redis 的配额计量：
// 周配额是固定窗口计数器（从首次使用锚定），突发限流是滑动窗口 ZSET。
// 存储不可用时直接向调用方报错（fail closed），不放行。
type QuotaLedger struct {
	client *Client
	cfg    *config.GenerationConfig
	now    func() time.Time
}

// NewQuotaLedger 创建配额计量器
func NewQuotaLedger(client *Client, cfg *config.GenerationConfig) *QuotaLedger {
	return &QuotaLedger{client: client, cfg: cfg, now: time.Now}
}

func weeklyKey(userID string) string {
	return "quota:weekly:" + userID
}

func burstKey(userID string, scope generation.Scope) string {
	return fmt.Sprintf("quota:burst:%s:%s", userID, scope)
}

// Reserve 原子预留一次周配额
func (l *QuotaLedger) Reserve(ctx context.Context, userID string) (*generation.QuotaDecision, error) {
	ctx, span := tracer.Start(ctx, "quota.Reserve")
	span.SetAttributes(attribute.String("quota.user_id", userID))
	defer span.End()

	vals, err := reserveScript.Run(ctx, l.client.rdb, []string{weeklyKey(userID)},
		l.cfg.Quota.WeeklyLimit, l.cfg.Quota.Window.Milliseconds()).Int64Slice()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("quota reserve: %w", err)
	}

	dec := &generation.QuotaDecision{
		Granted:   vals[0] == 1,
		Remaining: int(vals[1]),
		ResetAt:   l.resetAt(vals[2]),
	}
	span.SetAttributes(attribute.Bool("quota.granted", dec.Granted))
	return dec, nil
}

// Refund 退还一次预留。计数不存在或已为零时为空操作
func (l *QuotaLedger) Refund(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "quota.Refund")
	span.SetAttributes(attribute.String("quota.user_id", userID))
	defer span.End()

	if err := refundScript.Run(ctx, l.client.rdb, []string{weeklyKey(userID)}).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("quota refund: %w", err)
	}
	return nil
}

// CheckBurst 突发限流判定。本次调用计入窗口且永不回退
func (l *QuotaLedger) CheckBurst(ctx context.Context, userID string, scope generation.Scope) (*generation.QuotaDecision, error) {
	ctx, span := tracer.Start(ctx, "quota.CheckBurst")
	span.SetAttributes(
		attribute.String("quota.user_id", userID),
		attribute.String("quota.scope", string(scope)),
	)
	defer span.End()

	now := l.now()
	nowMs := now.UnixMilli()
	window := l.cfg.Burst.Window
	member := strconv.FormatInt(nowMs, 10) + "-" + strconv.FormatInt(now.UnixNano()%1e6, 10)

	vals, err := burstScript.Run(ctx, l.client.rdb, []string{burstKey(userID, scope)},
		nowMs-window.Milliseconds(), nowMs, member, window.Milliseconds()*2, l.cfg.Burst.Limit).Int64Slice()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("burst check: %w", err)
	}

	dec := &generation.QuotaDecision{
		Granted:   vals[0] == 1,
		Remaining: int(vals[1]),
	}
	if dec.Granted {
		dec.ResetAt = now.Add(window)
	} else {
		// 最早一条记录滑出窗口的时刻
		dec.ResetAt = time.UnixMilli(vals[2]).Add(window)
	}
	span.SetAttributes(attribute.Bool("quota.granted", dec.Granted))
	return dec, nil
}

// Peek 只读配额快照，不消耗任何计数
func (l *QuotaLedger) Peek(ctx context.Context, userID string) (*generation.QuotaStatus, error) {
	ctx, span := tracer.Start(ctx, "quota.Peek")
	span.SetAttributes(attribute.String("quota.user_id", userID))
	defer span.End()

	pipe := l.client.rdb.Pipeline()
	getCmd := pipe.Get(ctx, weeklyKey(userID))
	ttlCmd := pipe.PTTL(ctx, weeklyKey(userID))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		span.RecordError(err)
		return nil, fmt.Errorf("quota peek: %w", err)
	}

	status := &generation.QuotaStatus{
		Limit:     l.cfg.Quota.WeeklyLimit,
		Remaining: l.cfg.Quota.WeeklyLimit,
	}
	if used, err := getCmd.Int(); err == nil {
		status.Remaining = l.cfg.Quota.WeeklyLimit - used
		if status.Remaining < 0 {
			status.Remaining = 0
		}
	}
	if ttl := ttlCmd.Val(); ttl > 0 {
		status.ResetAt = l.now().Add(ttl)
	}
	return status, nil
}

// resetAt 把 PTTL 换算为绝对重置时间；无 TTL 时落回窗口长度
func (l *QuotaLedger) resetAt(pttlMs int64) time.Time {
	if pttlMs <= 0 {
		return l.now().Add(l.cfg.Quota.Window)
	}
	return l.now().Add(time.Duration(pttlMs) * time.Millisecond)
}
