//go:build integration

package redis

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comicforge-api/internal/application/generation"
	"comicforge-api/internal/config"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { rdb.Close() })
	return &Client{rdb: rdb}
}

func cleanupUser(t *testing.T, c *Client, userID string) {
	t.Helper()
	t.Cleanup(func() {
		ctx := context.Background()
		c.rdb.Del(ctx, weeklyKey(userID))
		c.rdb.Del(ctx, burstKey(userID, generation.ScopeNewStory))
		c.rdb.Del(ctx, burstKey(userID, generation.ScopeContinueStory))
	})
}

func newTestLedger(t *testing.T, weekly, burst int) (*QuotaLedger, *Client) {
	t.Helper()
	client := newTestClient(t)
	ledger := NewQuotaLedger(client, &config.GenerationConfig{
		Quota: config.QuotaConfig{WeeklyLimit: weekly, Window: time.Hour},
		Burst: config.BurstConfig{Limit: burst, Window: time.Minute},
	})
	return ledger, client
}

func TestQuotaLedger_ReserveUntilExhausted(t *testing.T) {
	ledger, client := newTestLedger(t, 3, 100)
	userID := "it-" + t.Name()
	cleanupUser(t, client, userID)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		dec, err := ledger.Reserve(ctx, userID)
		require.NoError(t, err)
		assert.True(t, dec.Granted)
		assert.Equal(t, 2-i, dec.Remaining)
		assert.True(t, dec.ResetAt.After(time.Now()))
	}

	dec, err := ledger.Reserve(ctx, userID)
	require.NoError(t, err)
	assert.False(t, dec.Granted)
	assert.Equal(t, 0, dec.Remaining)
}

func TestQuotaLedger_RefundRestoresAllowance(t *testing.T) {
	ledger, client := newTestLedger(t, 1, 100)
	userID := "it-" + t.Name()
	cleanupUser(t, client, userID)
	ctx := context.Background()

	dec, err := ledger.Reserve(ctx, userID)
	require.NoError(t, err)
	require.True(t, dec.Granted)

	dec, err = ledger.Reserve(ctx, userID)
	require.NoError(t, err)
	require.False(t, dec.Granted)

	require.NoError(t, ledger.Refund(ctx, userID))

	dec, err = ledger.Reserve(ctx, userID)
	require.NoError(t, err)
	assert.True(t, dec.Granted, "退还后额度恢复")
}

func TestQuotaLedger_RefundBelowZeroIsNoop(t *testing.T) {
	ledger, client := newTestLedger(t, 2, 100)
	userID := "it-" + t.Name()
	cleanupUser(t, client, userID)
	ctx := context.Background()

	// 没有任何预留时退还不产生负计数
	require.NoError(t, ledger.Refund(ctx, userID))

	status, err := ledger.Peek(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Remaining)
}

func TestQuotaLedger_WindowAnchoredAtFirstUse(t *testing.T) {
	ledger, client := newTestLedger(t, 10, 100)
	userID := "it-" + t.Name()
	cleanupUser(t, client, userID)
	ctx := context.Background()

	first, err := ledger.Reserve(ctx, userID)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	second, err := ledger.Reserve(ctx, userID)
	require.NoError(t, err)

	// 固定窗口：后续预留不延长重置时间
	assert.False(t, second.ResetAt.After(first.ResetAt.Add(10*time.Millisecond)),
		"reset time must not slide forward")
}

func TestQuotaLedger_BurstCountsRejectedCalls(t *testing.T) {
	ledger, client := newTestLedger(t, 100, 2)
	userID := "it-" + t.Name()
	cleanupUser(t, client, userID)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		dec, err := ledger.CheckBurst(ctx, userID, generation.ScopeNewStory)
		require.NoError(t, err)
		assert.True(t, dec.Granted)
	}

	dec, err := ledger.CheckBurst(ctx, userID, generation.ScopeNewStory)
	require.NoError(t, err)
	assert.False(t, dec.Granted)
	assert.True(t, dec.ResetAt.After(time.Now()))

	// 被拒的调用也计入窗口
	count, err := client.rdb.ZCard(ctx, burstKey(userID, generation.ScopeNewStory)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestQuotaLedger_BurstScopesAreIndependent(t *testing.T) {
	ledger, client := newTestLedger(t, 100, 1)
	userID := "it-" + t.Name()
	cleanupUser(t, client, userID)
	ctx := context.Background()

	dec, err := ledger.CheckBurst(ctx, userID, generation.ScopeNewStory)
	require.NoError(t, err)
	require.True(t, dec.Granted)

	dec, err = ledger.CheckBurst(ctx, userID, generation.ScopeContinueStory)
	require.NoError(t, err)
	assert.True(t, dec.Granted, "不同 scope 的突发窗口互不影响")
}

func TestQuotaLedger_ConcurrentReserveLastCredit(t *testing.T) {
	ledger, client := newTestLedger(t, 1, 100)
	userID := "it-" + t.Name()
	cleanupUser(t, client, userID)
	ctx := context.Background()

	const workers = 4
	decisions := make(chan *generation.QuotaDecision, workers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			dec, err := ledger.Reserve(ctx, userID)
			if !assert.NoError(t, err) {
				return
			}
			decisions <- dec
		}()
	}
	close(start)
	wg.Wait()
	close(decisions)

	granted := 0
	for dec := range decisions {
		if dec.Granted {
			granted++
			assert.Equal(t, 0, dec.Remaining)
		}
	}
	// 最后一份额度的并发争抢恰好放行一次
	assert.Equal(t, 1, granted)
}

func TestQuotaLedger_PeekDoesNotConsume(t *testing.T) {
	ledger, client := newTestLedger(t, 5, 100)
	userID := "it-" + t.Name()
	cleanupUser(t, client, userID)
	ctx := context.Background()

	status, err := ledger.Peek(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 5, status.Limit)
	assert.Equal(t, 5, status.Remaining)
	assert.True(t, status.ResetAt.IsZero(), "未使用时没有窗口")

	_, err = ledger.Reserve(ctx, userID)
	require.NoError(t, err)

	status, err = ledger.Peek(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 4, status.Remaining)
	assert.False(t, status.ResetAt.IsZero())

	again, err := ledger.Peek(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, status.Remaining, again.Remaining, "Peek 不消耗计数")
}
