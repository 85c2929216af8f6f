package generation

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comicforge-api/internal/domain/entity"
	"comicforge-api/internal/domain/repository"
	"comicforge-api/pkg/errors"
)

type fakeQuota struct {
	burst        *QuotaDecision
	burstErr     error
	burstCalls   int
	reserve      *QuotaDecision
	reserveErr   error
	reserveCalls int
	refundCalls  int
	refundErr    error
}

func (f *fakeQuota) CheckBurst(_ context.Context, _ string, _ Scope) (*QuotaDecision, error) {
	f.burstCalls++
	return f.burst, f.burstErr
}

func (f *fakeQuota) Reserve(_ context.Context, _ string) (*QuotaDecision, error) {
	f.reserveCalls++
	return f.reserve, f.reserveErr
}

func (f *fakeQuota) Refund(_ context.Context, _ string) error {
	f.refundCalls++
	return f.refundErr
}

func (f *fakeQuota) Peek(_ context.Context, _ string) (*QuotaStatus, error) {
	return &QuotaStatus{}, nil
}

type completedLease struct {
	token  string
	status int
	body   []byte
}

type fakeLeases struct {
	acquire      *Acquire
	acquireErr   error
	acquireCalls int
	completed    []completedLease
	completeErr  error
	released     []string
}

func (f *fakeLeases) Acquire(_ context.Context, _ Scope, _, _ string) (*Acquire, error) {
	f.acquireCalls++
	return f.acquire, f.acquireErr
}

func (f *fakeLeases) Complete(_ context.Context, token string, status int, body []byte) error {
	f.completed = append(f.completed, completedLease{token: token, status: status, body: body})
	return f.completeErr
}

func (f *fakeLeases) Release(_ context.Context, token string) error {
	f.released = append(f.released, token)
	return nil
}

type fakeStories struct {
	byID        map[string]*entity.Story
	getErr      error
	created     []*entity.Story
	createErr   error
	activated   []string
	activateCov string
	incremented []string
	deleted     []string
}

func (f *fakeStories) Create(_ context.Context, story *entity.Story) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, story)
	return nil
}

func (f *fakeStories) GetByID(_ context.Context, id string) (*entity.Story, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.byID[id], nil
}

func (f *fakeStories) ListByOwner(_ context.Context, _ string, _ repository.Pagination) (*repository.PagedResult[*entity.Story], error) {
	return nil, nil
}

func (f *fakeStories) Activate(_ context.Context, id string, coverURL string, _ int) error {
	f.activated = append(f.activated, id)
	f.activateCov = coverURL
	return nil
}

func (f *fakeStories) IncrementPageCount(_ context.Context, id string) error {
	f.incremented = append(f.incremented, id)
	return nil
}

func (f *fakeStories) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakePages struct {
	nextSeq   int
	created   []*entity.Page
	createErr error
}

func (f *fakePages) Create(_ context.Context, page *entity.Page) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, page)
	return nil
}

func (f *fakePages) GetByID(_ context.Context, _ string) (*entity.Page, error) { return nil, nil }

func (f *fakePages) ListByStory(_ context.Context, _ string, _ repository.Pagination) (*repository.PagedResult[*entity.Page], error) {
	return nil, nil
}

func (f *fakePages) NextSeq(_ context.Context, _ string) (int, error) { return f.nextSeq, nil }

func (f *fakePages) Delete(_ context.Context, _ string) error { return nil }

type fakeUsage struct {
	created []*entity.UsageEvent
}

func (f *fakeUsage) Create(_ context.Context, event *entity.UsageEvent) error {
	f.created = append(f.created, event)
	return nil
}

func (f *fakeUsage) ListByUser(_ context.Context, _ string, _ repository.Pagination) (*repository.PagedResult[*entity.UsageEvent], error) {
	return nil, nil
}

type fakeTx struct {
	err   error
	calls int
}

func (f *fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return fn(ctx)
}

type fakeUploader struct {
	url     string
	err     error
	objects []string
}

func (f *fakeUploader) Upload(_ context.Context, _ string, objectName string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.objects = append(f.objects, objectName)
	return f.url, nil
}

type fakePublisher struct {
	events []*entity.UsageEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, event *entity.UsageEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type sagaFixture struct {
	orch      *Orchestrator
	quota     *fakeQuota
	leases    *fakeLeases
	stories   *fakeStories
	pages     *fakePages
	usage     *fakeUsage
	tx        *fakeTx
	uploader  *fakeUploader
	publisher *fakePublisher
	provider  *stubProvider
}

func newSagaFixture(t *testing.T) *sagaFixture {
	t.Helper()

	resetAt := time.Now().Add(72 * time.Hour).Truncate(time.Second)
	f := &sagaFixture{
		quota: &fakeQuota{
			burst:   &QuotaDecision{Granted: true, Remaining: 4, ResetAt: time.Now().Add(time.Minute)},
			reserve: &QuotaDecision{Granted: true, Remaining: 29, ResetAt: resetAt},
		},
		leases:    &fakeLeases{acquire: &Acquire{State: AcquireAcquired, Token: "tok-1"}},
		stories:   &fakeStories{byID: map[string]*entity.Story{}},
		pages:     &fakePages{nextSeq: 4},
		usage:     &fakeUsage{},
		tx:        &fakeTx{},
		uploader:  &fakeUploader{url: "https://cdn.comicforge.dev/pages/p.png"},
		publisher: &fakePublisher{},
		provider:  &stubProvider{name: "flux", result: &ProviderResult{ImageURL: "https://tmp/flux.png"}},
	}

	exec := NewFallbackExecutor(stubRegistry{"flux": f.provider}, []ProviderProfile{
		{Name: "flux", Model: "flux-pro", Width: 1024, Height: 1024},
	}, time.Second, nil)

	f.orch = NewOrchestrator(f.quota, f.leases, exec, f.uploader,
		f.stories, f.pages, f.usage, f.tx, f.publisher, "manga")
	return f
}

func newStoryRequest() *Request {
	return &Request{
		Scope:          ScopeNewStory,
		UserID:         "user-1",
		IdempotencyKey: "key-1",
		Prompt:         "a raccoon opens a noodle shop",
		Title:          "Noodle Raccoon",
	}
}

func continueRequest(storyID string) *Request {
	return &Request{
		Scope:          ScopeContinueStory,
		UserID:         "user-1",
		IdempotencyKey: "key-2",
		Prompt:         "the shop gets its first customer",
		StoryID:        storyID,
	}
}

func TestOrchestrator_NewStorySuccess(t *testing.T) {
	f := newSagaFixture(t)

	outcome, err := f.orch.Generate(context.Background(), newStoryRequest())
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, http.StatusOK, outcome.Status)
	assert.False(t, outcome.Replayed)

	var payload ResultPayload
	require.NoError(t, json.Unmarshal(outcome.Body, &payload))
	assert.Equal(t, 1, payload.Seq)
	assert.Equal(t, "flux", payload.Provider)
	assert.Equal(t, "flux-pro", payload.Model)
	assert.Equal(t, "https://cdn.comicforge.dev/pages/p.png", payload.ImageURL)

	// 故事先以 generating 预建，成功后激活并写入封面
	require.Len(t, f.stories.created, 1)
	assert.Equal(t, entity.StoryStatusGenerating, f.stories.created[0].Status)
	assert.Equal(t, []string{f.stories.created[0].ID}, f.stories.activated)
	assert.Equal(t, payload.ImageURL, f.stories.activateCov)
	assert.Empty(t, f.stories.deleted)

	// 租约以最终响应体完成，responseBody 逐字节一致
	require.Len(t, f.leases.completed, 1)
	assert.Equal(t, "tok-1", f.leases.completed[0].token)
	assert.Equal(t, http.StatusOK, f.leases.completed[0].status)
	assert.Equal(t, outcome.Body, f.leases.completed[0].body)
	assert.Empty(t, f.leases.released)

	assert.Equal(t, 0, f.quota.refundCalls)
	require.Len(t, f.usage.created, 1)
	assert.Equal(t, string(ScopeNewStory), f.usage.created[0].Scope)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, f.usage.created[0].ID, f.publisher.events[0].ID)
}

func TestOrchestrator_ContinueStorySuccess(t *testing.T) {
	f := newSagaFixture(t)
	f.stories.byID["story-7"] = &entity.Story{ID: "story-7", OwnerID: "user-1", Status: entity.StoryStatusActive, PageCount: 3}

	outcome, err := f.orch.Generate(context.Background(), continueRequest("story-7"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, outcome.Status)

	var payload ResultPayload
	require.NoError(t, json.Unmarshal(outcome.Body, &payload))
	assert.Equal(t, "story-7", payload.StoryID)
	assert.Equal(t, 4, payload.Seq)

	assert.Empty(t, f.stories.created, "续写不预建故事")
	assert.Equal(t, []string{"story-7"}, f.stories.incremented)
	assert.Empty(t, f.stories.activated)
}

func TestOrchestrator_Replay(t *testing.T) {
	f := newSagaFixture(t)
	cached := []byte(`{"story_id":"s","page_id":"p","seq":1}`)
	f.leases.acquire = &Acquire{State: AcquireReplay, Status: http.StatusOK, Body: cached}

	outcome, err := f.orch.Generate(context.Background(), newStoryRequest())
	require.NoError(t, err)
	assert.True(t, outcome.Replayed)
	assert.Equal(t, http.StatusOK, outcome.Status)
	assert.Equal(t, cached, outcome.Body)

	// 重放不触碰配额与生成链路
	assert.Equal(t, 0, f.quota.burstCalls)
	assert.Equal(t, 0, f.quota.reserveCalls)
	assert.Equal(t, 0, f.provider.calls)
	assert.Empty(t, f.stories.created)
}

func TestOrchestrator_InProgressConflict(t *testing.T) {
	f := newSagaFixture(t)
	f.leases.acquire = &Acquire{State: AcquireInProgress}

	outcome, err := f.orch.Generate(context.Background(), newStoryRequest())
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, outcome.Status)

	var payload ConflictPayload
	require.NoError(t, json.Unmarshal(outcome.Body, &payload))
	assert.Equal(t, string(errors.CodeDuplicateRequest), payload.Code)

	assert.Equal(t, 0, f.quota.burstCalls)
	assert.Equal(t, 0, f.provider.calls)
}

func TestOrchestrator_MissingIdempotencyKey(t *testing.T) {
	f := newSagaFixture(t)
	req := newStoryRequest()
	req.IdempotencyKey = "   "

	_, err := f.orch.Generate(context.Background(), req)
	require.Error(t, err)
	appErr := errors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.CodeIdempotencyKey, appErr.Code)
	assert.Equal(t, 0, f.leases.acquireCalls, "校验失败不触碰租约存储")
}

func TestOrchestrator_BurstRejected(t *testing.T) {
	f := newSagaFixture(t)
	resetAt := time.Now().Add(30 * time.Second).Truncate(time.Second)
	f.quota.burst = &QuotaDecision{Granted: false, Remaining: 0, ResetAt: resetAt}

	outcome, err := f.orch.Generate(context.Background(), newStoryRequest())
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, outcome.Status)

	var payload LimitPayload
	require.NoError(t, json.Unmarshal(outcome.Body, &payload))
	assert.Equal(t, string(errors.CodeBurstLimited), payload.Code)
	assert.Equal(t, 0, payload.Remaining)
	assert.True(t, payload.ResetAt.Equal(resetAt))

	assert.Equal(t, 0, f.quota.reserveCalls, "突发拒绝后不再动周配额")
	assert.Equal(t, 0, f.quota.refundCalls)
	assert.Equal(t, []string{"tok-1"}, f.leases.released)
	assert.Empty(t, f.stories.created)
}

func TestOrchestrator_WeeklyQuotaRejected(t *testing.T) {
	f := newSagaFixture(t)
	f.quota.reserve = &QuotaDecision{Granted: false, Remaining: 0, ResetAt: time.Now().Add(24 * time.Hour)}

	outcome, err := f.orch.Generate(context.Background(), newStoryRequest())
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, outcome.Status)

	var payload LimitPayload
	require.NoError(t, json.Unmarshal(outcome.Body, &payload))
	assert.Equal(t, string(errors.CodeQuotaExceeded), payload.Code)

	// 拒绝的预留没有可退的扣减
	assert.Equal(t, 0, f.quota.refundCalls)
	assert.Equal(t, []string{"tok-1"}, f.leases.released)
	assert.Equal(t, 0, f.provider.calls)
}

func TestOrchestrator_ProviderFailureCompensates(t *testing.T) {
	f := newSagaFixture(t)
	f.provider.err = &ProviderCallError{Provider: "flux", StatusCode: 500, Kind: ProviderErrOther, Message: "boom"}

	_, err := f.orch.Generate(context.Background(), newStoryRequest())
	require.Error(t, err)

	// 补偿逆序：删除预建故事 → 退还配额 → 释放租约
	require.Len(t, f.stories.created, 1)
	assert.Equal(t, []string{f.stories.created[0].ID}, f.stories.deleted)
	assert.Equal(t, 1, f.quota.refundCalls)
	assert.Equal(t, []string{"tok-1"}, f.leases.released)
	assert.Empty(t, f.leases.completed)
	assert.Empty(t, f.usage.created)
}

func TestOrchestrator_UploadFailureCompensates(t *testing.T) {
	f := newSagaFixture(t)
	f.uploader.err = stderrors.New("put object: connection reset")

	_, err := f.orch.Generate(context.Background(), newStoryRequest())
	require.Error(t, err)
	appErr := errors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.CodeStorageError, appErr.Code)

	assert.Equal(t, 1, f.quota.refundCalls)
	assert.Equal(t, []string{"tok-1"}, f.leases.released)
	require.Len(t, f.stories.created, 1)
	assert.Equal(t, []string{f.stories.created[0].ID}, f.stories.deleted)
}

func TestOrchestrator_PersistFailureCompensates(t *testing.T) {
	f := newSagaFixture(t)
	f.tx.err = stderrors.New("pq: the database system is shutting down")

	_, err := f.orch.Generate(context.Background(), newStoryRequest())
	require.Error(t, err)
	assert.Equal(t, errors.CodeServiceUnavailable, MapError(err).Code)

	assert.Equal(t, 1, f.quota.refundCalls)
	assert.Equal(t, []string{"tok-1"}, f.leases.released)
	assert.Empty(t, f.leases.completed)
}

func TestOrchestrator_CompleteFailureStillSucceeds(t *testing.T) {
	f := newSagaFixture(t)
	f.leases.completeErr = stderrors.New("redis: connection pool timeout")

	outcome, err := f.orch.Generate(context.Background(), newStoryRequest())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, outcome.Status)

	// 结果已持久化，不因缓存写失败而回滚已交付的产物
	assert.Equal(t, 0, f.quota.refundCalls)
	assert.Empty(t, f.leases.released)
	assert.Empty(t, f.stories.deleted)
}

func TestOrchestrator_LeaseStoreUnavailable(t *testing.T) {
	f := newSagaFixture(t)
	f.leases.acquireErr = stderrors.New("redis: connection pool timeout")

	_, err := f.orch.Generate(context.Background(), newStoryRequest())
	require.Error(t, err)
	appErr := errors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.CodeServiceUnavailable, appErr.Code)
	assert.Equal(t, 0, f.quota.burstCalls, "租约存储不可用时直接失败而非放行")
}

func TestOrchestrator_QuotaStoreUnavailable(t *testing.T) {
	f := newSagaFixture(t)
	f.quota.reserveErr = stderrors.New("redis: client is closed")

	_, err := f.orch.Generate(context.Background(), newStoryRequest())
	require.Error(t, err)
	appErr := errors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.CodeServiceUnavailable, appErr.Code)
	assert.Equal(t, []string{"tok-1"}, f.leases.released)
}

func TestOrchestrator_ContinueForbidden(t *testing.T) {
	f := newSagaFixture(t)
	f.stories.byID["story-7"] = &entity.Story{ID: "story-7", OwnerID: "someone-else"}

	_, err := f.orch.Generate(context.Background(), continueRequest("story-7"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeForbidden, errors.AsAppError(err).Code)
	assert.Equal(t, 0, f.leases.acquireCalls, "前置校验先于租约获取")
}

func TestOrchestrator_ContinueStoryNotFound(t *testing.T) {
	f := newSagaFixture(t)

	_, err := f.orch.Generate(context.Background(), continueRequest("nope"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeStoryNotFound, errors.AsAppError(err).Code)
}

func TestOrchestrator_DefaultStyleApplied(t *testing.T) {
	f := newSagaFixture(t)
	req := newStoryRequest()
	req.Style = ""

	_, err := f.orch.Generate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, f.provider.seen, 1)
	assert.Equal(t, "manga", f.provider.seen[0].Style)
	require.Len(t, f.pages.created, 1)
	assert.Equal(t, "manga", f.pages.created[0].Style)
}

func TestOrchestrator_DerivedTitleKeepsRunesWhole(t *testing.T) {
	f := newSagaFixture(t)
	req := newStoryRequest()
	req.Title = ""
	req.Prompt = strings.Repeat("浣熊侦探在雨夜的面馆里", 10)

	_, err := f.orch.Generate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, f.stories.created, 1)
	title := f.stories.created[0].Title
	assert.True(t, utf8.ValidString(title))
	assert.Equal(t, 64, utf8.RuneCountInString(title))
	assert.True(t, strings.HasPrefix(req.Prompt, title))
}

func TestOrchestrator_PublishFailureDoesNotFail(t *testing.T) {
	f := newSagaFixture(t)
	f.publisher.err = stderrors.New("stream unavailable")

	outcome, err := f.orch.Generate(context.Background(), newStoryRequest())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, outcome.Status)
	require.Len(t, f.usage.created, 1, "事件行仍随事务落库")
}
