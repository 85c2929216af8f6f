package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"comicforge-api/internal/domain/entity"
	"comicforge-api/internal/domain/repository"
	"comicforge-api/pkg/errors"
	"comicforge-api/pkg/logger"
	"comicforge-api/pkg/metrics"
)

// Orchestrator 串联单次生成的完整流程：
// 租约获取 → 突发限流 → 配额预留 → 图像生成 → 转存落库 → 租约完成。
// 任何中途失败按逆序补偿已完成的步骤，补偿本身幂等。
type Orchestrator struct {
	quota     QuotaLedger
	leases    LeaseStore
	executor  *FallbackExecutor
	uploader  Uploader
	stories   repository.StoryRepository
	pages     repository.PageRepository
	usage     repository.UsageEventRepository
	tx        repository.Transactor
	publisher UsagePublisher

	defaultStyle string
	now          func() time.Time
}

// NewOrchestrator 构造生成编排器
func NewOrchestrator(
	quota QuotaLedger,
	leases LeaseStore,
	executor *FallbackExecutor,
	uploader Uploader,
	stories repository.StoryRepository,
	pages repository.PageRepository,
	usage repository.UsageEventRepository,
	tx repository.Transactor,
	publisher UsagePublisher,
	defaultStyle string,
) *Orchestrator {
	return &Orchestrator{
		quota:        quota,
		leases:       leases,
		executor:     executor,
		uploader:     uploader,
		stories:      stories,
		pages:        pages,
		usage:        usage,
		tx:           tx,
		publisher:    publisher,
		defaultStyle: defaultStyle,
		now:          time.Now,
	}
}

// sagaState 跟踪已完成的副作用，决定补偿范围。
// committed 置位后补偿不再执行。
type sagaState struct {
	leaseToken     string
	reserved       bool
	createdStoryID string
	committed      bool
}

// Generate 执行一次生成请求。返回的 Outcome 覆盖成功、重放、
// 幂等冲突与限流拒绝；其余失败以 error 返回，由 MapError 归一。
func (o *Orchestrator) Generate(ctx context.Context, req *Request) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Style == "" {
		req.Style = o.defaultStyle
	}

	// 续写的所有权校验是只读前置检查，放在任何状态变更之前
	var story *entity.Story
	if req.Scope == ScopeContinueStory {
		var err error
		story, err = o.stories.GetByID(ctx, req.StoryID)
		if err != nil {
			return nil, err
		}
		if story == nil {
			return nil, errors.ErrStoryNotFound
		}
		if story.OwnerID != req.UserID {
			return nil, errors.ErrForbidden
		}
	}

	acq, err := o.leases.Acquire(ctx, req.Scope, req.UserID, req.IdempotencyKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeServiceUnavailable, "idempotency store unavailable")
	}
	switch acq.State {
	case AcquireReplay:
		metrics.LeaseReplaysTotal.Inc()
		logger.Info(ctx, "replaying cached generation response",
			"user_id", req.UserID, "scope", string(req.Scope))
		return &Outcome{Status: acq.Status, Body: acq.Body, Replayed: true}, nil
	case AcquireInProgress:
		metrics.LeaseConflictsTotal.Inc()
		body, _ := json.Marshal(ConflictPayload{
			Code:    string(errors.CodeDuplicateRequest),
			Message: "a request with this idempotency key is already in progress",
		})
		return &Outcome{Status: http.StatusConflict, Body: body}, nil
	}

	st := &sagaState{leaseToken: acq.Token}
	defer o.compensate(ctx, req.UserID, st)

	start := o.now()
	outcome, err := o.run(ctx, req, story, st)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.GenerationTotal.WithLabelValues(string(req.Scope), status).Inc()
	metrics.GenerationDuration.WithLabelValues(string(req.Scope)).Observe(time.Since(start).Seconds())
	return outcome, err
}

// run 执行租约获取之后的全部步骤
func (o *Orchestrator) run(ctx context.Context, req *Request, story *entity.Story, st *sagaState) (*Outcome, error) {
	// 突发限流先于周配额，且本次调用计入窗口后永不回退
	burst, err := o.quota.CheckBurst(ctx, req.UserID, req.Scope)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeServiceUnavailable, "quota store unavailable")
	}
	if !burst.Granted {
		metrics.QuotaRejectionsTotal.WithLabelValues("burst").Inc()
		return rejectedOutcome(errors.CodeBurstLimited,
			"too many generation requests, slow down", burst), nil
	}

	reserve, err := o.quota.Reserve(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeServiceUnavailable, "quota store unavailable")
	}
	if !reserve.Granted {
		metrics.QuotaRejectionsTotal.WithLabelValues("weekly").Inc()
		return rejectedOutcome(errors.CodeQuotaExceeded,
			"weekly generation quota exhausted", reserve), nil
	}
	st.reserved = true

	if req.Scope == ScopeNewStory {
		story = &entity.Story{
			ID:        uuid.NewString(),
			OwnerID:   req.UserID,
			Title:     storyTitle(req),
			Prompt:    req.Prompt,
			Style:     req.Style,
			Status:    entity.StoryStatusGenerating,
			CreatedAt: o.now(),
			UpdatedAt: o.now(),
		}
		if err := o.stories.Create(ctx, story); err != nil {
			return nil, err
		}
		st.createdStoryID = story.ID
	}

	result, err := o.executor.Generate(ctx, &ProviderRequest{
		Prompt:          req.Prompt,
		Style:           req.Style,
		ReferenceAssets: req.ReferenceAssets,
	})
	if err != nil {
		return nil, err
	}

	page := &entity.Page{
		ID:         uuid.NewString(),
		StoryID:    story.ID,
		OwnerID:    req.UserID,
		Prompt:     req.Prompt,
		Style:      req.Style,
		Provider:   result.Profile.Name,
		Model:      result.Profile.Model,
		Width:      result.Profile.Width,
		Height:     result.Profile.Height,
		DurationMs: result.Duration.Milliseconds(),
		CreatedAt:  o.now(),
	}

	uploadStart := o.now()
	objectName := fmt.Sprintf("pages/%s/%s.png", story.ID, page.ID)
	durableURL, err := o.uploader.Upload(ctx, result.Result.ImageURL, objectName)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "failed to store generated image")
	}
	metrics.StorageUploadDuration.Observe(time.Since(uploadStart).Seconds())
	page.ImageURL = durableURL

	event := &entity.UsageEvent{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		StoryID:    story.ID,
		PageID:     page.ID,
		Scope:      string(req.Scope),
		Provider:   page.Provider,
		Model:      page.Model,
		DurationMs: page.DurationMs,
		CreatedAt:  o.now(),
	}

	err = o.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if req.Scope == ScopeNewStory {
			page.Seq = 1
		} else {
			seq, err := o.pages.NextSeq(txCtx, story.ID)
			if err != nil {
				return err
			}
			page.Seq = seq
		}
		if err := o.pages.Create(txCtx, page); err != nil {
			return err
		}
		if req.Scope == ScopeNewStory {
			if err := o.stories.Activate(txCtx, story.ID, page.ImageURL, 1); err != nil {
				return err
			}
		} else {
			if err := o.stories.IncrementPageCount(txCtx, story.ID); err != nil {
				return err
			}
		}
		return o.usage.Create(txCtx, event)
	})
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(ResultPayload{
		StoryID:    story.ID,
		PageID:     page.ID,
		Seq:        page.Seq,
		ImageURL:   page.ImageURL,
		Provider:   page.Provider,
		Model:      page.Model,
		DurationMs: page.DurationMs,
		CreatedAt:  page.CreatedAt,
	})
	if err != nil {
		return nil, err
	}

	// 结果已持久化。此后补偿会撤销已交付的付费产物，
	// 因此租约完成失败只降级为重放不可用，不回滚。
	st.committed = true
	if err := o.leases.Complete(ctx, st.leaseToken, http.StatusOK, body); err != nil {
		logger.Warn(ctx, "failed to complete idempotency lease, replay disabled until lock expiry",
			"user_id", req.UserID, "error", err.Error())
	}

	if o.publisher != nil {
		if err := o.publisher.Publish(ctx, event); err != nil {
			metrics.UsageEventsPublished.WithLabelValues("error").Inc()
			logger.Warn(ctx, "failed to publish usage event", "event_id", event.ID, "error", err.Error())
		} else {
			metrics.UsageEventsPublished.WithLabelValues("success").Inc()
		}
	}

	logger.Info(ctx, "generation completed",
		"user_id", req.UserID,
		"story_id", story.ID,
		"page_id", page.ID,
		"provider", page.Provider,
		"duration_ms", page.DurationMs)

	return &Outcome{Status: http.StatusOK, Body: body}, nil
}

// compensate 逆序撤销未提交的副作用。每一步失败只记日志，
// 不中断后续补偿；租约释放失败由锁 TTL 兜底。
func (o *Orchestrator) compensate(ctx context.Context, userID string, st *sagaState) {
	if st.committed {
		return
	}

	if st.createdStoryID != "" {
		if err := o.stories.Delete(ctx, st.createdStoryID); err != nil {
			logger.Error(ctx, "compensation: failed to delete pre-created story", err,
				"story_id", st.createdStoryID)
		}
		st.createdStoryID = ""
	}

	if st.reserved {
		if err := o.quota.Refund(ctx, userID); err != nil {
			logger.Error(ctx, "compensation: failed to refund quota reservation", err)
		} else {
			metrics.QuotaRefundsTotal.Inc()
		}
		st.reserved = false
	}

	if st.leaseToken != "" {
		if err := o.leases.Release(ctx, st.leaseToken); err != nil {
			logger.Error(ctx, "compensation: failed to release idempotency lease", err)
		}
		st.leaseToken = ""
	}
}

func rejectedOutcome(code errors.ErrorCode, message string, dec *QuotaDecision) *Outcome {
	body, _ := json.Marshal(LimitPayload{
		Code:      string(code),
		Message:   message,
		Remaining: dec.Remaining,
		ResetAt:   dec.ResetAt,
	})
	return &Outcome{Status: http.StatusTooManyRequests, Body: body}
}

// storyTitle 标题缺省时取 prompt 的截断，按 rune 计数避免切断多字节字符
func storyTitle(req *Request) string {
	if req.Title != "" {
		return req.Title
	}
	title := strings.TrimSpace(req.Prompt)
	if runes := []rune(title); len(runes) > 64 {
		title = string(runes[:64])
	}
	return title
}
