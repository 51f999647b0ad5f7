package coach

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tradecoach-platform/tradecoach/internal/cache"
	"github.com/tradecoach-platform/tradecoach/internal/config"
	"github.com/tradecoach-platform/tradecoach/internal/metrics"
	"github.com/tradecoach-platform/tradecoach/internal/middleware"
	inats "github.com/tradecoach-platform/tradecoach/internal/nats"
	"github.com/tradecoach-platform/tradecoach/internal/provider"
	"github.com/tradecoach-platform/tradecoach/internal/ratelimit"
	"github.com/tradecoach-platform/tradecoach/internal/worker"
)

// Dispatcher submits completion tasks for asynchronous execution.
// *worker.Pool is the production implementation.
type Dispatcher interface {
	Submit(task worker.Task) (*worker.Handle, error)
}

// EventPublisher records terminal chat outcomes. May be nil when NATS is
// not configured; events are then skipped.
type EventPublisher interface {
	PublishChatEvent(ctx context.Context, event inats.ChatEvent) error
}

// Service is the quota-aware chat gateway. Per request it runs a cache
// check, then a burst check, then a quota peek, then an async dispatch
// with a bounded wait, then a quota commit and a cache write, falling
// back to a synchronous inline completion when the async path times out
// or fails. Exactly one of {no charge, one charge} happens per request.
type Service struct {
	limiter *ratelimit.Limiter
	store   *cache.ResponseStore
	pool    Dispatcher
	prov    provider.Provider
	events  EventPublisher
	cfg     config.CoachConfig
}

// NewService creates the gateway. events may be nil.
func NewService(limiter *ratelimit.Limiter, store *cache.ResponseStore, pool Dispatcher, prov provider.Provider, events EventPublisher, cfg config.CoachConfig) *Service {
	return &Service{
		limiter: limiter,
		store:   store,
		pool:    pool,
		prov:    prov,
		events:  events,
		cfg:     cfg,
	}
}

// Chat handles one conversation turn for the user.
//
// Rejections (*ThrottleError, *QuotaError) and cache hits charge nothing.
// A produced reply, async or fallback, charges the daily quota exactly
// once, unless the worker absorbed the request via its own cache check.
// *UpstreamError means both paths failed; nothing was charged.
func (s *Service) Chat(ctx context.Context, userID int64, plan ratelimit.Plan, messages []provider.Message) (*ChatResult, error) {
	requestID := requestIDFrom(ctx)
	fp := cache.Fingerprint(messages)

	// Cache hit: respond immediately, quota figures from a read-only peek.
	if reply, ok := s.store.Get(ctx, userID, fp); ok {
		snap := s.limiter.PeekDailyQuota(ctx, userID, plan)
		metrics.CacheHitsTotal.Inc()
		result := &ChatResult{Reply: reply, FromCache: true, Outcome: OutcomeCacheHit, Quota: snap}
		s.finish(ctx, requestID, userID, plan, result)
		return result, nil
	}

	burst := s.limiter.CheckBurst(ctx, userID, Endpoint, s.cfg.BurstLimit, s.cfg.BurstWindow)
	if !burst.Allowed {
		s.finish(ctx, requestID, userID, plan, &ChatResult{Outcome: OutcomeBurstRejected})
		return nil, &ThrottleError{ResetAt: burst.ResetAt}
	}

	snap := s.limiter.PeekDailyQuota(ctx, userID, plan)
	if snap.Used >= snap.Limit {
		s.finish(ctx, requestID, userID, plan, &ChatResult{Outcome: OutcomeQuotaRejected, Quota: snap})
		return nil, &QuotaError{Snapshot: snap}
	}

	res, asyncErr := s.dispatch(ctx, requestID, userID, fp, messages)
	if asyncErr == nil {
		return s.settle(ctx, requestID, userID, plan, fp, res, OutcomeAsync, snap)
	}

	// Fallback: same system prompt, same message framing, inline.
	slog.Warn("async dispatch failed, falling back to synchronous completion",
		"error", asyncErr,
		"request_id", requestID,
		"user_id", userID,
	)
	metrics.FallbacksTotal.Inc()

	reply, err := s.prov.Complete(ctx, SystemPrompt, messages)
	if err != nil {
		s.finish(ctx, requestID, userID, plan, &ChatResult{Outcome: OutcomeError, Quota: snap})
		return nil, &UpstreamError{AsyncErr: asyncErr, FallbackErr: err}
	}
	return s.settle(ctx, requestID, userID, plan, fp, worker.Result{Reply: reply}, OutcomeFallback, snap)
}

func (s *Service) dispatch(ctx context.Context, requestID string, userID int64, fp string, messages []provider.Message) (worker.Result, error) {
	handle, err := s.pool.Submit(worker.Task{
		RequestID:    requestID,
		UserID:       userID,
		Fingerprint:  fp,
		SystemPrompt: SystemPrompt,
		Messages:     messages,
	})
	if err != nil {
		return worker.Result{}, err
	}
	// The bounded wait ignores client disconnects: the worker keeps
	// running either way and its reply still lands in the cache, so a
	// cancelled caller must not divert us into a second upstream call.
	return handle.Await(context.WithoutCancel(ctx), s.cfg.DispatchTimeout)
}

// settle commits the quota charge and writes through the cache for a
// produced reply. A reply the worker served from its own cache check was
// already charged by the request that produced it and is not charged again.
func (s *Service) settle(ctx context.Context, requestID string, userID int64, plan ratelimit.Plan, fp string, res worker.Result, outcome string, peeked ratelimit.QuotaSnapshot) (*ChatResult, error) {
	quota := peeked
	if !res.FromCache {
		var allowed bool
		quota, allowed = s.limiter.CommitDailyQuota(ctx, userID, plan)
		if !allowed {
			// Peek said there was headroom, commit disagreed: a
			// concurrent request won the race. The charge stands.
			slog.Warn("daily quota commit exceeded ceiling after peek",
				"user_id", userID, "used", quota.Used, "limit", quota.Limit)
		}
		s.store.Put(ctx, userID, fp, res.Reply)
	}

	result := &ChatResult{Reply: res.Reply, FromCache: res.FromCache, Outcome: outcome, Quota: quota}
	s.finish(ctx, requestID, userID, plan, result)
	return result, nil
}

// QueryCount returns the daily quota snapshot without mutating anything.
func (s *Service) QueryCount(ctx context.Context, userID int64, plan ratelimit.Plan) ratelimit.QuotaSnapshot {
	return s.limiter.PeekDailyQuota(ctx, userID, plan)
}

// ResetQuota deletes the user's daily counter. Idempotent.
func (s *Service) ResetQuota(ctx context.Context, userID int64) error {
	return s.limiter.ResetDailyQuota(ctx, userID)
}

// finish records the terminal outcome in metrics and, when NATS is
// configured, publishes a usage event. Publishing is fire-and-forget.
func (s *Service) finish(ctx context.Context, requestID string, userID int64, plan ratelimit.Plan, result *ChatResult) {
	metrics.ChatRequestsTotal.WithLabelValues(result.Outcome).Inc()

	if s.events == nil {
		return
	}

	event := inats.ChatEvent{
		RequestID: requestID,
		UserID:    userID,
		Plan:      string(plan),
		Outcome:   result.Outcome,
		FromCache: result.FromCache,
		Fallback:  result.Outcome == OutcomeFallback,
		Degraded:  result.Quota.Degraded,
		Used:      result.Quota.Used,
		Limit:     result.Quota.Limit,
		Timestamp: time.Now(),
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.events.PublishChatEvent(pubCtx, event); err != nil {
		slog.Warn("publishing chat event", "error", err, "request_id", requestID)
	}
}

func requestIDFrom(ctx context.Context) string {
	if id := middleware.GetRequestID(ctx); id != "" {
		return id
	}
	return uuid.New().String()
}
