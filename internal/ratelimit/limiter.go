package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradecoach-platform/tradecoach/internal/metrics"
)

const (
	burstKeyPrefix = "rate_limit:"
	dailyKeyPrefix = "daily_queries:"
)

// BurstInfo describes the outcome of a fixed-window burst check.
type BurstInfo struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Current   int       `json:"current_count"`
	ResetAt   time.Time `json:"reset_time"`
	// Degraded is set when the store was unreachable and the check
	// failed open instead of deciding.
	Degraded bool `json:"degraded,omitempty"`
}

// QuotaSnapshot is the caller-facing view of a daily quota counter.
// It is derived fresh on every read, never stored.
type QuotaSnapshot struct {
	Used      int       `json:"used"`
	Limit     int       `json:"daily_limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_time"`
	Degraded  bool      `json:"degraded,omitempty"`
}

// Limiter enforces a fixed-window burst limit per (user, endpoint) and a
// plan-tiered daily quota per user, both backed by atomic Redis counters.
// All store failures are fail-open: availability of the assistant wins
// over strict fairness during infra outages.
type Limiter struct {
	rdb redis.Cmdable
}

// NewLimiter creates a Redis-backed Limiter.
func NewLimiter(rdb redis.Cmdable) *Limiter {
	return &Limiter{rdb: rdb}
}

func burstKey(userID int64, endpoint string) string {
	return fmt.Sprintf("%s%d:%s", burstKeyPrefix, userID, endpoint)
}

func dailyKey(userID int64) string {
	return fmt.Sprintf("%s%d", dailyKeyPrefix, userID)
}

// CheckBurst checks the fixed-window counter for (userID, endpoint).
// Rejected requests are free: the counter is only incremented when the
// request is admitted. The window TTL is set exactly once, on the 0→1
// transition, which at most one caller observes because INCR is atomic.
func (l *Limiter) CheckBurst(ctx context.Context, userID int64, endpoint string, limit int, window time.Duration) BurstInfo {
	key := burstKey(userID, endpoint)
	now := time.Now()

	count, err := l.rdb.Get(ctx, key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return l.burstFailOpen(err, limit, now, window)
	}

	if count >= limit {
		resetAt := now.Add(window)
		if ttl, err := l.rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			resetAt = now.Add(ttl)
		}
		return BurstInfo{
			Allowed:   false,
			Limit:     limit,
			Remaining: 0,
			Current:   count,
			ResetAt:   resetAt,
		}
	}

	newCount, err := l.rdb.IncrBy(ctx, key, 1).Result()
	if err != nil {
		return l.burstFailOpen(err, limit, now, window)
	}
	if newCount == 1 {
		if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
			slog.Warn("burst limiter: setting window TTL", "error", err, "key", key)
		}
	}

	remaining := limit - int(newCount)
	if remaining < 0 {
		remaining = 0
	}
	return BurstInfo{
		Allowed:   true,
		Limit:     limit,
		Remaining: remaining,
		Current:   int(newCount),
		ResetAt:   now.Add(window),
	}
}

func (l *Limiter) burstFailOpen(err error, limit int, now time.Time, window time.Duration) BurstInfo {
	slog.Warn("burst limiter: store unreachable, failing open", "error", err)
	metrics.DegradedStoreTotal.WithLabelValues("burst_check").Inc()
	return BurstInfo{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - 1,
		Current:   1,
		ResetAt:   now.Add(window),
		Degraded:  true,
	}
}

// PeekDailyQuota reads the daily counter without mutating it. The gateway
// uses it to reject before doing expensive work, without charging.
func (l *Limiter) PeekDailyQuota(ctx context.Context, userID int64, plan Plan) QuotaSnapshot {
	limit := DailyLimit(plan)
	now := time.Now()

	used, err := l.rdb.Get(ctx, dailyKey(userID)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		slog.Warn("daily quota: store unreachable on peek, failing open", "error", err, "user_id", userID)
		metrics.DegradedStoreTotal.WithLabelValues("quota_peek").Inc()
		return QuotaSnapshot{Used: 0, Limit: limit, Remaining: limit, ResetAt: nextMidnight(now), Degraded: true}
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaSnapshot{
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   nextMidnight(now),
	}
}

// CommitDailyQuota atomically increments the daily counter, charging one
// billed AI response. On the first increment of the day the key expires at
// local midnight. The returned allowed flag re-validates the ceiling by
// increment-then-compare; the gateway peeks before committing, so a false
// here signals a race, not a normal rejection.
func (l *Limiter) CommitDailyQuota(ctx context.Context, userID int64, plan Plan) (QuotaSnapshot, bool) {
	limit := DailyLimit(plan)
	key := dailyKey(userID)
	now := time.Now()

	newCount, err := l.rdb.IncrBy(ctx, key, 1).Result()
	if err != nil {
		// Conservative degraded snapshot: assume this charge landed
		slog.Warn("daily quota: store unreachable on commit, failing open", "error", err, "user_id", userID)
		metrics.DegradedStoreTotal.WithLabelValues("quota_commit").Inc()
		return QuotaSnapshot{Used: 1, Limit: limit, Remaining: limit - 1, ResetAt: nextMidnight(now), Degraded: true}, true
	}

	if newCount == 1 {
		if err := l.rdb.Expire(ctx, key, time.Duration(secondsUntilMidnight(now))*time.Second).Err(); err != nil {
			slog.Warn("daily quota: setting midnight TTL", "error", err, "user_id", userID)
		}
	}

	used := int(newCount)
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaSnapshot{
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   nextMidnight(now),
	}, used <= limit
}

// ResetDailyQuota deletes the daily counter. Idempotent, admin use.
func (l *Limiter) ResetDailyQuota(ctx context.Context, userID int64) error {
	if err := l.rdb.Del(ctx, dailyKey(userID)).Err(); err != nil {
		return fmt.Errorf("resetting daily quota for user %d: %w", userID, err)
	}
	return nil
}

func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

// secondsUntilMidnight is clamped to at least 1 so a commit at 23:59:59.9
// still produces a key that expires rather than one that lives forever.
func secondsUntilMidnight(now time.Time) int {
	secs := int(nextMidnight(now).Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
