package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradecoach-platform/tradecoach/internal/metrics"
)

const responseKeyPrefix = "ai_response:"

// cacheEntry is the JSON wire shape of a cached reply.
type cacheEntry struct {
	Reply string `json:"reply"`
}

// ResponseStore maps a (user, fingerprint) pair to a previously computed
// AI reply. Entries live until their TTL; there is no other eviction and
// no explicit invalidation. Misses are silent, including store errors.
type ResponseStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewResponseStore creates a ResponseStore with the given default TTL.
func NewResponseStore(rdb redis.Cmdable, ttl time.Duration) *ResponseStore {
	return &ResponseStore{rdb: rdb, ttl: ttl}
}

func responseKey(userID int64, fingerprint string) string {
	return fmt.Sprintf("%s%d:%s", responseKeyPrefix, userID, fingerprint)
}

// Get returns the cached reply for (userID, fingerprint), or ok=false on a
// miss. Store errors degrade to a miss so an outage never blocks a request.
func (s *ResponseStore) Get(ctx context.Context, userID int64, fingerprint string) (string, bool) {
	raw, err := s.rdb.Get(ctx, responseKey(userID, fingerprint)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("response cache: get failed, treating as miss", "error", err, "user_id", userID)
			metrics.DegradedStoreTotal.WithLabelValues("cache_get").Inc()
		}
		return "", false
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		slog.Warn("response cache: malformed entry, treating as miss", "error", err, "user_id", userID)
		return "", false
	}
	return entry.Reply, true
}

// Put stores the reply unconditionally, overwriting any previous entry.
// Last write wins; concurrent writers for the same fingerprint hold
// equivalent content. Failures are logged, never surfaced.
func (s *ResponseStore) Put(ctx context.Context, userID int64, fingerprint, reply string) {
	data, err := json.Marshal(cacheEntry{Reply: reply})
	if err != nil {
		slog.Warn("response cache: marshaling entry", "error", err, "user_id", userID)
		return
	}

	if err := s.rdb.Set(ctx, responseKey(userID, fingerprint), data, s.ttl).Err(); err != nil {
		slog.Warn("response cache: set failed", "error", err, "user_id", userID)
		metrics.DegradedStoreTotal.WithLabelValues("cache_put").Inc()
	}
}
