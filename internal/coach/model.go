package coach

import (
	"fmt"
	"time"

	"github.com/tradecoach-platform/tradecoach/internal/provider"
	"github.com/tradecoach-platform/tradecoach/internal/ratelimit"
)

// Endpoint is the burst limiter scope for the chat endpoint.
const Endpoint = "ai_chat"

// Outcome labels for events and metrics; one per terminal gateway state.
const (
	OutcomeCacheHit      = "cache_hit"
	OutcomeAsync         = "async"
	OutcomeFallback      = "fallback"
	OutcomeBurstRejected = "burst_rejected"
	OutcomeQuotaRejected = "quota_rejected"
	OutcomeError         = "error"
)

// ChatRequest is the POST /chat body.
type ChatRequest struct {
	Messages []provider.Message `json:"messages" validate:"required,min=1,dive"`
	Plan     string             `json:"plan,omitempty"`
}

// ChatResponse is the POST /chat reply body.
type ChatResponse struct {
	Reply             string `json:"reply"`
	DailyQueriesUsed  int    `json:"daily_queries_used"`
	DailyQueriesLimit int    `json:"daily_queries_limit"`
	FromCache         bool   `json:"from_cache"`
}

// QueryCountResponse is the GET /chat/query-count body.
type QueryCountResponse struct {
	DailyQueriesUsed  int `json:"daily_queries_used"`
	DailyQueriesLimit int `json:"daily_queries_limit"`
}

// ChatResult is the gateway's terminal outcome for one request.
type ChatResult struct {
	Reply     string
	FromCache bool
	Outcome   string
	Quota     ratelimit.QuotaSnapshot
}

// ThrottleError reports a fixed-window burst rejection. Rejected requests
// carry no side effects and can be retried after ResetAt.
type ThrottleError struct {
	ResetAt time.Time
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("Rate limit exceeded. Try again at %s.", e.ResetAt.Format(time.RFC3339))
}

// QuotaError reports an exhausted daily quota.
type QuotaError struct {
	Snapshot ratelimit.QuotaSnapshot
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("Daily query limit reached (%d queries per day). Upgrade to Pro for more access.", e.Snapshot.Limit)
}

// UpstreamError reports that both the async and the fallback path failed.
// No quota was charged because no reply was produced.
type UpstreamError struct {
	AsyncErr    error
	FallbackErr error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream completion failed: async: %v; fallback: %v", e.AsyncErr, e.FallbackErr)
}

func (e *UpstreamError) Unwrap() error { return e.FallbackErr }
