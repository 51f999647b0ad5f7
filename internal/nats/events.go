package nats

import "time"

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamEvents = "TRADECOACH_EVENTS"
)

// Subject constants.
const (
	SubjectChatEvent = "tradecoach.events.chat"
)

// ChatEvent is published once per terminal chat gateway outcome and
// consumed by the usage pipeline for analytics persistence.
type ChatEvent struct {
	RequestID string    `json:"request_id"`
	UserID    int64     `json:"user_id"`
	Plan      string    `json:"plan"`
	Outcome   string    `json:"outcome"` // cache_hit, async, fallback, burst_rejected, quota_rejected, error
	FromCache bool      `json:"from_cache"`
	Fallback  bool      `json:"fallback"`
	Degraded  bool      `json:"degraded"`
	Used      int       `json:"queries_used"`
	Limit     int       `json:"queries_limit"`
	Timestamp time.Time `json:"timestamp"`
}
