package usage

import (
	"time"

	"github.com/google/uuid"
)

// Record matches the chat_usage table schema: one row per terminal chat
// gateway outcome, persisted from the NATS event stream.
type Record struct {
	ID           uuid.UUID `json:"id"`
	UserID       int64     `json:"user_id"`
	RequestID    uuid.UUID `json:"request_id"`
	Plan         string    `json:"plan"`
	Outcome      string    `json:"outcome"`
	FromCache    bool      `json:"from_cache"`
	Fallback     bool      `json:"fallback"`
	Degraded     bool      `json:"degraded"`
	QueriesUsed  int       `json:"queries_used"`
	QueriesLimit int       `json:"queries_limit"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListParams holds pagination and filtering parameters for usage queries.
type ListParams struct {
	Outcome  string
	Page     int
	PageSize int
}

// DefaultListParams returns sensible defaults.
func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}
