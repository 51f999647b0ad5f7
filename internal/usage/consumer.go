package usage

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/tradecoach-platform/tradecoach/internal/nats"
)

// Consumer listens on the chat event NATS subject and persists usage
// records to the database.
type Consumer struct {
	repo        *Repository
	consumerMgr *inats.ConsumerManager
}

// NewConsumer creates a new chat usage Consumer.
func NewConsumer(repo *Repository, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		repo:        repo,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, "usage-persister", inats.SubjectChatEvent)
	if err != nil {
		return err
	}

	slog.Info("usage consumer started", "consumer", "usage-persister")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("usage consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	var event inats.ChatEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("usage consumer: unmarshaling event", "error", err)
		_ = msg.Nak()
		return
	}

	rec := recordFromEvent(event)

	if err := c.repo.Insert(ctx, rec); err != nil {
		slog.Error("usage consumer: persisting record", "error", err, "user_id", event.UserID)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()

	slog.Debug("usage consumer: persisted event",
		"outcome", event.Outcome,
		"user_id", event.UserID,
		"request_id", event.RequestID,
	)
}

// recordFromEvent converts a ChatEvent into a chat_usage row.
func recordFromEvent(event inats.ChatEvent) *Record {
	rec := &Record{
		ID:           uuid.New(),
		UserID:       event.UserID,
		Plan:         event.Plan,
		Outcome:      event.Outcome,
		FromCache:    event.FromCache,
		Fallback:     event.Fallback,
		Degraded:     event.Degraded,
		QueriesUsed:  event.Used,
		QueriesLimit: event.Limit,
		CreatedAt:    event.Timestamp,
	}

	// Client-supplied X-Request-ID values are not always UUIDs.
	if parsed, err := uuid.Parse(event.RequestID); err == nil {
		rec.RequestID = parsed
	} else {
		rec.RequestID = uuid.New()
	}
	return rec
}
