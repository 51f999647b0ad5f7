package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/tradecoach-platform/tradecoach/internal/config"
	"github.com/tradecoach-platform/tradecoach/internal/metrics"
)

// OpenAIProvider calls the OpenAI chat completion API behind a circuit
// breaker, so a flapping upstream trips fast instead of holding request
// goroutines for the full timeout.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

// NewOpenAIProvider constructs the provider from config. The client is
// created here and injected where needed; there is no package-level client.
func NewOpenAIProvider(cfg config.OpenAIConfig) *OpenAIProvider {
	settings := gobreaker.Settings{
		Name:        "openai",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				"circuit", name, "from", from.String(), "to", to.String())
		},
	}

	return &OpenAIProvider{
		client:  openai.NewClient(cfg.APIKey),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt string, history []Message) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	result, err := p.breaker.Execute(func() (any, error) {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    p.model,
			Messages: msgs,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("empty completion response")
		}
		return resp.Choices[0].Message.Content, nil
	})
	metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}

	return result.(string), nil
}
