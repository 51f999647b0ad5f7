package provider

import "context"

// Message is one turn of a conversation, as submitted by the client.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// Provider is the upstream AI collaborator. Implementations may fail or
// exceed the latency budget; callers own timeouts via ctx.
type Provider interface {
	// Complete sends the system prompt plus conversation history and
	// returns the assistant's reply text.
	Complete(ctx context.Context, systemPrompt string, history []Message) (string, error)
}
