// Package provider defines the streaming completion capability and its adapters.
// Each adapter (openai.go, anthropic.go) implements Provider, normalizing the
// vendor's streaming response into a unified Event sequence.
package provider

import "context"

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one model-visible entry of the conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ── Request types ────────────────────────────────────────────────────────────

// ChatRequest is the unified request sent to a provider. Messages are sent in
// order; system entries come first when present.
type ChatRequest struct {
	Model     string
	Messages  []Message
	MaxTokens int
}

// ── Event types (streaming output) ───────────────────────────────────────────

type EventType int

const (
	// EventTextDelta: incremental text output from the model.
	EventTextDelta EventType = iota

	// EventDone: end of the reply, carries token usage when the API reports it.
	EventDone

	// EventError: the stream failed.
	EventError
)

// Event is the unified streaming event emitted by a provider.
type Event struct {
	Type EventType

	// EventTextDelta
	TextDelta string

	// EventDone
	Usage *Usage

	// EventError
	Error error
}

// Usage records token consumption for an API call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ── Provider interface ───────────────────────────────────────────────────────

// Provider is the completion-stream capability.
// Implementors are responsible for:
// 1. Converting ChatRequest into the vendor request format
// 2. Converting the vendor's streaming response into Events
// 3. Observing ctx on every iteration so a cancelled request stops emitting
type Provider interface {
	// Chat initiates a streaming completion.
	// The returned channel emits Events until EventDone or EventError, then closes.
	// The caller must fully consume the channel to avoid goroutine leaks.
	Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error)

	// Name returns the provider identifier, e.g. "anthropic", "openai", "deepseek".
	Name() string

	// DefaultModel returns the model used when a request does not name one.
	DefaultModel() string
}

// send delivers ev unless ctx is done first. Adapters use it so a caller that
// stopped reading after cancelling does not block the stream goroutine forever.
func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
