// Package llm provides the abstract LLM client used by the tool loop (C2)
// and retrieval-only Q&A (C7): text generation with tool-calling, plus
// embeddings. The concrete vendor is explicitly out of scope for the core
// (spec §1 Non-goals) — everything downstream talks to the Client interface.
package llm

import (
	"context"
	"errors"
)

// ErrProviderUnavailable wraps any transport/vendor-side failure reaching the LLM.
var ErrProviderUnavailable = errors.New("llm provider unavailable")

// Conversation message roles, mirroring the OpenAI chat wire format the
// concrete client speaks.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn in a conversation.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // set on assistant messages that request tool calls
	ToolCallID string     // set on RoleTool messages, correlating to a ToolCall.ID
	ToolName   string     // set on RoleTool messages
}

// ToolDefinition describes one tool available to the model for this call.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      string // JSON Schema for the tool's arguments
}

// ToolCall is a model-issued request to invoke a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}

// Usage reports token consumption for one Generate call.
type Usage struct {
	PromptTokens   int
	ResponseTokens int
	TotalTokens    int
}

// GenerateInput is one call to the model.
type GenerateInput struct {
	Provider    string // resolves via config.LLMProviderRegistry; empty = default
	Messages    []Message
	Tools       []ToolDefinition // nil/empty = no tools, constrained text generation
	Temperature float32
}

// GenerateOutput is the model's response to one GenerateInput.
type GenerateOutput struct {
	Content   string // final text, if the model did not request tool calls
	ToolCalls []ToolCall
	Reasoning string // any chain-of-thought / rationale text the model exposes
	Usage     Usage
}

// EmbedInput batches multiple texts into a single embedding call, avoiding N+1
// round-trips during chunking and retrieval (spec §4.6 step 2).
type EmbedInput struct {
	Provider string
	Texts    []string
}

// Client is the abstract collaborator described in spec §1: text generation
// with tool-calling, plus embeddings.
type Client interface {
	Generate(ctx context.Context, in GenerateInput) (GenerateOutput, error)
	Embed(ctx context.Context, in EmbedInput) ([][]float32, error)
}
