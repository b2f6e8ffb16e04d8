package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockClient is the deterministic LLM stand-in enabled by the MOCK_LLM
// environment variable (spec §6). It drives the tool loop through a fixed
// script of canned responses so saga scenarios are reproducible without a
// real model: each Generate call returns the Script entry keyed on the last
// non-system message (see scriptKey), and falls back to a rule-based default
// keyed on whether tools are offered when no script entry matches.
//
// The unscripted fallback still exercises the tool loop rather than
// finalizing immediately: when a call offers tools and none has been called
// yet in this conversation, it issues a tool call before ever producing
// final text, so a bare MOCK_LLM=true server drives at least one real
// registry/tool-loop round trip in every tool-bearing stage instead of
// short-circuiting with no SQL produced.
type MockClient struct {
	// Script maps a lookup key (see scriptKey) to the output to return.
	Script map[string]GenerateOutput

	// AlwaysToolCall, when set, makes every Generate call return a tool call
	// for ForcedTool regardless of conversation state — used to exercise the
	// IterationBudgetExceeded failure mode deterministically.
	AlwaysToolCall bool
	ForcedTool     string
	ForcedArgs     string

	calls int
}

// NewMockClient returns a MockClient with an empty script; callers populate
// Script or set AlwaysToolCall before use.
func NewMockClient() *MockClient {
	return &MockClient{Script: make(map[string]GenerateOutput)}
}

// Generate implements Client.
func (m *MockClient) Generate(_ context.Context, in GenerateInput) (GenerateOutput, error) {
	m.calls++

	if m.AlwaysToolCall {
		return GenerateOutput{
			ToolCalls: []ToolCall{{
				ID:        fmt.Sprintf("mock-call-%d", m.calls),
				Name:      m.ForcedTool,
				Arguments: m.ForcedArgs,
			}},
			Usage: Usage{PromptTokens: 10, ResponseTokens: 5, TotalTokens: 15},
		}, nil
	}

	key := scriptKey(in.Messages)
	if out, ok := m.Script[key]; ok {
		return out, nil
	}

	if len(in.Tools) > 0 && !hasToolResult(in.Messages) {
		return GenerateOutput{
			ToolCalls: []ToolCall{{
				ID:        fmt.Sprintf("mock-call-%d", m.calls),
				Name:      pickDefaultTool(in.Tools),
				Arguments: "{}",
			}},
			Usage: Usage{PromptTokens: 10, ResponseTokens: 5, TotalTokens: 15},
		}, nil
	}

	if len(in.Tools) > 0 {
		return GenerateOutput{
			Content: "```sql\nSELECT 1\n```",
			Usage:   Usage{PromptTokens: 10, ResponseTokens: 5, TotalTokens: 15},
		}, nil
	}

	return GenerateOutput{
		Content: "I do not have a scripted response for this conversation state.",
		Usage:   Usage{PromptTokens: 10, ResponseTokens: 5, TotalTokens: 15},
	}, nil
}

// hasToolResult reports whether the conversation already contains a tool
// result, meaning at least one round trip through the loop has happened.
func hasToolResult(msgs []Message) bool {
	for _, msg := range msgs {
		if msg.Role == RoleTool {
			return true
		}
	}
	return false
}

// pickDefaultTool prefers list_tables (its schema takes no arguments, so an
// empty "{}" call is always valid against a real tool server); otherwise it
// falls back to whatever tool comes first in the catalogue.
func pickDefaultTool(tools []ToolDefinition) string {
	for _, t := range tools {
		if t.Name == "list_tables" {
			return t.Name
		}
	}
	return tools[0].Name
}

// Embed implements Client with a deterministic, content-derived embedding:
// each lower-cased word is hashed into one of 8 dimensions and counted there,
// so equal inputs produce equal vectors and inputs sharing words land close
// together, which is enough to
// exercise the chunker's cosine-similarity logic in tests.
func (m *MockClient) Embed(_ context.Context, in EmbedInput) ([][]float32, error) {
	out := make([][]float32, len(in.Texts))
	for i, text := range in.Texts {
		out[i] = deterministicEmbedding(text, 8)
	}
	return out, nil
}

// scriptKey builds a lookup key from the last non-system message, so a test
// can script "what the model says after seeing tool X's result" without
// needing to match the entire transcript.
func scriptKey(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role == RoleSystem {
			continue
		}
		if m.Role == RoleTool {
			return RoleTool + ":" + m.ToolName
		}
		return m.Role + ":" + m.Content
	}
	return ""
}

func deterministicEmbedding(text string, dims int) []float32 {
	v := make([]float32, dims)
	words := strings.Fields(strings.ToLower(text))
	for _, w := range words {
		var h uint32
		for _, r := range w {
			h = h*31 + uint32(r)
		}
		v[int(h)%dims] += 1
	}
	return v
}
