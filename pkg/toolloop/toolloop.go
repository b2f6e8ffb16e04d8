// Package toolloop implements the LLM Tool Loop (C2): a bounded, strictly
// sequential chat-with-tools iteration that drives one saga stage.
package toolloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nadermedhet148/sql-insight-engine/pkg/llm"
	"github.com/nadermedhet148/sql-insight-engine/pkg/statestore"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	// ErrIterationBudgetExceeded is returned when maxIterations tool-calling
	// rounds complete without the model returning a final text answer.
	ErrIterationBudgetExceeded = errors.New("iteration budget exceeded")

	// ErrLoopTimeout is returned when the aggregate wall clock for the loop
	// exceeds its configured timeout.
	ErrLoopTimeout = errors.New("tool loop timed out")
)

// Tool is one entry in the loop's tool catalogue: a name, its JSON-Schema
// argument contract, and the handler that executes it.
type Tool struct {
	Name        string
	Description string
	Schema      string // JSON Schema for Arguments
	Handler     Handler
}

// Handler executes one tool call and returns its result content. Returning
// an error produces an error tool message fed back to the model — it never
// aborts the loop; only the iteration/timeout bounds do.
type Handler func(ctx context.Context, argsJSON string) (content string, err error)

// Config bounds one loop invocation (spec §4.2).
type Config struct {
	MaxIterations int
	CallTimeout   time.Duration
	LoopTimeout   time.Duration
}

// Result is the outcome of one loop invocation: either a final answer or a
// failure, plus the Step Record accumulated across iterations.
type Result struct {
	FinalText string
	Step      statestore.Step
	Err       error
}

// Loop drives one bounded chat-with-tools iteration (spec §4.2).
type Loop struct {
	client llm.Client
	cfg    Config
	log    *slog.Logger
}

// New constructs a Loop against client with cfg bounds.
func New(client llm.Client, cfg Config) *Loop {
	return &Loop{client: client, cfg: cfg, log: slog.With("component", "toolloop")}
}

// Run executes the loop: it calls the model, dispatches any tool calls
// sequentially, feeds results back, and repeats until the model returns
// text-only output, the iteration bound is hit, or the aggregate wall clock
// is exceeded.
func (l *Loop) Run(ctx context.Context, provider, systemPrompt, userMessage string, tools []Tool) Result {
	deadline := time.Now().Add(l.cfg.LoopTimeout)

	handlers := make(map[string]Handler, len(tools))
	defs := make([]llm.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		handlers[t.Name] = t.Handler
		defs = append(defs, llm.ToolDefinition{Name: t.Name, Description: t.Description, Schema: t.Schema})
	}

	schemas, err := compileSchemas(tools)
	if err != nil {
		return Result{Err: fmt.Errorf("compile tool schemas: %w", err)}
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userMessage},
	}

	step := statestore.Step{
		StepName:  "tool_loop",
		Status:    statestore.StepPending,
		Prompt:    userMessage,
		ToolsUsed: []statestore.ToolCall{},
		CreatedAt: time.Now(),
	}

	start := time.Now()

	for iteration := 0; iteration < l.cfg.MaxIterations; iteration++ {
		if time.Now().After(deadline) {
			step.Status = statestore.StepFailed
			step.DurationMS = time.Since(start).Milliseconds()
			return Result{Step: step, Err: ErrLoopTimeout}
		}

		callCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
		out, err := l.client.Generate(callCtx, llm.GenerateInput{
			Provider: provider,
			Messages: messages,
			Tools:    defs,
		})
		cancel()
		if err != nil {
			step.Status = statestore.StepFailed
			step.DurationMS = time.Since(start).Milliseconds()
			return Result{Step: step, Err: fmt.Errorf("llm generate: %w", err)}
		}

		step.UsagePrompt += out.Usage.PromptTokens
		step.UsageResponse += out.Usage.ResponseTokens
		step.UsageTotal += out.Usage.TotalTokens
		if out.Reasoning != "" {
			step.LLMReasoning = out.Reasoning
		}

		if len(out.ToolCalls) == 0 {
			step.Status = statestore.StepSuccess
			step.DurationMS = time.Since(start).Milliseconds()
			return Result{FinalText: out.Content, Step: step}
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: out.Content, ToolCalls: out.ToolCalls})

		for _, tc := range out.ToolCalls {
			result := l.dispatch(ctx, tc, handlers, schemas)

			step.ToolsUsed = append(step.ToolsUsed, result)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    result.Response,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
		}
	}

	step.Status = statestore.StepFailed
	step.DurationMS = time.Since(start).Milliseconds()
	return Result{Step: step, Err: ErrIterationBudgetExceeded}
}

// dispatch validates arguments against the tool's schema and invokes its
// handler, never returning an error itself — a tool error is reported back
// to the model as the loop's guarantee requires.
func (l *Loop) dispatch(ctx context.Context, tc llm.ToolCall, handlers map[string]Handler, schemas map[string]*jsonschema.Schema) statestore.ToolCall {
	start := time.Now()

	handler, ok := handlers[tc.Name]
	if !ok {
		return statestore.ToolCall{
			Tool: tc.Name, Args: tc.Arguments,
			Response: fmt.Sprintf("error: unknown tool %q", tc.Name),
			Status:   "error", DurationMS: time.Since(start).Milliseconds(),
		}
	}

	if schema, ok := schemas[tc.Name]; ok {
		var argsValue any
		if err := json.Unmarshal([]byte(tc.Arguments), &argsValue); err != nil {
			return statestore.ToolCall{
				Tool: tc.Name, Args: tc.Arguments,
				Response: fmt.Sprintf("error: invalid JSON arguments: %v", err),
				Status:   "error", DurationMS: time.Since(start).Milliseconds(),
			}
		}
		if err := schema.Validate(argsValue); err != nil {
			return statestore.ToolCall{
				Tool: tc.Name, Args: tc.Arguments,
				Response: fmt.Sprintf("error: arguments failed schema validation: %v", err),
				Status:   "error", DurationMS: time.Since(start).Milliseconds(),
			}
		}
	}

	content, err := handler(ctx, tc.Arguments)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		l.log.Warn("tool call failed, feeding error back to model", "tool", tc.Name, "error", err)
		return statestore.ToolCall{
			Tool: tc.Name, Args: tc.Arguments,
			Response: fmt.Sprintf("error: %v", err),
			Status:   "error", DurationMS: duration,
		}
	}

	return statestore.ToolCall{
		Tool: tc.Name, Args: tc.Arguments, Response: content,
		Status: "success", DurationMS: duration,
	}
}

func compileSchemas(tools []Tool) (map[string]*jsonschema.Schema, error) {
	out := make(map[string]*jsonschema.Schema, len(tools))
	for _, t := range tools {
		if t.Schema == "" {
			continue
		}
		compiler := jsonschema.NewCompiler()
		resourceName := t.Name + ".json"
		if err := compiler.AddResource(resourceName, jsonSchemaReader(t.Schema)); err != nil {
			return nil, fmt.Errorf("add schema for %s: %w", t.Name, err)
		}
		schema, err := compiler.Compile(resourceName)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", t.Name, err)
		}
		out[t.Name] = schema
	}
	return out, nil
}
