package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nadermedhet148/sql-insight-engine/pkg/toolloop"
)

// relevanceSignal captures the result of a check_relevance tool call made by
// the model during stage 1. It is not dispatched remotely — relevance is a
// model-side judgement, not a database/KB capability.
type relevanceSignal struct {
	called     bool
	isRelevant bool
	reason     string
}

type checkRelevanceArgs struct {
	Reason     string `json:"reason"`
	IsRelevant bool   `json:"is_relevant"`
}

const schemaSearchKnowledgeBase = `{
  "type": "object",
  "properties": { "query": { "type": "string" } },
  "required": ["query"]
}`

const schemaListTables = `{ "type": "object", "properties": {} }`

const schemaDescribeTable = `{
  "type": "object",
  "properties": { "name": { "type": "string" } },
  "required": ["name"]
}`

const schemaCheckRelevance = `{
  "type": "object",
  "properties": {
    "is_relevant": { "type": "boolean" },
    "reason": { "type": "string" }
  },
  "required": ["is_relevant", "reason"]
}`

const schemaExecuteSQL = `{
  "type": "object",
  "properties": { "sql": { "type": "string" } },
  "required": ["sql"]
}`

// stage1Tools builds the Discover-&-Generate tool catalogue (spec §4.4):
// search_knowledge_base, list_tables, describe_table resolve through the
// registry (C1) and dispatch over the tool protocol; check_relevance is a
// local signal the model uses to short-circuit off-topic questions.
func (o *Orchestrator) stage1Tools(tenantID string, signal *relevanceSignal) []toolloop.Tool {
	return []toolloop.Tool{
		{
			Name:        ToolSearchKnowledgeBase,
			Description: "Search the tenant's business-context knowledge base for relevant definitions.",
			Schema:      schemaSearchKnowledgeBase,
			Handler:     o.remoteToolHandler(RoleKnowledgeBase, ToolSearchKnowledgeBase, tenantID),
		},
		{
			Name:        ToolListTables,
			Description: "List the tables available in the tenant's database.",
			Schema:      schemaListTables,
			Handler:     o.remoteToolHandler(RoleDatabase, ToolListTables, tenantID),
		},
		{
			Name:        ToolDescribeTable,
			Description: "Describe the columns of a named table.",
			Schema:      schemaDescribeTable,
			Handler:     o.remoteToolHandler(RoleDatabase, ToolDescribeTable, tenantID),
		},
		{
			Name:        ToolCheckRelevance,
			Description: "Signal whether the question can be answered from this tenant's data.",
			Schema:      schemaCheckRelevance,
			Handler: func(_ context.Context, argsJSON string) (string, error) {
				var args checkRelevanceArgs
				if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
					return "", fmt.Errorf("invalid check_relevance arguments: %w", err)
				}
				signal.called = true
				signal.isRelevant = args.IsRelevant
				signal.reason = args.Reason
				return "relevance recorded", nil
			},
		},
	}
}

// remoteToolHandler resolves role through the registry and dispatches name
// over the tool protocol, scoping the call to tenantID by embedding it in
// the forwarded arguments.
func (o *Orchestrator) remoteToolHandler(role, name, tenantID string) toolloop.Handler {
	return func(ctx context.Context, argsJSON string) (string, error) {
		endpoint, err := o.registry.Resolve(role)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoLiveTool, err)
		}

		scoped, err := scopeArgs(argsJSON, tenantID)
		if err != nil {
			return "", err
		}

		start := time.Now()
		content, isError, err := o.tools.CallTool(ctx, endpoint, name, scoped)
		o.recordToolCall(name, err == nil && !isError, time.Since(start))

		if err != nil {
			return "", fmt.Errorf("call_tool %s: %w", name, err)
		}
		if isError {
			return "", fmt.Errorf("%s reported an error: %s", name, content)
		}
		return content, nil
	}
}

func (o *Orchestrator) recordToolCall(name string, success bool, d time.Duration) {
	if o.metrics == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	o.metrics.RecordToolCall(name, outcome, d.Seconds())
}

// scopeArgs merges tenant_id into the model-supplied argument object so the
// remote tool server can enforce the access boundary described in spec §3
// (a chunk's collection membership is the sole access control).
func scopeArgs(argsJSON, tenantID string) (string, error) {
	var m map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &m); err != nil {
			return "", fmt.Errorf("invalid tool arguments: %w", err)
		}
	}
	if m == nil {
		m = make(map[string]any)
	}
	m["tenant_id"] = tenantID

	out, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode scoped arguments: %w", err)
	}
	return string(out), nil
}
