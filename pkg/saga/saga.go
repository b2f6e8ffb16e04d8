// Package saga implements the Saga Orchestrator (C4): a four-stage pipeline
// wired over the message bus, each stage reading and writing the saga state
// store and driving the LLM tool loop with a stage-specific catalogue.
package saga

import (
	"time"
)

// Tool roles resolved through the registry (spec §4.1, §4.6).
const (
	RoleDatabase      = "database"
	RoleKnowledgeBase = "knowledge-base"
)

// Tool names in the stage 1 catalogue (spec §4.4).
const (
	ToolSearchKnowledgeBase = "search_knowledge_base"
	ToolListTables          = "list_tables"
	ToolDescribeTable       = "describe_table"
	ToolCheckRelevance      = "check_relevance"
	ToolExecuteSQL          = "execute_sql"
)

// Step Record names appended to a saga's call_stack.
const (
	StepGenerateQuery = "generate_query"
	StepExecuteQuery  = "execute_query"
	StepFormat        = "format"
)

// Config bounds one saga's orchestration (spec §5).
type Config struct {
	SagaDeadline       time.Duration // 5 min
	StageDeadline      time.Duration // 180s
	SelfCorrectRetries int           // 1
	RecordTTL          time.Duration // 1h after terminal
	MaxResultRows      int           // 50
	MaxSummaryChars    int           // 2000
}

