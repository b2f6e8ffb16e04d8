// Package statestore provides the durable, TTL-bearing key/value store that
// backs saga records (spec §4.3). The state store is the single source of
// truth: a worker must never cache a record across a bus acknowledgement.
package statestore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key does not exist or its TTL
	// has expired.
	ErrNotFound = errors.New("saga record not found")

	// ErrUnavailable indicates the underlying store could not be reached.
	ErrUnavailable = errors.New("state store unavailable")

	// ErrAlreadyTerminal indicates an update was attempted against a record
	// whose status is already terminal (completed or error).
	ErrAlreadyTerminal = errors.New("saga record already terminal")
)

// Status is the saga record lifecycle state (spec §3). Transitions are
// monotonic along this list, except that any stage may short-circuit
// directly to StatusError or StatusCompleted.
type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusExecuting  Status = "executing"
	StatusFormatting Status = "formatting"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether status is one a saga cannot leave.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// ToolCall is one tool invocation recorded inside a Step's tools_used list.
type ToolCall struct {
	Tool       string `json:"tool"`
	Args       string `json:"args"`
	Response   string `json:"response"`
	DurationMS int64  `json:"duration_ms"`
	Status     string `json:"status"`
}

// StepStatus is the outcome of a single Step Record (spec §3).
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
	StepFailed  StepStatus = "failed"
)

// Step is one entry in a saga's append-only call_stack.
type Step struct {
	StepName        string       `json:"step_name"`
	Status          StepStatus   `json:"status"`
	DurationMS      int64        `json:"duration_ms"`
	Prompt          string       `json:"prompt,omitempty"`
	LLMReasoning    string       `json:"llm_reasoning,omitempty"`
	ToolsUsed       []ToolCall   `json:"tools_used,omitempty"`
	AvailableTables []string     `json:"available_tables,omitempty"`
	SQL             string       `json:"sql,omitempty"`
	UsagePrompt     int          `json:"usage_prompt_tokens,omitempty"`
	UsageResponse   int          `json:"usage_response_tokens,omitempty"`
	UsageTotal      int          `json:"usage_total_tokens,omitempty"`
	Reason          string       `json:"reason,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Record is the Saga Record described in spec §3.
type Record struct {
	SagaID            string  `json:"saga_id"`
	TenantID          string  `json:"tenant_id"`
	Question          string  `json:"question"`
	Status            Status  `json:"status"`
	GeneratedSQL      *string `json:"generated_sql,omitempty"`
	RawResults        *string `json:"raw_results,omitempty"`
	FormattedResponse *string `json:"formatted_response,omitempty"`
	IsIrrelevant      bool    `json:"is_irrelevant"`
	ErrorMessage      *string `json:"error_message,omitempty"`
	CallStack         []Step  `json:"call_stack"`
	TotalDurationMS   int64   `json:"total_duration_ms"`
	TotalTokens       int     `json:"total_tokens"`
	RetriesRemaining  int     `json:"retries_remaining"`
	FailedSQL         *string `json:"failed_sql,omitempty"`
	DatabaseError     *string `json:"database_error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Patch describes a partial update to a Record. Only non-nil fields are
// applied; AppendSteps is always additive, never a replacement, enforcing
// the append-only call_stack invariant.
type Patch struct {
	Status            *Status
	GeneratedSQL      *string
	RawResults        *string
	FormattedResponse *string
	IsIrrelevant      *bool
	ErrorMessage      *string
	AppendSteps       []Step
	RetriesRemaining  *int
	FailedSQL         *string
	DatabaseError     *string
	AddDurationMS     int64
	AddTokens         int
}

// Store is the C3 contract: create/get/update/complete/fail over saga
// records, with per-key serialisation and TTL-based expiry.
type Store interface {
	Create(ctx context.Context, sagaID string, initial Record, ttl time.Duration) error
	Get(ctx context.Context, sagaID string) (Record, error)
	Update(ctx context.Context, sagaID string, patch Patch) (Record, error)
	Complete(ctx context.Context, sagaID string, formattedResponse string) (Record, error)
	Fail(ctx context.Context, sagaID string, errMessage string, isIrrelevant bool) (Record, error)
}
