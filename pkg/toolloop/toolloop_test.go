package toolloop

import (
	"context"
	"testing"
	"time"

	"github.com/nadermedhet148/sql-insight-engine/pkg/llm"
	"github.com/nadermedhet148/sql-insight-engine/pkg/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_FinalTextEndsLoop(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script["user:hello"] = llm.GenerateOutput{Content: "final answer"}

	loop := New(mock, Config{MaxIterations: 8, CallTimeout: time.Second, LoopTimeout: time.Second})
	res := loop.Run(context.Background(), "", "system", "hello", nil)

	require.NoError(t, res.Err)
	assert.Equal(t, "final answer", res.FinalText)
	assert.Equal(t, statestore.StepSuccess, res.Step.Status)
}

func TestLoop_IterationBudgetExceeded(t *testing.T) {
	mock := llm.NewMockClient()
	mock.AlwaysToolCall = true
	mock.ForcedTool = "list_tables"
	mock.ForcedArgs = "{}"

	called := 0
	tools := []Tool{{
		Name: "list_tables",
		Handler: func(_ context.Context, _ string) (string, error) {
			called++
			return "orders, customers", nil
		},
	}}

	loop := New(mock, Config{MaxIterations: 8, CallTimeout: time.Second, LoopTimeout: time.Minute})
	res := loop.Run(context.Background(), "", "system", "go", tools)

	require.ErrorIs(t, res.Err, ErrIterationBudgetExceeded)
	assert.Len(t, res.Step.ToolsUsed, 8)
	assert.Equal(t, 8, called)
}

func TestLoop_ToolErrorFeedsBackWithoutAborting(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script["tool:list_tables"] = llm.GenerateOutput{Content: "recovered"}
	mock.AlwaysToolCall = false

	callCount := 0
	mock.Script["user:go"] = llm.GenerateOutput{ToolCalls: []llm.ToolCall{{ID: "1", Name: "list_tables", Arguments: "{}"}}}

	tools := []Tool{{
		Name: "list_tables",
		Handler: func(_ context.Context, _ string) (string, error) {
			callCount++
			if callCount == 1 {
				return "", assertErr
			}
			return "orders", nil
		},
	}}

	loop := New(mock, Config{MaxIterations: 8, CallTimeout: time.Second, LoopTimeout: time.Minute})
	res := loop.Run(context.Background(), "", "system", "go", tools)

	require.NoError(t, res.Err)
	assert.Equal(t, "recovered", res.FinalText)
	require.Len(t, res.Step.ToolsUsed, 1)
	assert.Equal(t, "error", res.Step.ToolsUsed[0].Status)
}

var assertErr = toolErr("table not found")

type toolErr string

func (e toolErr) Error() string { return string(e) }
