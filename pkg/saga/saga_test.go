package saga

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nadermedhet148/sql-insight-engine/pkg/bus"
	"github.com/nadermedhet148/sql-insight-engine/pkg/llm"
	"github.com/nadermedhet148/sql-insight-engine/pkg/statestore"
	"github.com/nadermedhet148/sql-insight-engine/pkg/toolloop"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct{ endpoint string }

func (f fakeResolver) Resolve(_ string) (string, error) { return f.endpoint, nil }

// fakeToolCaller scripts execute_sql/list_tables/describe_table responses by
// tool name so stage 1/2 tests don't require a real tool server.
// failExecuteSQLTimes governs how many leading execute_sql calls fail before
// subsequent calls succeed, deterministically exercising self-correction.
type fakeToolCaller struct {
	mu                  sync.Mutex
	failExecuteSQLTimes int
	executeSQLCalls     int
}

func (f *fakeToolCaller) CallTool(_ context.Context, _, name, _ string) (string, bool, error) {
	switch name {
	case ToolListTables:
		return "orders, customers", false, nil
	case ToolDescribeTable:
		return "id, customer_id, total", false, nil
	case ToolSearchKnowledgeBase:
		return "Revenue = SUM(quantity*price)", false, nil
	case ToolExecuteSQL:
		f.mu.Lock()
		f.executeSQLCalls++
		fail := f.executeSQLCalls <= f.failExecuteSQLTimes
		f.mu.Unlock()
		if fail {
			return `column "usr_id" does not exist`, true, nil
		}
		out, _ := json.Marshal(executeSQLResult{
			Columns: []string{"name", "revenue"},
			Rows:    [][]string{{"Acme", "1000"}, {"Globex", "800"}},
		})
		return string(out), false, nil
	default:
		return "", true, nil
	}
}

func newTestOrchestrator(mock *llm.MockClient, tc *fakeToolCaller) (*Orchestrator, statestore.Store, bus.Bus) {
	store := statestore.NewMemoryStore()
	b := bus.NewMemoryBus()
	o := New(store, b, fakeResolver{endpoint: "http://tool"}, tc, mock,
		toolloop.Config{MaxIterations: 8, CallTimeout: time.Second, LoopTimeout: 5 * time.Second},
		Config{SagaDeadline: 5 * time.Minute, StageDeadline: 30 * time.Second, SelfCorrectRetries: 1, RecordTTL: time.Hour, MaxResultRows: 50, MaxSummaryChars: 2000},
		nil,
		nil,
	)
	return o, store, b
}

func waitTerminal(t *testing.T, store statestore.Store, sagaID string) statestore.Record {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		rec, err := store.Get(context.Background(), sagaID)
		require.NoError(t, err)
		if rec.Status.Terminal() {
			return rec
		}
		select {
		case <-deadline:
			t.Fatalf("saga %s did not reach terminal state, last status=%s", sagaID, rec.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestOrchestrator_HappyPath(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script["user:top 5 customers by revenue"] = llm.GenerateOutput{
		ToolCalls: []llm.ToolCall{{ID: "1", Name: ToolListTables, Arguments: "{}"}},
	}
	mock.Script["tool:list_tables"] = llm.GenerateOutput{
		Content: "```sql\nSELECT name, SUM(total) AS revenue FROM orders JOIN customers ON orders.customer_id = customers.id GROUP BY name ORDER BY revenue DESC LIMIT 5\n```",
	}

	o, store, b := newTestOrchestrator(mock, &fakeToolCaller{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	const sagaID = "saga-1"
	require.NoError(t, store.Create(ctx, sagaID, statestore.Record{
		TenantID: "tenant-a", Question: "top 5 customers by revenue",
		Status: statestore.StatusPending, RetriesRemaining: 1,
	}, time.Hour))
	require.NoError(t, b.Publish(ctx, bus.TopicInitiated, bus.Message{SagaID: sagaID}))

	rec := waitTerminal(t, store, sagaID)
	require.Equal(t, statestore.StatusCompleted, rec.Status)
	require.False(t, rec.IsIrrelevant)
	require.NotNil(t, rec.GeneratedSQL)
	require.Contains(t, *rec.GeneratedSQL, "LIMIT 5")
	require.NotNil(t, rec.FormattedResponse)
	require.NotEmpty(t, *rec.FormattedResponse)
}

func TestOrchestrator_IrrelevantShortCircuits(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script["user:what is the weather"] = llm.GenerateOutput{
		ToolCalls: []llm.ToolCall{{ID: "1", Name: ToolCheckRelevance, Arguments: `{"is_relevant":false,"reason":"not about your database"}`}},
	}

	o, store, b := newTestOrchestrator(mock, &fakeToolCaller{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	const sagaID = "saga-2"
	require.NoError(t, store.Create(ctx, sagaID, statestore.Record{
		TenantID: "tenant-a", Question: "what is the weather",
		Status: statestore.StatusPending, RetriesRemaining: 1,
	}, time.Hour))
	require.NoError(t, b.Publish(ctx, bus.TopicInitiated, bus.Message{SagaID: sagaID}))

	rec := waitTerminal(t, store, sagaID)
	require.Equal(t, statestore.StatusError, rec.Status)
	require.True(t, rec.IsIrrelevant)
	require.NotNil(t, rec.FormattedResponse)
	require.Equal(t, "not about your database", *rec.FormattedResponse)
	require.Nil(t, rec.GeneratedSQL)
}

func TestOrchestrator_UnsafeStatementRejected(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script["user:delete the oldest order"] = llm.GenerateOutput{
		Content: "```sql\nDELETE FROM orders WHERE id = 1\n```",
	}

	o, store, b := newTestOrchestrator(mock, &fakeToolCaller{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	const sagaID = "saga-3"
	require.NoError(t, store.Create(ctx, sagaID, statestore.Record{
		TenantID: "tenant-a", Question: "delete the oldest order",
		Status: statestore.StatusPending, RetriesRemaining: 1,
	}, time.Hour))
	require.NoError(t, b.Publish(ctx, bus.TopicInitiated, bus.Message{SagaID: sagaID}))

	rec := waitTerminal(t, store, sagaID)
	require.Equal(t, statestore.StatusError, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	require.Equal(t, ErrUnsafeStatement.Error(), *rec.ErrorMessage)
}

func TestOrchestrator_SelfCorrectionThenSuccess(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script["user:customers by usr_id"] = llm.GenerateOutput{
		Content: "```sql\nSELECT usr_id, name FROM customers\n```",
	}
	mock.Script["user:customers by usr_id\n\nThe previous attempt failed.\nFailed SQL:\nSELECT usr_id, name FROM customers\nDatabase error:\ncolumn \"usr_id\" does not exist\nProduce a corrected read-only SQL statement."] = llm.GenerateOutput{
		Content: "```sql\nSELECT id, name FROM customers\n```",
	}

	tc := &fakeToolCaller{failExecuteSQLTimes: 1}
	o, store, b := newTestOrchestrator(mock, tc)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	const sagaID = "saga-4"
	require.NoError(t, store.Create(ctx, sagaID, statestore.Record{
		TenantID: "tenant-a", Question: "customers by usr_id",
		Status: statestore.StatusPending, RetriesRemaining: 1,
	}, time.Hour))
	require.NoError(t, b.Publish(ctx, bus.TopicInitiated, bus.Message{SagaID: sagaID}))

	rec := waitTerminal(t, store, sagaID)
	require.Equal(t, statestore.StatusCompleted, rec.Status)

	var generateCount, executeCount int
	for _, step := range rec.CallStack {
		switch step.StepName {
		case StepGenerateQuery:
			generateCount++
		case StepExecuteQuery:
			executeCount++
		}
	}
	require.Equal(t, 2, generateCount)
	require.Equal(t, 2, executeCount)
}
