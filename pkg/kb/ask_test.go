package kb

import (
	"context"
	"testing"

	"github.com/nadermedhet148/sql-insight-engine/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsker_AnswersFromRetrievedContext(t *testing.T) {
	store := NewInMemoryVectorStore()
	require.NoError(t, store.Upsert(context.Background(), []ChunkRecord{
		{ChunkID: "1", TenantID: "t1", Text: "Revenue = SUM(quantity*price)", Embedding: []float32{1, 0}},
	}))

	mock := llm.NewMockClient()
	mock.Script["user:Question: how is revenue computed?\n\nContext:\n- Revenue = SUM(quantity*price)\n"] = llm.GenerateOutput{
		Content: "Revenue is quantity times price, summed.",
	}

	asker := NewAsker(mock, store)
	result, err := asker.Ask(context.Background(), "t1", "how is revenue computed?")
	require.NoError(t, err)
	assert.Equal(t, "Revenue is quantity times price, summed.", result.Answer)
	assert.Equal(t, []string{"Revenue = SUM(quantity*price)"}, result.Context)
}

func TestAsker_NoContextAvailable(t *testing.T) {
	store := NewInMemoryVectorStore()
	mock := llm.NewMockClient()

	asker := NewAsker(mock, store)
	_, err := asker.Ask(context.Background(), "empty-tenant", "anything")
	assert.ErrorIs(t, err, ErrNoContextAvailable)
}
