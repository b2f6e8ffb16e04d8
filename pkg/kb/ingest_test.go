package kb

import (
	"context"
	"testing"

	"github.com/nadermedhet148/sql-insight-engine/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_IngestUpsertsChunksWithMetadata(t *testing.T) {
	mock := llm.NewMockClient()
	store := NewInMemoryVectorStore()
	pipeline := NewPipeline(mock, store, ChunkerConfig{MaxChunkSize: 1000, SimilarityThreshold: 0.5})

	count, err := pipeline.Ingest(context.Background(), IngestInput{
		TenantID: "t1",
		Filename: "policy.md",
		DocBytes: []byte("Revenue is SUM(quantity*price). Costs are tracked separately."),
	})
	require.NoError(t, err)
	assert.Positive(t, count)

	results, err := store.TopK(context.Background(), "t1", []float32{0}, 10)
	require.NoError(t, err)
	require.Len(t, results, count)
	for _, r := range results {
		assert.Equal(t, "policy.md", r.SourceDoc)
	}
}

func TestPipeline_IngestEmptyDocument(t *testing.T) {
	mock := llm.NewMockClient()
	store := NewInMemoryVectorStore()
	pipeline := NewPipeline(mock, store, ChunkerConfig{MaxChunkSize: 1000, SimilarityThreshold: 0.5})

	count, err := pipeline.Ingest(context.Background(), IngestInput{TenantID: "t1", Filename: "empty.txt", DocBytes: []byte("")})
	require.NoError(t, err)
	assert.Zero(t, count)
}
