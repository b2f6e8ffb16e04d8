package kb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryVectorStore_UpsertAndTopK(t *testing.T) {
	store := NewInMemoryVectorStore()
	ctx := context.Background()

	err := store.Upsert(ctx, []ChunkRecord{
		{ChunkID: "1", TenantID: "t1", Text: "a", Embedding: []float32{1, 0}},
		{ChunkID: "2", TenantID: "t1", Text: "b", Embedding: []float32{0, 1}},
		{ChunkID: "3", TenantID: "t1", Text: "c", Embedding: []float32{0.9, 0.1}},
	})
	require.NoError(t, err)

	results, err := store.TopK(ctx, "t1", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Text)
	assert.Equal(t, "c", results[1].Text)
}

func TestInMemoryVectorStore_TopKEmptyCollection(t *testing.T) {
	store := NewInMemoryVectorStore()
	_, err := store.TopK(context.Background(), "missing-tenant", []float32{1, 0}, 4)
	assert.ErrorIs(t, err, ErrNoContextAvailable)
}

func TestInMemoryVectorStore_TenantIsolation(t *testing.T) {
	store := NewInMemoryVectorStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []ChunkRecord{
		{ChunkID: "1", TenantID: "t1", Text: "t1-chunk", Embedding: []float32{1, 0}},
	}))

	_, err := store.TopK(ctx, "t2", []float32{1, 0}, 4)
	assert.ErrorIs(t, err, ErrNoContextAvailable)
}

func TestInMemoryVectorStore_UpsertReplacesSameChunkID(t *testing.T) {
	store := NewInMemoryVectorStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []ChunkRecord{
		{ChunkID: "1", TenantID: "t1", Text: "original", Embedding: []float32{1, 0}},
	}))
	require.NoError(t, store.Upsert(ctx, []ChunkRecord{
		{ChunkID: "1", TenantID: "t1", Text: "updated", Embedding: []float32{1, 0}},
	}))

	results, err := store.TopK(ctx, "t1", []float32{1, 0}, 4)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "updated", results[0].Text)
}
