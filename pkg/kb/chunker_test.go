package kb

import (
	"context"
	"strings"
	"testing"

	"github.com/nadermedhet148/sql-insight-engine/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentences_SplitsOnTerminators(t *testing.T) {
	got := Sentences("Revenue is high. What about costs? They are low!")
	assert.Equal(t, []string{"Revenue is high.", "What about costs?", "They are low!"}, got)
}

func TestSentences_EmptyInput(t *testing.T) {
	assert.Empty(t, Sentences(""))
	assert.Empty(t, Sentences("   "))
}

func TestChunker_SingleSentence(t *testing.T) {
	mock := llm.NewMockClient()
	c := NewChunker(mock, ChunkerConfig{MaxChunkSize: 1000, SimilarityThreshold: 0.5})

	chunks, err := c.Chunk(context.Background(), "Just one sentence here.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"Just one sentence here."}, chunks[0].Sentences)
}

func TestChunker_EmptyInput(t *testing.T) {
	mock := llm.NewMockClient()
	c := NewChunker(mock, ChunkerConfig{MaxChunkSize: 1000, SimilarityThreshold: 0.5})

	chunks, err := c.Chunk(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

// clusteredEmbedClient returns one of two orthogonal unit vectors depending
// on whether the text contains "invoice", isolating the chunker's
// similarity logic from any particular embedding model's quirks.
type clusteredEmbedClient struct{ llm.Client }

func (clusteredEmbedClient) Embed(_ context.Context, in llm.EmbedInput) ([][]float32, error) {
	out := make([][]float32, len(in.Texts))
	for i, text := range in.Texts {
		if strings.Contains(strings.ToLower(text), "invoice") {
			out[i] = []float32{1, 0}
		} else {
			out[i] = []float32{0, 1}
		}
	}
	return out, nil
}

func TestChunker_TopicShiftProducesTwoChunks(t *testing.T) {
	c := NewChunker(clusteredEmbedClient{}, ChunkerConfig{MaxChunkSize: 1000, SimilarityThreshold: 0.5})

	invoiceSentences := []string{
		"The invoice total is due on the first of the month.",
		"Invoice line items list quantity and unit price.",
		"Late invoices accrue a small penalty fee.",
		"Invoice numbers are assigned sequentially per tenant.",
		"An invoice may be voided before it is paid.",
	}
	weatherSentences := []string{
		"The weather today is sunny with a light breeze.",
		"Rain is expected across the region tomorrow.",
		"Temperatures will drop below freezing overnight.",
		"A storm system is moving in from the coast.",
		"Humidity levels remain high through the weekend.",
	}
	text := strings.Join(invoiceSentences, " ") + " " + strings.Join(weatherSentences, " ")

	chunks, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, invoiceSentences, chunks[0].Sentences)
	assert.Equal(t, weatherSentences, chunks[1].Sentences)
}

func TestChunker_SentenceCoverageAndOrderPreserved(t *testing.T) {
	mock := llm.NewMockClient()
	c := NewChunker(mock, ChunkerConfig{MaxChunkSize: 40, SimilarityThreshold: 0.5})

	text := "Apples are red. Bananas are yellow. Cherries are red too. Dates are brown."
	want := Sentences(text)

	chunks, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)

	var got []string
	for _, ch := range chunks {
		got = append(got, ch.Sentences...)
	}
	assert.Equal(t, want, got)
}

func TestCosineSimilarity_ZeroNormForcesSplit(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3}))
}
