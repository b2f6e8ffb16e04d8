// Package kb implements Knowledge-Base Ingestion (C6) — the semantic
// chunker, embedder, and vector upsert pipeline — and Retrieval-Only Q&A
// (C7), a synchronous embed-search-synthesize path that bypasses the saga.
package kb

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/nadermedhet148/sql-insight-engine/pkg/llm"
)

// ChunkerConfig bounds the semantic chunker (spec §4.6).
type ChunkerConfig struct {
	MaxChunkSize        int
	SimilarityThreshold float64
}

var sentenceSplitRe = regexp.MustCompile(`[.?!]\s+`)

// Sentences splits text into non-empty sentences on a terminator (.?!)
// followed by whitespace, per spec §4.6 step 1. Each terminator stays at
// the end of its sentence; only the whitespace after it is dropped.
func Sentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	marked := sentenceSplitRe.ReplaceAllStringFunc(text, func(m string) string { return m[:1] + "\x00" })
	parts := strings.Split(marked, "\x00")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Chunk is one emitted segment of the semantic chunker, preserving the
// sentences that compose it and their total character count.
type Chunk struct {
	Sentences []string
	CharCount int
}

// Chunker runs the running-centroid topic-shift detector described in spec
// §4.6: it batch-embeds every sentence up front, then folds sentences into
// the open chunk while cosine similarity to the running mean stays at or
// above the threshold and appending the sentence keeps the chunk within
// max_chunk_size.
type Chunker struct {
	client llm.Client
	cfg    ChunkerConfig
}

// NewChunker constructs a Chunker against client with cfg bounds.
func NewChunker(client llm.Client, cfg ChunkerConfig) *Chunker {
	return &Chunker{client: client, cfg: cfg}
}

// Chunk splits text into topic-coherent chunks (spec §4.6). Empty input
// yields an empty slice; a single sentence yields one chunk.
func (c *Chunker) Chunk(ctx context.Context, text string) ([]Chunk, error) {
	sentences := Sentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}

	embeddings, err := c.client.Embed(ctx, llm.EmbedInput{Texts: sentences})
	if err != nil {
		return nil, fmt.Errorf("embed sentences: %w", err)
	}
	if len(embeddings) != len(sentences) {
		return nil, fmt.Errorf("embed returned %d vectors for %d sentences", len(embeddings), len(sentences))
	}

	var chunks []Chunk

	// runningSum/count hold the running centroid as sum+count (spec §9
	// design note: "hold (sum_vector, count) rather than centroid to avoid
	// accumulated rounding").
	current := Chunk{Sentences: []string{sentences[0]}, CharCount: len(sentences[0])}
	runningSum := append([]float32(nil), embeddings[0]...)
	count := 1

	for i := 1; i < len(sentences); i++ {
		sentence := sentences[i]
		embedding := embeddings[i]

		if current.CharCount+len(sentence) > c.cfg.MaxChunkSize {
			chunks = append(chunks, current)
			current = Chunk{Sentences: []string{sentence}, CharCount: len(sentence)}
			runningSum = append([]float32(nil), embedding...)
			count = 1
			continue
		}

		centroid := meanVector(runningSum, count)
		similarity := cosineSimilarity(embedding, centroid)
		if similarity < c.cfg.SimilarityThreshold {
			chunks = append(chunks, current)
			current = Chunk{Sentences: []string{sentence}, CharCount: len(sentence)}
			runningSum = append([]float32(nil), embedding...)
			count = 1
			continue
		}

		current.Sentences = append(current.Sentences, sentence)
		current.CharCount += len(sentence)
		runningSum = addVector(runningSum, embedding)
		count++
	}

	chunks = append(chunks, current)
	return chunks, nil
}

func meanVector(sum []float32, count int) []float32 {
	if count == 0 {
		return sum
	}
	out := make([]float32, len(sum))
	for i, v := range sum {
		out[i] = v / float32(count)
	}
	return out
}

func addVector(a, b []float32) []float32 {
	out := make([]float32, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

// cosineSimilarity returns the cosine similarity of a and b. A zero-norm
// vector is treated as similarity 0, forcing a split (spec §4.6 degenerate
// case) rather than dividing by zero.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
