package kb

import (
	"context"
	"errors"
	"fmt"

	"github.com/nadermedhet148/sql-insight-engine/pkg/llm"
)

const topK = 4

// AskResult is the response of a retrieval-only Q&A call (spec §4.7).
type AskResult struct {
	Answer  string
	Context []string
}

// Asker runs C7: embed the query, fetch the top-k nearest chunks from the
// tenant's collection, and synthesize an answer with no tools. It shares
// the LLM client with the saga pipeline but never touches the saga state
// store or bus.
type Asker struct {
	client llm.Client
	store  VectorStore
}

// NewAsker constructs an Asker.
func NewAsker(client llm.Client, store VectorStore) *Asker {
	return &Asker{client: client, store: store}
}

// Ask answers query against tenantID's collection. It fails with
// ErrNoContextAvailable when the collection has no chunks.
func (a *Asker) Ask(ctx context.Context, tenantID, query string) (AskResult, error) {
	embeddings, err := a.client.Embed(ctx, llm.EmbedInput{Texts: []string{query}})
	if err != nil {
		return AskResult{}, fmt.Errorf("embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return AskResult{}, fmt.Errorf("embed query: no vector returned")
	}

	chunks, err := a.store.TopK(ctx, tenantID, embeddings[0], topK)
	if err != nil {
		if errors.Is(err, ErrNoContextAvailable) {
			return AskResult{}, ErrNoContextAvailable
		}
		return AskResult{}, fmt.Errorf("top-k search: %w", err)
	}

	contextTexts := make([]string, len(chunks))
	userMsg := "Question: " + query + "\n\nContext:\n"
	for i, c := range chunks {
		contextTexts[i] = c.Text
		userMsg += fmt.Sprintf("- %s\n", c.Text)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "Answer the question using only the provided context. If the context does not cover it, say so."},
		{Role: llm.RoleUser, Content: userMsg},
	}

	out, err := a.client.Generate(ctx, llm.GenerateInput{Messages: messages})
	if err != nil {
		return AskResult{}, fmt.Errorf("generate answer: %w", err)
	}

	return AskResult{Answer: out.Content, Context: contextTexts}, nil
}
