package kb

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nadermedhet148/sql-insight-engine/pkg/llm"
)

// IngestInput is one document delivered to the ingestion pipeline (spec
// §4.6): {tenant_id, doc_bytes, filename}.
type IngestInput struct {
	TenantID string
	DocBytes []byte
	Filename string
}

// Pipeline runs extract-chunk-embed-upsert for knowledge-base documents.
type Pipeline struct {
	client  llm.Client
	chunker *Chunker
	store   VectorStore
}

// NewPipeline constructs a Pipeline. chunkerCfg bounds the semantic chunker.
func NewPipeline(client llm.Client, store VectorStore, chunkerCfg ChunkerConfig) *Pipeline {
	return &Pipeline{client: client, chunker: NewChunker(client, chunkerCfg), store: store}
}

// Ingest extracts text, chunks it, batch-embeds the chunks, and upserts them
// into the tenant's collection with {filename, ordinal} metadata.
func (p *Pipeline) Ingest(ctx context.Context, in IngestInput) (chunkCount int, err error) {
	text, err := extractText(in.Filename, in.DocBytes)
	if err != nil {
		return 0, fmt.Errorf("extract text from %s: %w", in.Filename, err)
	}

	chunks, err := p.chunker.Chunk(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("chunk %s: %w", in.Filename, err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = strings.Join(c.Sentences, " ")
	}

	embeddings, err := p.client.Embed(ctx, llm.EmbedInput{Texts: texts})
	if err != nil {
		return 0, fmt.Errorf("embed chunks for %s: %w", in.Filename, err)
	}

	records := make([]ChunkRecord, len(chunks))
	for i := range chunks {
		records[i] = ChunkRecord{
			ChunkID:   uuid.NewString(),
			TenantID:  in.TenantID,
			SourceDoc: in.Filename,
			Text:      texts[i],
			Embedding: embeddings[i],
			Ordinal:   i,
		}
	}

	if err := p.store.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("upsert chunks for %s: %w", in.Filename, err)
	}
	return len(records), nil
}

// extractText returns the document bytes as UTF-8 text. The filename is not
// consulted: every document is read verbatim whatever its extension, and no
// format-specific extraction is done.
func extractText(_ string, docBytes []byte) (string, error) {
	return string(docBytes), nil
}
