package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-rag/internal/llmservice"
	"document-rag/internal/models"
)

const systemPrompt = "You are a helpful assistant. Use the provided context to answer the query. If the context says no relevant context was found, say you do not know."

// Searcher is satisfied by *search.Engine.
type Searcher interface {
	Search(ctx context.Context, query []float32, topK int, filename string) []models.ScoredChunk
}

type RAG struct {
	embedder embeddings.Embedder
	searcher Searcher
	model    llmservice.Generator
	topK     int
}

// NewRAG wires retrieval. model may be nil when only Retrieve is used.
func NewRAG(embedder embeddings.Embedder, searcher Searcher, model llmservice.Generator, topK int) *RAG {
	return &RAG{embedder: embedder, searcher: searcher, model: model, topK: topK}
}

// Retrieve returns the chunks of filename most relevant to query. A failed or
// empty search is not an error.
func (r *RAG) Retrieve(ctx context.Context, query, filename string) ([]models.ScoredChunk, error) {
	queryEmbedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return r.searcher.Search(ctx, queryEmbedding, r.topK, filename), nil
}

// BuildContext joins chunk texts, or returns models.NoContextFound.
func BuildContext(chunks []models.ScoredChunk) string {
	if len(chunks) == 0 {
		return models.NoContextFound
	}
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, models.ContextSeparator)
}

// Sources lists "filename p.N" for each chunk, without repeats.
func Sources(chunks []models.ScoredChunk) string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range chunks {
		src := c.Metadata.Filename
		if c.Metadata.PageNumber != nil {
			src = fmt.Sprintf("%s p.%d", src, *c.Metadata.PageNumber)
		}
		if !seen[src] {
			seen[src] = true
			out = append(out, src)
		}
	}
	return strings.Join(out, ", ")
}

func (r *RAG) Answer(ctx context.Context, query, filename string) (*models.PromptResponse, error) {
	if r.model == nil {
		return nil, fmt.Errorf("no chat model configured")
	}
	chunks, err := r.Retrieve(ctx, query, filename)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("chunks", len(chunks)).Str("filename", filename).Msg("Retrieved context")

	prompt := fmt.Sprintf(models.AnswerPromptTemplate, BuildContext(chunks), query)
	content, err := llmservice.GenerateText(ctx, r.model, systemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	return &models.PromptResponse{
		Query:   query,
		Source:  Sources(chunks),
		Content: content,
	}, nil
}
