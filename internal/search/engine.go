package search

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"document-rag/internal/models"
)

// ChunkFetcher is the read side of the chunk store.
type ChunkFetcher interface {
	// FetchByFilename returns every chunk of filename, or the whole corpus
	// when filename is empty.
	FetchByFilename(ctx context.Context, filename string) ([]models.Chunk, error)
}

// Engine answers top-k similarity queries over the chunks of one document.
// All scoring happens in process after the scoped candidate set is loaded.
type Engine struct {
	chunks ChunkFetcher
	ranker Ranker
	logger zerolog.Logger
}

type Option func(*Engine)

func WithRanker(r Ranker) Option {
	return func(e *Engine) { e.ranker = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(chunks ChunkFetcher, opts ...Option) *Engine {
	e := &Engine{
		chunks: chunks,
		ranker: ExactRanker{},
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns at most topK chunks of filename ordered by descending cosine
// similarity to query. An empty filename searches the whole corpus.
//
// Search never fails: storage errors, a malformed query and ranking errors
// are logged and produce an empty result.
func (e *Engine) Search(ctx context.Context, query []float32, topK int, filename string) []models.ScoredChunk {
	if topK <= 0 {
		return nil
	}
	if len(query) == 0 {
		e.logger.Error().Err(models.ErrMalformedVector).Str("filename", filename).Msg("empty query embedding")
		return nil
	}

	candidates, err := e.chunks.FetchByFilename(ctx, filename)
	if err != nil {
		e.logger.Error().Err(err).Str("filename", filename).Msg("fetching candidates failed, returning no results")
		return nil
	}

	valid := make([]models.Chunk, 0, len(candidates))
	skipped := 0
	for _, c := range candidates {
		if err := CheckDims(query, c.Embedding); err != nil {
			skipped++
			continue
		}
		valid = append(valid, c)
	}
	if skipped > 0 {
		e.logger.Warn().
			Err(models.ErrMalformedVector).
			Int("skipped", skipped).
			Int("query_dim", len(query)).
			Str("filename", filename).
			Msg("skipped candidates with mismatched embeddings")
	}
	if len(valid) == 0 {
		return nil
	}

	results, err := e.ranker.Rank(ctx, query, valid, topK)
	if err != nil {
		e.logger.Error().Err(err).Str("filename", filename).Msg("ranking failed, returning no results")
		return nil
	}
	e.logger.Debug().
		Str("filename", filename).
		Int("candidates", len(candidates)).
		Int("results", len(results)).
		Msg("search complete")
	return results
}
