package search

import (
	"cmp"
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"document-rag/internal/models"
)

// Ranker scores candidates against a query and returns at most topK of them,
// best first. Candidates are already dimension-checked and the query is
// non-empty.
type Ranker interface {
	Rank(ctx context.Context, query []float32, candidates []models.Chunk, topK int) ([]models.ScoredChunk, error)
}

// ExactRanker scans every candidate. With Workers > 1 the scoring loop is
// split across that many goroutines.
type ExactRanker struct {
	Workers int
}

// candidates per scoring goroutine batch
const scoreBatch = 64

func (r ExactRanker) Rank(ctx context.Context, query []float32, candidates []models.Chunk, topK int) ([]models.ScoredChunk, error) {
	scored := make([]models.ScoredChunk, len(candidates))
	if r.Workers <= 1 || len(candidates) <= scoreBatch {
		for i, c := range candidates {
			scored[i] = models.ScoredChunk{Chunk: c, Score: Cosine(query, c.Embedding)}
		}
	} else {
		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(r.Workers)
		for start := 0; start < len(candidates); start += scoreBatch {
			end := min(start+scoreBatch, len(candidates))
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				for i := start; i < end; i++ {
					scored[i] = models.ScoredChunk{Chunk: candidates[i], Score: Cosine(query, candidates[i].Embedding)}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return TopK(scored, topK), nil
}

// TopK stable-sorts scored by descending score and truncates it to k.
// Equal scores keep their input order.
func TopK(scored []models.ScoredChunk, k int) []models.ScoredChunk {
	slices.SortStableFunc(scored, func(a, b models.ScoredChunk) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored
}
