package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

	"document-rag/internal/models"
	"document-rag/internal/search"
)

const collectionName = "candidates"

// Ranker ranks search candidates with a chromem-go collection built for the
// single call and discarded afterwards. It is a drop-in alternative to
// search.ExactRanker.
type Ranker struct {
	// Concurrency used when adding documents, defaults to runtime.NumCPU().
	Concurrency int
}

var _ search.Ranker = Ranker{}

// candidate embeddings are always present, so the collection never embeds
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromemdb: embeddings must be precomputed")
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func (r Ranker) Rank(ctx context.Context, query []float32, candidates []models.Chunk, topK int) ([]models.ScoredChunk, error) {
	scored := make([]models.ScoredChunk, len(candidates))
	for i, c := range candidates {
		scored[i] = models.ScoredChunk{Chunk: c}
	}
	// chromem normalizes vectors, which is undefined for zero norm; those
	// pairs keep their zero score.
	if isZero(query) {
		return search.TopK(scored, topK), nil
	}

	docs := make([]chromem.Document, 0, len(candidates))
	for i, c := range candidates {
		if isZero(c.Embedding) {
			continue
		}
		docs = append(docs, chromem.Document{
			ID:        strconv.Itoa(i),
			Content:   c.Text,
			Embedding: c.Embedding,
		})
	}
	if len(docs) == 0 {
		return search.TopK(scored, topK), nil
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(collectionName, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %v", err)
	}
	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	if err := collection.AddDocuments(ctx, docs, concurrency); err != nil {
		return nil, fmt.Errorf("failed to add candidates: %v", err)
	}

	results, err := collection.QueryEmbedding(ctx, query, len(docs), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}
	for _, res := range results {
		i, err := strconv.Atoi(res.ID)
		if err != nil {
			return nil, fmt.Errorf("unexpected document id %q", res.ID)
		}
		scored[i].Score = float64(res.Similarity)
	}
	return search.TopK(scored, topK), nil
}
