// Package memstore is an in-process document registry and chunk store. It
// backs the "memory" database backend and stands in for Postgres in tests.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"document-rag/internal/helper"
	"document-rag/internal/models"
)

type Store struct {
	mu        sync.RWMutex
	documents []models.DocumentRecord
	hashes    map[string]struct{}
	chunks    []models.Chunk
	nextID    int64
	logger    zerolog.Logger
	now       func() time.Time
}

func New() *Store {
	return &Store{
		hashes: make(map[string]struct{}),
		logger: log.Logger,
		now:    time.Now,
	}
}

// WithLogger replaces the logger used for global-scan warnings.
func (s *Store) WithLogger(l zerolog.Logger) *Store {
	s.logger = l
	return s
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStorageUnavailable, err)
}

func (s *Store) FindByHash(ctx context.Context, hash string) (*models.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("find document", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.documents {
		if doc.ContentHash == hash {
			return &doc, nil
		}
	}
	return nil, nil
}

func (s *Store) Insert(ctx context.Context, rec *models.DocumentRecord) error {
	if err := ctx.Err(); err != nil {
		return storageErr("insert document", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hashes[rec.ContentHash]; ok {
		return fmt.Errorf("document %s: %w", rec.ContentHash, models.ErrAlreadyExists)
	}
	s.nextID++
	rec.ID = s.nextID
	rec.CreatedAt = s.now()
	s.hashes[rec.ContentHash] = struct{}{}
	s.documents = append(s.documents, *rec)
	return nil
}

// SaveAll appends chunks atomically: either every chunk becomes visible or,
// on error, none does.
func (s *Store) SaveAll(ctx context.Context, chunks []models.Chunk) error {
	if err := ctx.Err(); err != nil {
		return storageErr("save chunks", err)
	}
	batch := make([]models.Chunk, len(chunks))
	now := s.now()
	for i, c := range chunks {
		id, err := helper.GenerateUUID()
		if err != nil {
			return storageErr("save chunks", err)
		}
		c.ID = id
		c.CreatedAt = now
		c.Embedding = slices.Clone(c.Embedding)
		batch[i] = c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, batch...)
	for i := range chunks {
		chunks[i].ID = batch[i].ID
		chunks[i].CreatedAt = now
	}
	return nil
}

func (s *Store) FetchByFilename(ctx context.Context, filename string) ([]models.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("fetch chunks", err)
	}
	if filename == "" {
		s.logger.Warn().Msg("fetching chunks without a filename: scanning the entire corpus")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Chunk
	for _, c := range s.chunks {
		if filename == "" || c.Metadata.Filename == filename {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) HasChunks(ctx context.Context, contentHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, storageErr("count chunks", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.ContainsFunc(s.chunks, func(c models.Chunk) bool {
		return c.Metadata.ContentHash == contentHash
	}), nil
}

// Count returns the number of registered documents and stored chunks.
func (s *Store) Count() (documents, chunks int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents), len(s.chunks)
}
