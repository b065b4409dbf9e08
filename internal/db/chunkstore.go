package db

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"document-rag/internal/helper"
	"document-rag/internal/models"
)

// ChunkStore is the append-only chunk table.
type ChunkStore struct {
	client *Client
	logger zerolog.Logger
}

func NewChunkStore(client *Client) *ChunkStore {
	return &ChunkStore{client: client, logger: log.Logger}
}

// selectChunks pushes the filename predicate into SQL; an empty filename
// selects the whole table.
func selectChunks(db bun.IDB, filename string, rows *[]chunkRow) *bun.SelectQuery {
	q := db.NewSelect().Model(rows)
	if filename != "" {
		q = q.Where("c.filename = ?", filename)
	}
	return q.OrderExpr("c.created_at ASC, c.position ASC, c.id ASC")
}

// SaveAll inserts the chunks of one document in a single transaction.
func (s *ChunkStore) SaveAll(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	db, err := s.client.DB(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rows := make([]chunkRow, len(chunks))
	for i, c := range chunks {
		id, err := helper.GenerateUUID()
		if err != nil {
			return storageErr("save chunks", err)
		}
		rows[i] = chunkRow{
			ID:          id,
			Text:        c.Text,
			Embedding:   c.Embedding,
			Filename:    c.Metadata.Filename,
			ContentHash: c.Metadata.ContentHash,
			Persona:     c.Metadata.Persona,
			PageNumber:  c.Metadata.PageNumber,
			Position:    c.Position,
			CreatedAt:   now,
		}
	}

	ctx, cancel := s.client.withTimeout(ctx)
	defer cancel()
	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
	if err != nil {
		return storageErr("save chunks", err)
	}
	for i := range chunks {
		chunks[i].ID = rows[i].ID
		chunks[i].CreatedAt = now
	}
	return nil
}

func (s *ChunkStore) FetchByFilename(ctx context.Context, filename string) ([]models.Chunk, error) {
	if filename == "" {
		s.logger.Warn().Msg("fetching chunks without a filename: scanning the entire corpus")
	}
	db, err := s.client.DB(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.client.withTimeout(ctx)
	defer cancel()

	var rows []chunkRow
	if err := selectChunks(db, filename, &rows).Scan(ctx); err != nil {
		return nil, storageErr("fetch chunks", err)
	}
	chunks := make([]models.Chunk, len(rows))
	for i := range rows {
		chunks[i] = rows[i].toModel()
	}
	return chunks, nil
}

func (s *ChunkStore) HasChunks(ctx context.Context, contentHash string) (bool, error) {
	db, err := s.client.DB(ctx)
	if err != nil {
		return false, err
	}
	ctx, cancel := s.client.withTimeout(ctx)
	defer cancel()

	ok, err := db.NewSelect().
		Model((*chunkRow)(nil)).
		Where("c.content_hash = ?", contentHash).
		Exists(ctx)
	if err != nil {
		return false, storageErr("count chunks", err)
	}
	return ok, nil
}
