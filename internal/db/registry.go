package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"document-rag/internal/models"
)

// DocumentRegistry stores one write-once row per distinct content hash.
type DocumentRegistry struct {
	client *Client
}

func NewDocumentRegistry(client *Client) *DocumentRegistry {
	return &DocumentRegistry{client: client}
}

func selectDocumentByHash(db bun.IDB, hash string, row *documentRow) *bun.SelectQuery {
	return db.NewSelect().
		Model(row).
		Where("d.content_hash = ?", hash).
		OrderExpr("d.id ASC").
		Limit(1)
}

// FindByHash returns nil, nil when no document has the given hash.
func (r *DocumentRegistry) FindByHash(ctx context.Context, hash string) (*models.DocumentRecord, error) {
	db, err := r.client.DB(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	var row documentRow
	if err := selectDocumentByHash(db, hash, &row).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("find document", err)
	}
	return row.toModel(), nil
}

// Insert stores rec and fills in its ID and CreatedAt.
func (r *DocumentRegistry) Insert(ctx context.Context, rec *models.DocumentRecord) error {
	db, err := r.client.DB(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := r.client.withTimeout(ctx)
	defer cancel()

	row := &documentRow{
		ContentHash: rec.ContentHash,
		Filename:    rec.Filename,
		Persona:     rec.Persona,
		Summary:     rec.Summary,
	}
	if _, err := db.NewInsert().Model(row).Returning("id, created_at").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", rec.ContentHash, models.ErrAlreadyExists)
		}
		return storageErr("insert document", err)
	}
	rec.ID = row.ID
	rec.CreatedAt = row.CreatedAt
	return nil
}
