package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"document-rag/internal/config"
	"document-rag/internal/models"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a lazily connecting *sql.DB with the configured driver.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPq:
		connector, err := pq.NewConnector(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("invalid dsn: %w", err)
		}
		return sql.OpenDB(connector), nil
	default:
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, pgdriver.WithTimeout(cfg.Timeout))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	}
}

func InitDB(ctx context.Context, db bun.IDB) error {
	for _, model := range []any{(*documentRow)(nil), (*chunkRow)(nil)} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	if _, err := db.NewCreateIndex().
		Model((*documentRow)(nil)).
		Index("documents_content_hash_key").
		Unique().
		IfNotExists().
		Column("content_hash").
		Exec(ctx); err != nil {
		return err
	}
	for name, column := range map[string]string{
		"chunks_filename_idx":     "filename",
		"chunks_content_hash_idx": "content_hash",
	} {
		if _, err := db.NewCreateIndex().
			Model((*chunkRow)(nil)).
			Index(name).
			IfNotExists().
			Column(column).
			Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Client is the process-wide storage handle. The connection is opened and the
// schema created on first use; later calls reuse the same *bun.DB. A failed
// first attempt is retried by the next caller.
type Client struct {
	cfg *config.DatabaseConfig
	mu  sync.Mutex
	db  *bun.DB
}

func NewClient(cfg *config.DatabaseConfig) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) DB(ctx context.Context) (*bun.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db, nil
	}

	sqldb, err := ConnectDB(c.cfg)
	if err != nil {
		return nil, storageErr("connect", err)
	}
	db := NewDB(sqldb, c.cfg.Debug)
	initCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := InitDB(initCtx, db); err != nil {
		_ = db.Close()
		return nil, storageErr("init schema", err)
	}
	c.db = db
	return db, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

// Close releases the connection pool if it was ever opened.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStorageUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == pgUniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	return false
}

type documentRow struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            int64     `bun:"id,pk,autoincrement"`
	ContentHash   string    `bun:"content_hash,notnull"`
	Filename      string    `bun:"filename,notnull"`
	Persona       string    `bun:"persona,notnull"`
	Summary       string    `bun:"summary,nullzero"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type chunkRow struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`
	ID            string    `bun:"id,pk"`
	Text          string    `bun:"text,notnull"`
	Embedding     []float32 `bun:"embedding,array,notnull"`
	Filename      string    `bun:"filename,notnull"`
	ContentHash   string    `bun:"content_hash,notnull"`
	Persona       string    `bun:"persona,notnull"`
	PageNumber    *int      `bun:"page_number"`
	Position      int       `bun:"position,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func (r *documentRow) toModel() *models.DocumentRecord {
	return &models.DocumentRecord{
		ID:          r.ID,
		ContentHash: r.ContentHash,
		Filename:    r.Filename,
		Persona:     r.Persona,
		Summary:     r.Summary,
		CreatedAt:   r.CreatedAt,
	}
}

func (r *chunkRow) toModel() models.Chunk {
	return models.Chunk{
		ID:        r.ID,
		Text:      r.Text,
		Embedding: r.Embedding,
		Metadata: models.ChunkMetadata{
			Filename:    r.Filename,
			ContentHash: r.ContentHash,
			Persona:     r.Persona,
			PageNumber:  r.PageNumber,
		},
		Position:  r.Position,
		CreatedAt: r.CreatedAt,
	}
}
