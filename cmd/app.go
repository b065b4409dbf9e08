package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-rag/internal/chromemdb"
	"document-rag/internal/config"
	"document-rag/internal/db"
	"document-rag/internal/embedding"
	"document-rag/internal/ingest"
	"document-rag/internal/llmservice"
	"document-rag/internal/memstore"
	"document-rag/internal/parser"
	"document-rag/internal/search"
)

type store interface {
	ingest.Registry
	ingest.ChunkStore
	search.ChunkFetcher
}

// pgStore joins the two Postgres-backed components behind one value.
type pgStore struct {
	*db.DocumentRegistry
	*db.ChunkStore
}

// app holds everything a command needs. Only the pieces a command touches
// are ever connected.
type app struct {
	cfg      *config.Config
	client   *db.Client
	store    store
	embedder embeddings.Embedder
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log.Debug().Interface("config", cfg.RAG).Str("backend", cfg.Database.Backend).Msg("Loaded config")

	a := &app{cfg: cfg}
	switch cfg.Database.Backend {
	case config.BackendMemory:
		log.Warn().Msg("Using the in-memory backend; nothing outlives this process")
		a.store = memstore.New()
	default:
		a.client = db.NewClient(&cfg.Database)
		a.store = pgStore{db.NewDocumentRegistry(a.client), db.NewChunkStore(a.client)}
	}

	a.embedder, err = embedding.New(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing database")
		}
	}
}

func (a *app) ingestService() (*ingest.Service, error) {
	opts := []ingest.Option{ingest.WithDefaultPersona(a.cfg.RAG.DefaultPersona)}
	if a.cfg.RAG.Classify {
		model, err := llmservice.New(&a.cfg.ChatLLM)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ingest.WithClassifier(llmservice.NewClassifier(model, a.cfg.RAG.DefaultPersona)))
	}
	extractor := parser.New(a.cfg.RAG.ChunkSize, a.cfg.RAG.ChunkOverlap)
	return ingest.NewService(a.store, a.store, extractor, a.embedder, opts...), nil
}

func (a *app) engine() *search.Engine {
	var ranker search.Ranker = search.ExactRanker{Workers: a.cfg.RAG.ScoreWorkers}
	if a.cfg.RAG.Ranker == config.RankerChromem {
		ranker = chromemdb.Ranker{}
	}
	return search.NewEngine(a.store, search.WithRanker(ranker))
}

func (a *app) initSchema(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	// the first DB call connects and creates the schema
	_, err := a.client.DB(ctx)
	return err
}
