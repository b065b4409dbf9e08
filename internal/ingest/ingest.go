package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"document-rag/internal/embedding"
	"document-rag/internal/models"
	"document-rag/internal/parser"
)

type Registry interface {
	FindByHash(ctx context.Context, hash string) (*models.DocumentRecord, error)
	Insert(ctx context.Context, rec *models.DocumentRecord) error
}

type ChunkStore interface {
	SaveAll(ctx context.Context, chunks []models.Chunk) error
	HasChunks(ctx context.Context, contentHash string) (bool, error)
}

type Extractor interface {
	Extract(filename string, content []byte) ([]parser.Section, error)
}

// Classifier labels a document; optional.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
	Summarize(ctx context.Context, text string) (string, error)
}

type Status string

const (
	// StatusIngested means a new document and its chunks were stored.
	StatusIngested Status = "ingested"
	// StatusDuplicate means the content was already fully ingested; nothing
	// was written.
	StatusDuplicate Status = "duplicate"
	// StatusRepaired means the document was registered without chunks and
	// its chunks have now been written.
	StatusRepaired Status = "repaired"
)

type Result struct {
	Status   Status
	Document models.DocumentRecord
	Chunks   int
}

type Service struct {
	registry       Registry
	chunks         ChunkStore
	extractor      Extractor
	embedder       embeddings.Embedder
	classifier     Classifier
	defaultPersona string
}

type Option func(*Service)

// WithClassifier enables persona and summary generation.
func WithClassifier(c Classifier) Option {
	return func(s *Service) { s.classifier = c }
}

func WithDefaultPersona(persona string) Option {
	return func(s *Service) { s.defaultPersona = persona }
}

func NewService(registry Registry, chunks ChunkStore, extractor Extractor, embedder embeddings.Embedder, opts ...Option) *Service {
	s := &Service{
		registry:       registry,
		chunks:         chunks,
		extractor:      extractor,
		embedder:       embedder,
		defaultPersona: models.PersonaGeneral,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ContentHash is the hex SHA-256 of the raw document bytes.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Ingest stores filename unless identical content was ingested before.
// Storage errors are returned unchanged; a duplicate is reported through
// Result.Status, not as an error.
func (s *Service) Ingest(ctx context.Context, filename string, content []byte) (Result, error) {
	hash := ContentHash(content)
	logger := log.With().Str("filename", filename).Str("hash", hash).Logger()

	existing, err := s.registry.FindByHash(ctx, hash)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		return s.resume(ctx, existing, content)
	}

	sections, err := s.extractor.Extract(filename, content)
	if err != nil {
		return Result{}, fmt.Errorf("extracting %s: %w", filename, err)
	}
	if len(sections) == 0 {
		return Result{}, fmt.Errorf("%s: %w", filename, models.ErrEmptyDocument)
	}

	rec := &models.DocumentRecord{
		ContentHash: hash,
		Filename:    filename,
		Persona:     s.defaultPersona,
	}
	s.classify(ctx, rec, sections)

	chunks, err := s.buildChunks(ctx, rec, sections)
	if err != nil {
		return Result{}, err
	}

	if err := s.registry.Insert(ctx, rec); err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			// another ingestion of the same bytes registered first
			logger.Info().Msg("Document registered concurrently")
			existing, err := s.registry.FindByHash(ctx, hash)
			if err != nil {
				return Result{}, err
			}
			if existing != nil {
				return s.resume(ctx, existing, content)
			}
		}
		return Result{}, err
	}
	if err := s.chunks.SaveAll(ctx, chunks); err != nil {
		return Result{}, err
	}

	logger.Info().Int("chunks", len(chunks)).Str("persona", rec.Persona).Msg("Document ingested")
	return Result{Status: StatusIngested, Document: *rec, Chunks: len(chunks)}, nil
}

// resume handles content whose hash is already registered. A registry entry
// without chunks is treated as an unfinished ingestion and its chunks are
// written again.
func (s *Service) resume(ctx context.Context, rec *models.DocumentRecord, content []byte) (Result, error) {
	logger := log.With().Str("filename", rec.Filename).Str("hash", rec.ContentHash).Logger()

	ok, err := s.chunks.HasChunks(ctx, rec.ContentHash)
	if err != nil {
		return Result{}, err
	}
	if ok {
		logger.Info().Msg("Document already ingested, skipping")
		return Result{Status: StatusDuplicate, Document: *rec}, nil
	}

	logger.Warn().Msg("Document registered without chunks, writing chunks again")
	sections, err := s.extractor.Extract(rec.Filename, content)
	if err != nil {
		return Result{}, fmt.Errorf("extracting %s: %w", rec.Filename, err)
	}
	if len(sections) == 0 {
		return Result{}, fmt.Errorf("%s: %w", rec.Filename, models.ErrEmptyDocument)
	}
	chunks, err := s.buildChunks(ctx, rec, sections)
	if err != nil {
		return Result{}, err
	}
	if err := s.chunks.SaveAll(ctx, chunks); err != nil {
		return Result{}, err
	}
	return Result{Status: StatusRepaired, Document: *rec, Chunks: len(chunks)}, nil
}

// classify fills persona and summary; failures keep the defaults.
func (s *Service) classify(ctx context.Context, rec *models.DocumentRecord, sections []parser.Section) {
	if s.classifier == nil {
		return
	}
	var sample strings.Builder
	for _, sec := range sections {
		sample.WriteString(sec.Text)
		sample.WriteString("\n")
	}
	if persona, err := s.classifier.Classify(ctx, sample.String()); err != nil {
		log.Warn().Err(err).Str("filename", rec.Filename).Msg("Persona classification failed")
	} else {
		rec.Persona = persona
	}
	if summary, err := s.classifier.Summarize(ctx, sample.String()); err != nil {
		log.Warn().Err(err).Str("filename", rec.Filename).Msg("Summary generation failed")
	} else {
		rec.Summary = summary
	}
}

func (s *Service) buildChunks(ctx context.Context, rec *models.DocumentRecord, sections []parser.Section) ([]models.Chunk, error) {
	texts := make([]string, len(sections))
	for i, sec := range sections {
		texts[i] = sec.Text
	}
	vectors, err := embedding.EmbedTexts(ctx, s.embedder, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", rec.Filename, err)
	}

	chunks := make([]models.Chunk, len(sections))
	for i, sec := range sections {
		chunks[i] = models.Chunk{
			Text:      sec.Text,
			Embedding: vectors[i],
			Metadata: models.ChunkMetadata{
				Filename:    rec.Filename,
				ContentHash: rec.ContentHash,
				Persona:     rec.Persona,
				PageNumber:  sec.PageNumber,
			},
			Position: i,
		}
	}
	return chunks, nil
}
