package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-rag/internal/memstore"
	"document-rag/internal/models"
	"document-rag/internal/parser"
	"document-rag/internal/search"
)

// fakeEmbedder maps text to a letter-frequency vector over a..z.
type fakeEmbedder struct {
	calls int
	err   error
}

func letterVector(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = letterVector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return letterVector(text), nil
}

type fakeClassifier struct {
	persona string
	summary string
	err     error
}

func (f fakeClassifier) Classify(context.Context, string) (string, error) { return f.persona, f.err }
func (f fakeClassifier) Summarize(context.Context, string) (string, error) { return f.summary, f.err }

type failingChunkStore struct {
	*memstore.Store
}

func (failingChunkStore) SaveAll(context.Context, []models.Chunk) error {
	return models.ErrStorageUnavailable
}

// racingRegistry lets a competing ingestion register the same hash between
// the caller's lookup and insert.
type racingRegistry struct {
	*memstore.Store
}

func (r racingRegistry) Insert(ctx context.Context, rec *models.DocumentRecord) error {
	competitor := *rec
	competitor.Filename = "competitor.txt"
	_ = r.Store.Insert(ctx, &competitor)
	return r.Store.Insert(ctx, rec)
}

func newService(store *memstore.Store, embedder *fakeEmbedder, opts ...Option) *Service {
	return NewService(store, store, parser.New(40, 10), embedder, opts...)
}

const contract = "This agreement between buyer and seller sets the price. Payment is due within thirty days of delivery."

func TestContentHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ContentHash(nil))
	assert.Equal(t, ContentHash([]byte("a")), ContentHash([]byte("a")))
	assert.NotEqual(t, ContentHash([]byte("a")), ContentHash([]byte("b")))
}

func TestIngest_NewDocument(t *testing.T) {
	store := memstore.New().WithLogger(zerolog.Nop())
	svc := newService(store, &fakeEmbedder{}, WithDefaultPersona(models.PersonaLegal))

	res, err := svc.Ingest(context.Background(), "contract.txt", []byte(contract))
	require.NoError(t, err)

	assert.Equal(t, StatusIngested, res.Status)
	assert.Equal(t, "contract.txt", res.Document.Filename)
	assert.Equal(t, ContentHash([]byte(contract)), res.Document.ContentHash)
	assert.Equal(t, models.PersonaLegal, res.Document.Persona)
	assert.Greater(t, res.Chunks, 1)

	docs, chunks := store.Count()
	assert.Equal(t, 1, docs)
	assert.Equal(t, res.Chunks, chunks)

	stored, err := store.FetchByFilename(context.Background(), "contract.txt")
	require.NoError(t, err)
	for i, c := range stored {
		assert.Equal(t, i, c.Position)
		assert.Equal(t, "contract.txt", c.Metadata.Filename)
		assert.Equal(t, res.Document.ContentHash, c.Metadata.ContentHash)
		assert.Equal(t, models.PersonaLegal, c.Metadata.Persona)
		assert.Len(t, c.Embedding, 26)
		assert.NotEmpty(t, c.ID)
	}
}

func TestIngest_SameBytesTwiceIsDeduplicated(t *testing.T) {
	store := memstore.New().WithLogger(zerolog.Nop())
	embedder := &fakeEmbedder{}
	svc := newService(store, embedder)

	first, err := svc.Ingest(context.Background(), "contract.txt", []byte(contract))
	require.NoError(t, err)
	_, chunksAfterFirst := store.Count()

	second, err := svc.Ingest(context.Background(), "contract-copy.txt", []byte(contract))
	require.NoError(t, err)

	assert.Equal(t, StatusDuplicate, second.Status)
	assert.Equal(t, "contract.txt", second.Document.Filename)
	assert.Equal(t, first.Document.ID, second.Document.ID)
	assert.Equal(t, 1, embedder.calls)

	docs, chunks := store.Count()
	assert.Equal(t, 1, docs)
	assert.Equal(t, chunksAfterFirst, chunks)
}

func TestIngest_RegisteredWithoutChunksIsRepaired(t *testing.T) {
	store := memstore.New().WithLogger(zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, &models.DocumentRecord{
		ContentHash: ContentHash([]byte(contract)),
		Filename:    "contract.txt",
		Persona:     models.PersonaFinancial,
	}))
	svc := newService(store, &fakeEmbedder{})

	res, err := svc.Ingest(ctx, "renamed.txt", []byte(contract))
	require.NoError(t, err)
	assert.Equal(t, StatusRepaired, res.Status)
	assert.Greater(t, res.Chunks, 0)

	stored, err := store.FetchByFilename(ctx, "contract.txt")
	require.NoError(t, err)
	require.Len(t, stored, res.Chunks)
	assert.Equal(t, models.PersonaFinancial, stored[0].Metadata.Persona)

	res, err = svc.Ingest(ctx, "contract.txt", []byte(contract))
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, res.Status)

	docs, _ := store.Count()
	assert.Equal(t, 1, docs)
}

func TestIngest_LostRaceResumesExistingRecord(t *testing.T) {
	store := memstore.New().WithLogger(zerolog.Nop())
	svc := NewService(racingRegistry{store}, store, parser.New(40, 10), &fakeEmbedder{})

	res, err := svc.Ingest(context.Background(), "contract.txt", []byte(contract))
	require.NoError(t, err)
	assert.Equal(t, StatusRepaired, res.Status)
	assert.Equal(t, "competitor.txt", res.Document.Filename)

	docs, _ := store.Count()
	assert.Equal(t, 1, docs)
}

func TestIngest_EmptyDocumentWritesNothing(t *testing.T) {
	store := memstore.New().WithLogger(zerolog.Nop())
	svc := newService(store, &fakeEmbedder{})

	_, err := svc.Ingest(context.Background(), "blank.txt", []byte("  \n\t "))
	assert.ErrorIs(t, err, models.ErrEmptyDocument)

	docs, chunks := store.Count()
	assert.Zero(t, docs)
	assert.Zero(t, chunks)
}

func TestIngest_UnsupportedFormat(t *testing.T) {
	store := memstore.New().WithLogger(zerolog.Nop())
	svc := newService(store, &fakeEmbedder{})

	_, err := svc.Ingest(context.Background(), "photo.jpg", []byte{0xff, 0xd8})
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)
}

func TestIngest_EmbeddingFailureRegistersNothing(t *testing.T) {
	store := memstore.New().WithLogger(zerolog.Nop())
	svc := newService(store, &fakeEmbedder{err: errors.New("embedder down")})

	_, err := svc.Ingest(context.Background(), "contract.txt", []byte(contract))
	assert.ErrorContains(t, err, "embedder down")

	docs, _ := store.Count()
	assert.Zero(t, docs)
}

func TestIngest_StorageErrorsPropagate(t *testing.T) {
	store := memstore.New().WithLogger(zerolog.Nop())
	svc := newService(store, &fakeEmbedder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Ingest(ctx, "contract.txt", []byte(contract))
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)

	failing := NewService(store, failingChunkStore{store}, parser.New(40, 10), &fakeEmbedder{})
	_, err = failing.Ingest(context.Background(), "contract.txt", []byte(contract))
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
}

func TestIngest_Classifier(t *testing.T) {
	store := memstore.New().WithLogger(zerolog.Nop())
	svc := newService(store, &fakeEmbedder{},
		WithClassifier(fakeClassifier{persona: models.PersonaLegal, summary: "A sales contract."}))

	res, err := svc.Ingest(context.Background(), "contract.txt", []byte(contract))
	require.NoError(t, err)
	assert.Equal(t, models.PersonaLegal, res.Document.Persona)
	assert.Equal(t, "A sales contract.", res.Document.Summary)
}

func TestIngest_ClassifierFailureKeepsDefaults(t *testing.T) {
	store := memstore.New().WithLogger(zerolog.Nop())
	svc := newService(store, &fakeEmbedder{},
		WithDefaultPersona(models.PersonaTechnical),
		WithClassifier(fakeClassifier{err: errors.New("llm offline")}))

	res, err := svc.Ingest(context.Background(), "contract.txt", []byte(contract))
	require.NoError(t, err)
	assert.Equal(t, StatusIngested, res.Status)
	assert.Equal(t, models.PersonaTechnical, res.Document.Persona)
	assert.Empty(t, res.Document.Summary)
}

func TestIngestThenSearch_NoCrossDocumentLeakage(t *testing.T) {
	store := memstore.New().WithLogger(zerolog.Nop())
	embedder := &fakeEmbedder{}
	svc := newService(store, embedder)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "x.txt", []byte("zebra zone zigzag. quiet quartz quiz."))
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, "y.txt", []byte("zebra zebra zebra zone zone zigzag zoo."))
	require.NoError(t, err)

	engine := search.NewEngine(store, search.WithLogger(zerolog.Nop()))
	query, err := embedder.EmbedQuery(ctx, "zebra zoo")
	require.NoError(t, err)

	results := engine.Search(ctx, query, 10, "x.txt")
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "x.txt", r.Metadata.Filename)
	}

	all := engine.Search(ctx, query, 1, "")
	require.Len(t, all, 1)
	assert.Equal(t, "y.txt", all[0].Metadata.Filename)
}
