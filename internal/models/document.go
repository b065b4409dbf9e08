package models

import "time"

// DocumentRecord is the registry entry for one ingested source document.
type DocumentRecord struct {
	ID          int64
	ContentHash string
	Filename    string
	Persona     string
	Summary     string
	CreatedAt   time.Time
}

// ChunkMetadata carries the scoping fields copied from the owning document.
type ChunkMetadata struct {
	Filename    string
	ContentHash string
	Persona     string
	PageNumber  *int
}

// Chunk is a stored fragment of a document with its embedding
type Chunk struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  ChunkMetadata
	// Position is the chunk's index within its document.
	Position  int
	CreatedAt time.Time
}

// ScoredChunk is a search hit.
type ScoredChunk struct {
	Chunk
	Score float64
}

type PromptResponse struct {
	Query   string
	Source  string
	Content string
}
