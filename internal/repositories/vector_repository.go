package repositories

import (
	"context"

	"transcript-chat/internal/models"
)

// VectorRepository defines the interface for vector store operations over
// transcript chunks. Abstracts ChromaDB so retrieval can be tested against
// mocks and the backend swapped.
type VectorRepository interface {
	// StoreChunks persists chunks with their embeddings. len(chunks) must
	// equal len(embeddings); each embedding belongs to the chunk at the
	// same index.
	StoreChunks(ctx context.Context, chunks []*models.TextChunk, embeddings [][]float32) error

	// SearchSimilar returns the nearest chunks to the query embedding,
	// optionally restricted to a set of transcripts.
	SearchSimilar(ctx context.Context, queryEmbedding []float32, opts SearchOptions) ([]*ChunkMatch, error)

	// GetTranscriptChunks returns all stored chunks for a transcript in
	// chunk-index order.
	GetTranscriptChunks(ctx context.Context, transcriptID string) ([]*models.TextChunk, error)

	// DeleteTranscriptChunks removes all chunks for a transcript and
	// returns how many were deleted.
	DeleteTranscriptChunks(ctx context.Context, transcriptID string) (int, error)

	// Stats reports totals for the chunk collection.
	Stats(ctx context.Context) (*StoreStats, error)

	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// SearchOptions represents options for vector search
type SearchOptions struct {
	Limit         int      `json:"limit"`
	TranscriptIDs []string `json:"transcript_ids,omitempty"` // empty means all transcripts
	MinScore      float32  `json:"min_score"`
}

// ChunkMatch represents a single raw hit from the vector store
type ChunkMatch struct {
	Chunk    models.TextChunk `json:"chunk"`
	Score    float32          `json:"score"` // similarity (0-1, higher is better)
	Distance float32          `json:"distance"`
}

// StoreStats represents totals for the vector store
type StoreStats struct {
	ChunkCount      int            `json:"chunk_count"`
	TranscriptCount int            `json:"transcript_count"`
	ChunksPerMethod map[string]int `json:"chunks_per_method,omitempty"`
}

// VectorRepositoryError represents errors from the vector repository
type VectorRepositoryError struct {
	Operation string
	Err       error
	Message   string
}

func (e *VectorRepositoryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Operation + ": " + e.Err.Error()
	}
	return e.Operation + ": unknown error"
}

func (e *VectorRepositoryError) Unwrap() error {
	return e.Err
}

// NewVectorRepositoryError creates a new vector repository error
func NewVectorRepositoryError(operation string, err error, message string) *VectorRepositoryError {
	return &VectorRepositoryError{
		Operation: operation,
		Err:       err,
		Message:   message,
	}
}
