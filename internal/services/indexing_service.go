package services

import (
	"context"
	"fmt"
	"log"

	"transcript-chat/internal/models"
	"transcript-chat/internal/repositories"
)

// IndexingResult summarizes one indexing run
type IndexingResult struct {
	TranscriptID  string `json:"transcript_id"`
	ChunkCount    int    `json:"chunk_count"`
	DeletedChunks int    `json:"deleted_chunks,omitempty"`
	Method        string `json:"method"`
}

// IndexingService turns stored transcripts into searchable vectors: chunk,
// embed, store. Reindexing replaces a transcript's chunks wholesale.
type IndexingService struct {
	transcripts repositories.TranscriptRepository
	vectors     repositories.VectorRepository
	chunker     *ChunkingService
	embedding   EmbeddingClientInterface
	retrieval   *RetrievalService
	logger      *log.Logger
}

// NewIndexingService creates a new indexing service. The retrieval service
// is optional; when present its cache is invalidated after writes.
func NewIndexingService(
	transcripts repositories.TranscriptRepository,
	vectors repositories.VectorRepository,
	chunker *ChunkingService,
	embedding EmbeddingClientInterface,
	retrieval *RetrievalService,
	logger *log.Logger,
) *IndexingService {
	return &IndexingService{
		transcripts: transcripts,
		vectors:     vectors,
		chunker:     chunker,
		embedding:   embedding,
		retrieval:   retrieval,
		logger:      logger,
	}
}

// IndexTranscript chunks a stored transcript, embeds the chunks and writes
// them to the vector store. With reindex the transcript's existing chunks
// are deleted first so the index never holds chunks from two runs.
func (s *IndexingService) IndexTranscript(ctx context.Context, transcriptID string, reindex bool) (*IndexingResult, error) {
	transcript, err := s.transcripts.Get(ctx, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript %s: %w", transcriptID, err)
	}

	result := &IndexingResult{TranscriptID: transcriptID}

	if reindex {
		deleted, err := s.vectors.DeleteTranscriptChunks(ctx, transcriptID)
		if err != nil {
			return nil, fmt.Errorf("failed to delete existing chunks for %s: %w", transcriptID, err)
		}
		result.DeletedChunks = deleted
		s.logger.Printf("Reindexing %s: deleted %d existing chunks", transcriptID, deleted)
	}

	chunks := s.chunker.ChunkTranscript(transcriptID, transcript.Segments, transcript.BestText())
	if len(chunks) == 0 {
		s.logger.Printf("Transcript %s produced no indexable chunks", transcriptID)
		return result, nil
	}
	if len(chunks) > 0 {
		result.Method = string(chunks[0].Method)
	}

	texts := make([]string, len(chunks))
	chunkPtrs := make([]*models.TextChunk, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
		chunkPtrs[i] = &chunks[i]
	}

	embeddings, err := s.embedding.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d chunks for %s: %w", len(chunks), transcriptID, err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch for %s: %d chunks, %d embeddings",
			transcriptID, len(chunks), len(embeddings))
	}

	if err := s.vectors.StoreChunks(ctx, chunkPtrs, embeddings); err != nil {
		return nil, fmt.Errorf("failed to store chunks for %s: %w", transcriptID, err)
	}

	if s.retrieval != nil {
		s.retrieval.InvalidateCache()
	}

	result.ChunkCount = len(chunks)
	s.logger.Printf("Indexed transcript %s: %d chunks (%s)", transcriptID, result.ChunkCount, result.Method)
	return result, nil
}

// RemoveTranscript deletes a transcript's chunks from the vector store
func (s *IndexingService) RemoveTranscript(ctx context.Context, transcriptID string) (int, error) {
	deleted, err := s.vectors.DeleteTranscriptChunks(ctx, transcriptID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove chunks for %s: %w", transcriptID, err)
	}
	if s.retrieval != nil {
		s.retrieval.InvalidateCache()
	}
	return deleted, nil
}
