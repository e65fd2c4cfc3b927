package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"transcript-chat/internal/db"
	"transcript-chat/internal/models"
)

// ChunkCollection is the single ChromaDB collection holding all transcript
// chunk vectors; scoping happens through the transcript_id metadata filter.
const ChunkCollection = "transcript_chunks"

// ChromaVectorRepository implements VectorRepository using ChromaDB
type ChromaVectorRepository struct {
	client *db.ChromaDBClient
}

// NewChromaVectorRepository creates a new ChromaDB-backed vector repository
// and ensures the chunk collection exists
func NewChromaVectorRepository(ctx context.Context, client *db.ChromaDBClient) (VectorRepository, error) {
	if _, err := client.GetOrCreateCollection(ctx, ChunkCollection, nil); err != nil {
		return nil, NewVectorRepositoryError("init", err, "failed to ensure chunk collection")
	}
	return &ChromaVectorRepository{client: client}, nil
}

// StoreChunks persists chunks with their embeddings
func (r *ChromaVectorRepository) StoreChunks(ctx context.Context, chunks []*models.TextChunk, embeddings [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(embeddings) {
		return NewVectorRepositoryError("store_chunks", nil,
			fmt.Sprintf("chunk/embedding count mismatch: %d vs %d", len(chunks), len(embeddings)))
	}

	ids := make([]string, len(chunks))
	documents := make([]string, len(chunks))
	metadatas := make([]map[string]interface{}, len(chunks))

	for i, chunk := range chunks {
		if err := chunk.Validate(); err != nil {
			return NewVectorRepositoryError("store_chunks", err, "")
		}
		ids[i] = chunk.ID
		documents[i] = chunk.Text
		metadatas[i] = chunkMetadata(chunk)
	}

	if err := r.client.UpsertDocuments(ctx, ChunkCollection, ids, documents, embeddings, metadatas); err != nil {
		return NewVectorRepositoryError("store_chunks", err, "")
	}

	return nil
}

// SearchSimilar returns the nearest chunks to the query embedding
func (r *ChromaVectorRepository) SearchSimilar(ctx context.Context, queryEmbedding []float32, opts SearchOptions) ([]*ChunkMatch, error) {
	if len(queryEmbedding) == 0 {
		return nil, NewVectorRepositoryError("search_similar", nil, "query embedding is empty")
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	where := transcriptFilter(opts.TranscriptIDs)

	resp, err := r.client.Query(ctx, ChunkCollection, queryEmbedding, opts.Limit, where)
	if err != nil {
		return nil, NewVectorRepositoryError("search_similar", err, "")
	}

	if len(resp.IDs) == 0 {
		return []*ChunkMatch{}, nil
	}

	matches := make([]*ChunkMatch, 0, len(resp.IDs[0]))
	for i := range resp.IDs[0] {
		distance := resp.Distances[0][i]
		// Cosine distance to similarity
		score := 1 - distance
		if score < opts.MinScore {
			continue
		}

		chunk := chunkFromMetadata(resp.IDs[0][i], resp.Documents[0][i], resp.Metadatas[0][i])
		matches = append(matches, &ChunkMatch{
			Chunk:    chunk,
			Score:    score,
			Distance: distance,
		})
	}

	return matches, nil
}

// GetTranscriptChunks returns all stored chunks for a transcript in
// chunk-index order
func (r *ChromaVectorRepository) GetTranscriptChunks(ctx context.Context, transcriptID string) ([]*models.TextChunk, error) {
	where := map[string]interface{}{"transcript_id": transcriptID}

	resp, err := r.client.GetDocuments(ctx, ChunkCollection, where, 0, false)
	if err != nil {
		return nil, NewVectorRepositoryError("get_transcript_chunks", err, "")
	}

	chunks := make([]*models.TextChunk, 0, len(resp.IDs))
	for i := range resp.IDs {
		chunk := chunkFromMetadata(resp.IDs[i], resp.Documents[i], resp.Metadatas[i])
		chunks = append(chunks, &chunk)
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})

	return chunks, nil
}

// DeleteTranscriptChunks removes all chunks for a transcript
func (r *ChromaVectorRepository) DeleteTranscriptChunks(ctx context.Context, transcriptID string) (int, error) {
	where := map[string]interface{}{"transcript_id": transcriptID}

	deleted, err := r.client.DeleteWhere(ctx, ChunkCollection, where)
	if err != nil {
		return 0, NewVectorRepositoryError("delete_transcript_chunks", err, "")
	}

	return deleted, nil
}

// Stats reports totals for the chunk collection
func (r *ChromaVectorRepository) Stats(ctx context.Context) (*StoreStats, error) {
	resp, err := r.client.GetDocuments(ctx, ChunkCollection, nil, 0, false)
	if err != nil {
		return nil, NewVectorRepositoryError("stats", err, "")
	}

	transcripts := make(map[string]bool)
	perMethod := make(map[string]int)
	for _, meta := range resp.Metadatas {
		if id, ok := meta["transcript_id"].(string); ok {
			transcripts[id] = true
		}
		if method, ok := meta["method"].(string); ok {
			perMethod[method]++
		}
	}

	return &StoreStats{
		ChunkCount:      len(resp.IDs),
		TranscriptCount: len(transcripts),
		ChunksPerMethod: perMethod,
	}, nil
}

// Ping checks vector store connectivity
func (r *ChromaVectorRepository) Ping(ctx context.Context) error {
	return r.client.Heartbeat(ctx)
}

// Close releases client resources
func (r *ChromaVectorRepository) Close() error {
	r.client.Close()
	return nil
}

// chunkMetadata flattens a chunk into ChromaDB metadata. Chroma metadata
// values must be scalars, so the speaker set is stored comma-joined.
func chunkMetadata(chunk *models.TextChunk) map[string]interface{} {
	meta := map[string]interface{}{
		"transcript_id": chunk.TranscriptID,
		"chunk_index":   chunk.ChunkIndex,
		"start_time":    chunk.StartTime,
		"end_time":      chunk.EndTime,
		"word_count":    chunk.WordCount,
		"method":        string(chunk.Method),
	}
	if chunk.Speaker != "" {
		meta["speaker"] = chunk.Speaker
	}
	if len(chunk.Speakers) > 0 {
		meta["speakers"] = strings.Join(chunk.Speakers, ",")
	}
	return meta
}

// chunkFromMetadata rebuilds a TextChunk from a stored document and its
// metadata. Numeric metadata comes back as float64 from JSON.
func chunkFromMetadata(id, text string, meta map[string]interface{}) models.TextChunk {
	chunk := models.TextChunk{
		ID:   id,
		Text: text,
	}
	if meta == nil {
		return chunk
	}

	if v, ok := meta["transcript_id"].(string); ok {
		chunk.TranscriptID = v
	}
	if v, ok := meta["chunk_index"].(float64); ok {
		chunk.ChunkIndex = int(v)
	}
	if v, ok := meta["start_time"].(float64); ok {
		chunk.StartTime = v
	}
	if v, ok := meta["end_time"].(float64); ok {
		chunk.EndTime = v
	}
	if v, ok := meta["word_count"].(float64); ok {
		chunk.WordCount = int(v)
	}
	if v, ok := meta["method"].(string); ok {
		chunk.Method = models.ChunkingMethod(v)
	}
	if v, ok := meta["speaker"].(string); ok {
		chunk.Speaker = v
	}
	if v, ok := meta["speakers"].(string); ok && v != "" {
		chunk.Speakers = strings.Split(v, ",")
	}

	return chunk
}

// transcriptFilter builds the where clause for transcript scoping
func transcriptFilter(transcriptIDs []string) map[string]interface{} {
	switch len(transcriptIDs) {
	case 0:
		return nil
	case 1:
		return map[string]interface{}{"transcript_id": transcriptIDs[0]}
	default:
		return map[string]interface{}{
			"transcript_id": map[string]interface{}{"$in": transcriptIDs},
		}
	}
}
