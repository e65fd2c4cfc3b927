package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"transcript-chat/internal/config"
	"transcript-chat/internal/models"
	"transcript-chat/internal/repositories"
)

// indexableTranscript has two speakers far enough apart that the default
// speaker chunking produces exactly two chunks.
func indexableTranscript() *models.Transcript {
	return &models.Transcript{
		ID:    "t-1",
		Title: "Vendor Review",
		Segments: []models.TranscriptSegment{
			{Speaker: "Alice", StartTime: 0, EndTime: 20, Text: "the roadmap review covered hiring budget and timelines"},
			{Speaker: "Bob", StartTime: 32, EndTime: 50, Text: "we should revisit the vendor contract before renewal"},
		},
	}
}

func newIndexingFixture() (*IndexingService, *MockTranscriptRepository, *MockVectorRepository, *MockEmbeddingClient) {
	transcripts := new(MockTranscriptRepository)
	vectors := new(MockVectorRepository)
	embedding := new(MockEmbeddingClient)
	chunker := NewChunkingService(config.NewStore(nil, discardLogger()), discardLogger())

	service := NewIndexingService(transcripts, vectors, chunker, embedding, nil, discardLogger())
	return service, transcripts, vectors, embedding
}

func TestIndexingService_IndexTranscript(t *testing.T) {
	service, transcripts, vectors, embedding := newIndexingFixture()

	transcripts.On("Get", mock.Anything, "t-1").Return(indexableTranscript(), nil).Once()
	embedding.On("EmbedBatch", mock.Anything, mock.Anything).
		Return([][]float32{{0.1, 0.2}, {0.3, 0.4}}, nil).Once()

	var stored []*models.TextChunk
	vectors.On("StoreChunks", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(1).([]*models.TextChunk) }).
		Return(nil).Once()

	result, err := service.IndexTranscript(context.Background(), "t-1", false)
	require.NoError(t, err)

	assert.Equal(t, "t-1", result.TranscriptID)
	assert.Equal(t, 2, result.ChunkCount)
	assert.Equal(t, "speaker", result.Method)
	assert.Equal(t, 0, result.DeletedChunks)

	require.Len(t, stored, 2)
	assert.Contains(t, stored[0].Text, "roadmap review")
	assert.Contains(t, stored[1].Text, "vendor contract")
	vectors.AssertNotCalled(t, "DeleteTranscriptChunks", mock.Anything, mock.Anything)
}

func TestIndexingService_ReindexDeletesFirst(t *testing.T) {
	service, transcripts, vectors, embedding := newIndexingFixture()

	transcripts.On("Get", mock.Anything, "t-1").Return(indexableTranscript(), nil).Once()
	vectors.On("DeleteTranscriptChunks", mock.Anything, "t-1").Return(4, nil).Once()
	embedding.On("EmbedBatch", mock.Anything, mock.Anything).
		Return([][]float32{{0.1}, {0.2}}, nil).Once()
	vectors.On("StoreChunks", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	result, err := service.IndexTranscript(context.Background(), "t-1", true)
	require.NoError(t, err)

	assert.Equal(t, 4, result.DeletedChunks)
	assert.Equal(t, 2, result.ChunkCount)
	vectors.AssertExpectations(t)
}

func TestIndexingService_NothingToIndex(t *testing.T) {
	service, transcripts, vectors, embedding := newIndexingFixture()

	transcripts.On("Get", mock.Anything, "t-empty").Return(&models.Transcript{
		ID:    "t-empty",
		Title: "Silence",
	}, nil).Once()

	result, err := service.IndexTranscript(context.Background(), "t-empty", false)
	require.NoError(t, err)

	assert.Equal(t, 0, result.ChunkCount)
	embedding.AssertNotCalled(t, "EmbedBatch", mock.Anything, mock.Anything)
	vectors.AssertNotCalled(t, "StoreChunks", mock.Anything, mock.Anything, mock.Anything)
}

func TestIndexingService_EmbeddingFailure(t *testing.T) {
	service, transcripts, vectors, embedding := newIndexingFixture()

	transcripts.On("Get", mock.Anything, "t-1").Return(indexableTranscript(), nil).Once()
	embedding.On("EmbedBatch", mock.Anything, mock.Anything).
		Return(nil, errors.New("embedding server unavailable")).Once()

	_, err := service.IndexTranscript(context.Background(), "t-1", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed")
	vectors.AssertNotCalled(t, "StoreChunks", mock.Anything, mock.Anything, mock.Anything)
}

func TestIndexingService_EmbeddingCountMismatch(t *testing.T) {
	service, transcripts, vectors, embedding := newIndexingFixture()

	transcripts.On("Get", mock.Anything, "t-1").Return(indexableTranscript(), nil).Once()
	embedding.On("EmbedBatch", mock.Anything, mock.Anything).
		Return([][]float32{{0.1}}, nil).Once()

	_, err := service.IndexTranscript(context.Background(), "t-1", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
	vectors.AssertNotCalled(t, "StoreChunks", mock.Anything, mock.Anything, mock.Anything)
}

func TestIndexingService_StoreFailure(t *testing.T) {
	service, transcripts, vectors, embedding := newIndexingFixture()

	transcripts.On("Get", mock.Anything, "t-1").Return(indexableTranscript(), nil).Once()
	embedding.On("EmbedBatch", mock.Anything, mock.Anything).
		Return([][]float32{{0.1}, {0.2}}, nil).Once()
	vectors.On("StoreChunks", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("collection unavailable")).Once()

	_, err := service.IndexTranscript(context.Background(), "t-1", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store chunks")
}

func TestIndexingService_MissingTranscript(t *testing.T) {
	service, transcripts, _, _ := newIndexingFixture()

	transcripts.On("Get", mock.Anything, "nope").
		Return(nil, repositories.TranscriptNotFoundError("nope")).Once()

	_, err := service.IndexTranscript(context.Background(), "nope", false)
	assert.Error(t, err)
}

func TestIndexingService_InvalidatesRetrievalCache(t *testing.T) {
	transcripts := new(MockTranscriptRepository)
	vectors := new(MockVectorRepository)
	embedding := new(MockEmbeddingClient)
	chunker := NewChunkingService(config.NewStore(nil, discardLogger()), discardLogger())
	retrieval := NewRetrievalService(vectors, embedding, discardLogger())
	service := NewIndexingService(transcripts, vectors, chunker, embedding, retrieval, discardLogger())

	stubEmbedding(embedding)
	vectors.On("SearchSimilar", mock.Anything, mock.Anything, mock.Anything).
		Return([]*repositories.ChunkMatch{
			{Chunk: models.TextChunk{TranscriptID: "t-1"}, Score: 0.9},
		}, nil)

	ctx := context.Background()
	_, err := retrieval.Retrieve(ctx, "budget", RetrievalOptions{Limit: 3})
	require.NoError(t, err)
	_, err = retrieval.Retrieve(ctx, "budget", RetrievalOptions{Limit: 3})
	require.NoError(t, err)
	vectors.AssertNumberOfCalls(t, "SearchSimilar", 1)

	transcripts.On("Get", mock.Anything, "t-1").Return(indexableTranscript(), nil).Once()
	embedding.On("EmbedBatch", mock.Anything, mock.Anything).
		Return([][]float32{{0.1}, {0.2}}, nil).Once()
	vectors.On("StoreChunks", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	_, err = service.IndexTranscript(ctx, "t-1", false)
	require.NoError(t, err)

	_, err = retrieval.Retrieve(ctx, "budget", RetrievalOptions{Limit: 3})
	require.NoError(t, err)
	vectors.AssertNumberOfCalls(t, "SearchSimilar", 2)
}

func TestIndexingService_RemoveTranscript(t *testing.T) {
	service, _, vectors, _ := newIndexingFixture()

	vectors.On("DeleteTranscriptChunks", mock.Anything, "t-1").Return(7, nil).Once()
	deleted, err := service.RemoveTranscript(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, 7, deleted)

	vectors.On("DeleteTranscriptChunks", mock.Anything, "t-bad").
		Return(0, errors.New("collection unavailable")).Once()
	_, err = service.RemoveTranscript(context.Background(), "t-bad")
	assert.Error(t, err)
}
