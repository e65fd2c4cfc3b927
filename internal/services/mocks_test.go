package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"transcript-chat/internal/models"
	"transcript-chat/internal/repositories"
)

// MockLLMClient mocks LLMClientInterface
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GenerateResponse), args.Error(1)
}

func (m *MockLLMClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ModelInfo), args.Error(1)
}

func (m *MockLLMClient) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockEmbeddingClient mocks EmbeddingClientInterface
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) Embed(ctx context.Context, text string) (*EmbeddingResponse, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*EmbeddingResponse), args.Error(1)
}

func (m *MockEmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbeddingClient) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockVectorRepository mocks repositories.VectorRepository
type MockVectorRepository struct {
	mock.Mock
}

func (m *MockVectorRepository) StoreChunks(ctx context.Context, chunks []*models.TextChunk, embeddings [][]float32) error {
	args := m.Called(ctx, chunks, embeddings)
	return args.Error(0)
}

func (m *MockVectorRepository) SearchSimilar(ctx context.Context, queryEmbedding []float32, opts repositories.SearchOptions) ([]*repositories.ChunkMatch, error) {
	args := m.Called(ctx, queryEmbedding, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repositories.ChunkMatch), args.Error(1)
}

func (m *MockVectorRepository) GetTranscriptChunks(ctx context.Context, transcriptID string) ([]*models.TextChunk, error) {
	args := m.Called(ctx, transcriptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TextChunk), args.Error(1)
}

func (m *MockVectorRepository) DeleteTranscriptChunks(ctx context.Context, transcriptID string) (int, error) {
	args := m.Called(ctx, transcriptID)
	return args.Int(0), args.Error(1)
}

func (m *MockVectorRepository) Stats(ctx context.Context) (*repositories.StoreStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.StoreStats), args.Error(1)
}

func (m *MockVectorRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockVectorRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockTranscriptRepository mocks repositories.TranscriptRepository
type MockTranscriptRepository struct {
	mock.Mock
}

func (m *MockTranscriptRepository) Save(ctx context.Context, transcript *models.Transcript) error {
	args := m.Called(ctx, transcript)
	return args.Error(0)
}

func (m *MockTranscriptRepository) Get(ctx context.Context, transcriptID string) (*models.Transcript, error) {
	args := m.Called(ctx, transcriptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transcript), args.Error(1)
}

func (m *MockTranscriptRepository) ListByProject(ctx context.Context, projectID string) ([]*models.Transcript, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transcript), args.Error(1)
}

func (m *MockTranscriptRepository) Delete(ctx context.Context, transcriptID string) error {
	args := m.Called(ctx, transcriptID)
	return args.Error(0)
}

// MockChatHistoryRepository mocks repositories.ChatHistoryRepository
type MockChatHistoryRepository struct {
	mock.Mock
}

func (m *MockChatHistoryRepository) AppendMessages(ctx context.Context, conversationID string, messages ...*models.ChatMessage) error {
	callArgs := make([]interface{}, 0, len(messages)+2)
	callArgs = append(callArgs, ctx, conversationID)
	for _, msg := range messages {
		callArgs = append(callArgs, msg)
	}
	args := m.Called(callArgs...)
	return args.Error(0)
}

func (m *MockChatHistoryRepository) GetHistory(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatMessage), args.Error(1)
}

func (m *MockChatHistoryRepository) CountMessages(ctx context.Context, conversationID string) (int, error) {
	args := m.Called(ctx, conversationID)
	return args.Int(0), args.Error(1)
}

func (m *MockChatHistoryRepository) DeleteHistory(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

// MockMemoryRepository mocks repositories.MemoryRepository
type MockMemoryRepository struct {
	mock.Mock
}

func (m *MockMemoryRepository) SaveMemory(ctx context.Context, memory *models.ConversationMemory) error {
	args := m.Called(ctx, memory)
	return args.Error(0)
}

func (m *MockMemoryRepository) GetMemory(ctx context.Context, conversationID string) (*models.ConversationMemory, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConversationMemory), args.Error(1)
}

func (m *MockMemoryRepository) DeleteMemory(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

// MockModelMetadataRepository mocks repositories.ModelMetadataRepository
type MockModelMetadataRepository struct {
	mock.Mock
}

func (m *MockModelMetadataRepository) SaveMetadata(ctx context.Context, metadata *models.ModelMetadata) error {
	args := m.Called(ctx, metadata)
	return args.Error(0)
}

func (m *MockModelMetadataRepository) GetMetadata(ctx context.Context, modelName string) (*models.ModelMetadata, error) {
	args := m.Called(ctx, modelName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ModelMetadata), args.Error(1)
}

// MockSettingsRepository mocks repositories.SettingsRepository
type MockSettingsRepository struct {
	mock.Mock
}

func (m *MockSettingsRepository) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockSettingsRepository) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockSettingsRepository) All(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockSettingsRepository) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockJobRepository mocks repositories.JobRepository
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) EnqueueJob(ctx context.Context, job *repositories.IndexJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) DequeueJob(ctx context.Context, workerID string) (*repositories.IndexJob, error) {
	args := m.Called(ctx, workerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.IndexJob), args.Error(1)
}

func (m *MockJobRepository) CompleteJob(ctx context.Context, jobID string, result *repositories.IndexJobResult) error {
	args := m.Called(ctx, jobID, result)
	return args.Error(0)
}

func (m *MockJobRepository) FailJob(ctx context.Context, jobID string, jobErr error) (bool, error) {
	args := m.Called(ctx, jobID, jobErr)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobRepository) GetJob(ctx context.Context, jobID string) (*repositories.IndexJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.IndexJob), args.Error(1)
}

func (m *MockJobRepository) ListJobsByStatus(ctx context.Context, status repositories.JobStatus) ([]*repositories.IndexJob, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repositories.IndexJob), args.Error(1)
}

func (m *MockJobRepository) QueueLength(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
