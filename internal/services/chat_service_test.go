package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"transcript-chat/internal/config"
	"transcript-chat/internal/models"
	"transcript-chat/internal/repositories"
)

type chatFixture struct {
	llm         *MockLLMClient
	embedding   *MockEmbeddingClient
	vectors     *MockVectorRepository
	transcripts *MockTranscriptRepository
	history     *MockChatHistoryRepository
	memoryRepo  *MockMemoryRepository
	store       *config.Store
	service     *ChatService
}

// newChatFixture wires a ChatService over mocks with a fresh conversation:
// empty history, no stored memory, transcript t-1 present.
func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()

	f := &chatFixture{
		llm:         new(MockLLMClient),
		embedding:   new(MockEmbeddingClient),
		vectors:     new(MockVectorRepository),
		transcripts: new(MockTranscriptRepository),
		history:     new(MockChatHistoryRepository),
		memoryRepo:  new(MockMemoryRepository),
		store:       config.NewStore(nil, discardLogger()),
	}

	settings := new(MockSettingsRepository)
	settings.On("Get", mock.Anything, mock.Anything).
		Return("", repositories.SettingNotFoundError("x")).Maybe()
	prompts := NewPromptService(settings, discardLogger())

	metadataStore := new(MockModelMetadataRepository)
	metadataStore.On("GetMetadata", mock.Anything, mock.Anything).
		Return(nil, repositories.ModelMetadataNotFoundError("model")).Maybe()
	metadataStore.On("SaveMetadata", mock.Anything, mock.Anything).Return(nil).Maybe()

	retrieval := NewRetrievalService(f.vectors, f.embedding, discardLogger())
	memory := NewMemoryService(f.llm, f.memoryRepo, prompts, discardLogger())
	modelContext := NewModelContextService(f.llm, metadataStore, discardLogger())

	f.service = NewChatService(f.store, f.llm, retrieval, memory, modelContext, prompts,
		f.transcripts, f.history, NewConversationLocker(), discardLogger())

	f.transcripts.On("Get", mock.Anything, "t-1").Return(&models.Transcript{
		ID:       "t-1",
		Title:    "Planning Meeting",
		FullText: "Alice opened with the roadmap. Bob raised the staffing question.",
	}, nil).Maybe()
	f.history.On("GetHistory", mock.Anything, "conv-1").Return([]models.ChatMessage{}, nil).Maybe()
	f.memoryRepo.On("GetMemory", mock.Anything, "conv-1").
		Return(nil, repositories.MemoryNotFoundError("conv-1")).Maybe()
	f.memoryRepo.On("SaveMemory", mock.Anything, mock.Anything).Return(nil).Maybe()

	return f
}

func (f *chatFixture) setMode(t *testing.T, mode models.ConversationMode) {
	t.Helper()
	cfg := f.store.Snapshot()
	cfg.ConversationMode = mode
	require.NoError(t, f.store.Update(cfg))
}

func (f *chatFixture) stubRetrieval(matches ...*repositories.ChunkMatch) {
	f.embedding.On("Embed", mock.Anything, mock.Anything).
		Return(&EmbeddingResponse{Embedding: []float32{0.1}}, nil).Maybe()
	f.vectors.On("SearchSimilar", mock.Anything, mock.Anything, mock.Anything).
		Return(matches, nil).Maybe()
}

func chatRequest(message string) *ChatRequest {
	return &ChatRequest{
		ConversationID: "conv-1",
		TranscriptID:   "t-1",
		Message:        message,
	}
}

func TestChatRequest_Validate(t *testing.T) {
	assert.Error(t, (&ChatRequest{TranscriptID: "t", Message: "m"}).Validate())
	assert.Error(t, (&ChatRequest{ConversationID: "c", Message: "m"}).Validate())
	assert.Error(t, (&ChatRequest{ConversationID: "c", TranscriptID: "t", Message: "   "}).Validate())
	assert.NoError(t, chatRequest("hello").Validate())
}

func TestChatService_VectorOnly_NoResults(t *testing.T) {
	f := newChatFixture(t)
	f.setMode(t, models.ModeVectorOnly)
	f.stubRetrieval() // no matches
	f.history.On("AppendMessages", mock.Anything, "conv-1", mock.Anything, mock.Anything).Return(nil).Once()

	resp, err := f.service.ChatWithTranscript(context.Background(), chatRequest("anything about pricing?"))
	require.NoError(t, err)

	assert.Equal(t, "I couldn't find any relevant information about that in this transcript. Try rephrasing your question or asking about a different topic.", resp.Content)
	assert.Empty(t, resp.Sources)
	assert.True(t, resp.Persisted, "the canned answer is still an exchange worth keeping")
	f.llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestChatService_VectorOnly_FormatsExcerpts(t *testing.T) {
	f := newChatFixture(t)
	f.setMode(t, models.ModeVectorOnly)
	f.stubRetrieval(&repositories.ChunkMatch{
		Chunk: models.TextChunk{
			TranscriptID: "t-1",
			Text:         "Bob raised the staffing question.",
			StartTime:    65,
			EndTime:      92,
			Speaker:      "Bob",
		},
		Score: 0.9,
	})
	f.history.On("AppendMessages", mock.Anything, "conv-1", mock.Anything, mock.Anything).Return(nil).Once()

	resp, err := f.service.ChatWithTranscript(context.Background(), chatRequest("what did Bob ask?"))
	require.NoError(t, err)

	assert.Equal(t, "1. [1:05 - 1:32] Bob: Bob raised the staffing question.", resp.Content)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, 1, resp.Sources[0].Rank)
	assert.Equal(t, models.ModeVectorOnly, resp.Mode)
	f.llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestChatService_RAG_HappyPath(t *testing.T) {
	f := newChatFixture(t)
	f.stubRetrieval(&repositories.ChunkMatch{
		Chunk: models.TextChunk{
			TranscriptID: "t-1",
			Text:         "Alice opened with the roadmap.",
			StartTime:    0,
			EndTime:      30,
			Speaker:      "Alice",
		},
		Score: 0.8,
	})

	var generated *GenerateRequest
	f.llm.On("Generate", mock.Anything, mock.AnythingOfType("*services.GenerateRequest")).
		Run(func(args mock.Arguments) { generated = args.Get(1).(*GenerateRequest) }).
		Return(&GenerateResponse{Content: "Alice presented the roadmap first."}, nil).Once()

	var persisted []*models.ChatMessage
	f.history.On("AppendMessages", mock.Anything, "conv-1", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			persisted = []*models.ChatMessage{
				args.Get(2).(*models.ChatMessage),
				args.Get(3).(*models.ChatMessage),
			}
		}).Return(nil).Once()

	resp, err := f.service.ChatWithTranscript(context.Background(), chatRequest("how did the meeting start?"))
	require.NoError(t, err)

	assert.Equal(t, "Alice presented the roadmap first.", resp.Content)
	assert.Equal(t, models.ModeRAG, resp.Mode)
	assert.True(t, resp.Persisted)
	require.Len(t, resp.Sources, 1)

	// The retrieved excerpt and the transcript title both reach the model.
	require.NotNil(t, generated)
	assert.Contains(t, generated.Context, "Alice opened with the roadmap.")
	assert.Contains(t, generated.SystemPrompt, "Planning Meeting")
	assert.Equal(t, "how did the meeting start?", generated.Message)

	// Exactly two messages, user first, assistant second.
	require.Len(t, persisted, 2)
	assert.Equal(t, models.RoleUser, persisted[0].Role)
	assert.Equal(t, "how did the meeting start?", persisted[0].Content)
	assert.Equal(t, models.RoleAssistant, persisted[1].Role)
	assert.Equal(t, resp.Content, persisted[1].Content)
	assert.Equal(t, "rag", persisted[1].Metadata["mode"])
	assert.NotEmpty(t, persisted[0].ID)
	assert.NotEqual(t, persisted[0].ID, persisted[1].ID)
}

func TestChatService_RAG_GenerationFailure(t *testing.T) {
	f := newChatFixture(t)
	f.stubRetrieval(&repositories.ChunkMatch{
		Chunk: models.TextChunk{TranscriptID: "t-1", Text: "some excerpt"},
		Score: 0.8,
	})
	f.llm.On("Generate", mock.Anything, mock.Anything).
		Return(nil, errors.New("model server timeout")).Once()

	resp, err := f.service.ChatWithTranscript(context.Background(), chatRequest("anything?"))
	require.NoError(t, err, "upstream failure surfaces as an apology, not an error")

	assert.Equal(t, "I'm sorry, I ran into a problem while answering your question. Please try asking again.", resp.Content)
	assert.False(t, resp.Persisted)
	assert.Equal(t, "generation failed: model server timeout", resp.Metadata["error"])
	f.history.AssertNotCalled(t, "AppendMessages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestChatService_RAG_EmptyModelResponse(t *testing.T) {
	f := newChatFixture(t)
	f.stubRetrieval()
	f.llm.On("Generate", mock.Anything, mock.Anything).
		Return(&GenerateResponse{Content: "   "}, nil).Once()

	resp, err := f.service.ChatWithTranscript(context.Background(), chatRequest("anything?"))
	require.NoError(t, err)

	assert.Contains(t, resp.Content, "I'm sorry")
	assert.False(t, resp.Persisted)
}

func TestChatService_DirectLLM_TruncatesOversizeTranscript(t *testing.T) {
	f := newChatFixture(t)
	f.setMode(t, models.ModeDirectLLM)

	// Static limits: 8000 characters of transcript, 2000 of memory.
	cfg := f.store.Snapshot()
	cfg.DynamicContextManagement = false
	require.NoError(t, f.store.Update(cfg))

	longTranscript := strings.Repeat("x", 50000)
	f.transcripts.ExpectedCalls = nil
	f.transcripts.On("Get", mock.Anything, "t-1").Return(&models.Transcript{
		ID:       "t-1",
		Title:    "Long Recording",
		FullText: longTranscript,
	}, nil).Once()

	var generated *GenerateRequest
	f.llm.On("Generate", mock.Anything, mock.AnythingOfType("*services.GenerateRequest")).
		Run(func(args mock.Arguments) { generated = args.Get(1).(*GenerateRequest) }).
		Return(&GenerateResponse{Content: "It is a very long recording."}, nil).Once()
	f.history.On("AppendMessages", mock.Anything, "conv-1", mock.Anything, mock.Anything).Return(nil).Once()

	resp, err := f.service.ChatWithTranscript(context.Background(), chatRequest("summarize this"))
	require.NoError(t, err)
	assert.Equal(t, models.ModeDirectLLM, resp.Mode)

	require.NotNil(t, generated)
	notice := "[Transcript truncated to fit the model's context window]"
	assert.Contains(t, generated.Context, notice)

	// The transcript body is cut to the content limit minus the reserve.
	body := strings.TrimPrefix(generated.Context, "Full transcript:\n")
	xs := strings.Count(body, "x")
	assert.Equal(t, 7500, xs)
	assert.Empty(t, resp.Sources, "direct mode has no retrieval sources")
}

func TestChatService_DirectLLM_SmallTranscriptUntouched(t *testing.T) {
	f := newChatFixture(t)
	f.setMode(t, models.ModeDirectLLM)

	cfg := f.store.Snapshot()
	cfg.DynamicContextManagement = false
	require.NoError(t, f.store.Update(cfg))

	var generated *GenerateRequest
	f.llm.On("Generate", mock.Anything, mock.AnythingOfType("*services.GenerateRequest")).
		Run(func(args mock.Arguments) { generated = args.Get(1).(*GenerateRequest) }).
		Return(&GenerateResponse{Content: "Short answer."}, nil).Once()
	f.history.On("AppendMessages", mock.Anything, "conv-1", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := f.service.ChatWithTranscript(context.Background(), chatRequest("what happened?"))
	require.NoError(t, err)

	require.NotNil(t, generated)
	assert.Contains(t, generated.Context, "Alice opened with the roadmap.")
	assert.NotContains(t, generated.Context, "[Transcript truncated")
}

func TestChatService_TranscriptNotFound(t *testing.T) {
	f := newChatFixture(t)

	req := chatRequest("anything?")
	req.TranscriptID = "missing"
	f.transcripts.On("Get", mock.Anything, "missing").
		Return(nil, repositories.TranscriptNotFoundError("missing")).Once()

	_, err := f.service.ChatWithTranscript(context.Background(), req)
	assert.Error(t, err, "a missing transcript is a caller error, not an apology")
}

func TestChatService_InvalidRequest(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.service.ChatWithTranscript(context.Background(), &ChatRequest{})
	assert.Error(t, err)

	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestChatService_ModelOverride(t *testing.T) {
	f := newChatFixture(t)
	f.stubRetrieval()

	var generated *GenerateRequest
	f.llm.On("Generate", mock.Anything, mock.AnythingOfType("*services.GenerateRequest")).
		Run(func(args mock.Arguments) { generated = args.Get(1).(*GenerateRequest) }).
		Return(&GenerateResponse{Content: "ok"}, nil).Once()
	f.history.On("AppendMessages", mock.Anything, "conv-1", mock.Anything, mock.Anything).Return(nil).Once()

	req := chatRequest("anything?")
	req.Model = "qwen2.5-7b-instruct"
	resp, err := f.service.ChatWithTranscript(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "qwen2.5-7b-instruct", resp.Model)
	require.NotNil(t, generated)
	assert.Equal(t, "qwen2.5-7b-instruct", generated.Model)
}

func TestChatService_PersistFailureStillAnswers(t *testing.T) {
	f := newChatFixture(t)
	f.stubRetrieval()
	f.llm.On("Generate", mock.Anything, mock.Anything).
		Return(&GenerateResponse{Content: "the answer"}, nil).Once()
	f.history.On("AppendMessages", mock.Anything, "conv-1", mock.Anything, mock.Anything).
		Return(errors.New("redis down")).Once()

	resp, err := f.service.ChatWithTranscript(context.Background(), chatRequest("anything?"))
	require.NoError(t, err)

	assert.Equal(t, "the answer", resp.Content)
	assert.False(t, resp.Persisted)
}

func TestChatService_SerializesTurnsPerConversation(t *testing.T) {
	f := newChatFixture(t)
	f.stubRetrieval()
	f.history.On("AppendMessages", mock.Anything, "conv-1", mock.Anything, mock.Anything).Return(nil)

	var inFlight, overlapped int32
	f.llm.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			if atomic.AddInt32(&inFlight, 1) > 1 {
				atomic.AddInt32(&overlapped, 1)
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
		}).
		Return(&GenerateResponse{Content: "One at a time."}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.service.ChatWithTranscript(context.Background(), chatRequest("what about the roadmap?"))
			assert.NoError(t, err)
			assert.True(t, resp.Persisted)
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&overlapped), "turns on one conversation must not overlap")
}

func TestChatService_DeleteConversation(t *testing.T) {
	f := newChatFixture(t)
	f.history.On("DeleteHistory", mock.Anything, "conv-1").Return(nil).Once()
	f.memoryRepo.On("DeleteMemory", mock.Anything, "conv-1").Return(nil).Once()

	require.NoError(t, f.service.DeleteConversation(context.Background(), "conv-1"))
	f.history.AssertExpectations(t)
	f.memoryRepo.AssertExpectations(t)
}

func TestChatService_ResetConversation(t *testing.T) {
	f := newChatFixture(t)
	f.memoryRepo.On("DeleteMemory", mock.Anything, "conv-1").Return(nil).Once()

	require.NoError(t, f.service.ResetConversation(context.Background(), "conv-1"))
	f.history.AssertNotCalled(t, "DeleteHistory", mock.Anything, mock.Anything)
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "0:00", formatTimestamp(0))
	assert.Equal(t, "1:05", formatTimestamp(65))
	assert.Equal(t, "59:59", formatTimestamp(3599))
	assert.Equal(t, "1:00:01", formatTimestamp(3601))
}

func TestRenderMemory(t *testing.T) {
	t.Run("nil memory", func(t *testing.T) {
		assert.Equal(t, "", renderMemory(nil, 0))
	})

	t.Run("summary and active messages", func(t *testing.T) {
		memory := &models.ConversationMemory{
			CompactedSummary: "Earlier: budget.",
			ActiveMessages: []models.ChatMessage{
				{Role: models.RoleUser, Content: "and staffing?"},
				{Role: models.RoleAssistant, Content: "Two new hires."},
			},
		}
		rendered := renderMemory(memory, 0)
		assert.Equal(t, "Summary of earlier discussion: Earlier: budget.\nuser: and staffing?\nassistant: Two new hires.", rendered)
	})

	t.Run("limit keeps newest lines", func(t *testing.T) {
		memory := &models.ConversationMemory{
			CompactedSummary: "A long summary about many earlier topics in the conversation.",
			ActiveMessages: []models.ChatMessage{
				{Role: models.RoleUser, Content: "older question"},
				{Role: models.RoleAssistant, Content: "newest answer"},
			},
		}
		rendered := renderMemory(memory, 40)
		assert.Contains(t, rendered, "newest answer")
		assert.NotContains(t, rendered, "long summary")
	})

	t.Run("limit below the newest line clips it", func(t *testing.T) {
		memory := &models.ConversationMemory{
			ActiveMessages: []models.ChatMessage{
				{Role: models.RoleAssistant, Content: "a long closing answer about everything"},
			},
		}
		assert.Equal(t, "assistant: a long cl...", renderMemory(memory, 20))
	})
}
