package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"transcript-chat/internal/config"
	"transcript-chat/internal/models"
	"transcript-chat/internal/repositories"
)

// truncationReserve is the slice of the content limit held back for
// formatting and the truncation notice
const truncationReserve = 500

const truncationNotice = "\n\n[Transcript truncated to fit the model's context window]"

// noResultsMessage is returned verbatim in vector-only mode when retrieval
// finds nothing
const noResultsMessage = "I couldn't find any relevant information about that in this transcript. Try rephrasing your question or asking about a different topic."

// Fixed apology strings for upstream failures, per mode
var modeApologies = map[models.ConversationMode]string{
	models.ModeVectorOnly: "I'm sorry, I couldn't search the transcript just now. Please try your question again in a moment.",
	models.ModeRAG:        "I'm sorry, I ran into a problem while answering your question. Please try asking again.",
	models.ModeDirectLLM:  "I'm sorry, I couldn't process the transcript just now. Please try your question again in a moment.",
}

// ChatRequest represents one user turn in a single-transcript conversation
type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	TranscriptID   string `json:"transcript_id"`
	Message        string `json:"message"`
	Model          string `json:"model,omitempty"` // overrides the configured chat model
}

// Validate checks the chat request is processable
func (r *ChatRequest) Validate() error {
	if r.ConversationID == "" {
		return &models.ValidationError{Field: "conversation_id", Message: "conversation ID is required"}
	}
	if r.TranscriptID == "" {
		return &models.ValidationError{Field: "transcript_id", Message: "transcript ID is required"}
	}
	if strings.TrimSpace(r.Message) == "" {
		return &models.ValidationError{Field: "message", Message: "message is required"}
	}
	return nil
}

// ChatResponse represents the assistant's side of one exchange
type ChatResponse struct {
	Content          string                  `json:"content"`
	ConversationID   string                  `json:"conversation_id"`
	TranscriptID     string                  `json:"transcript_id,omitempty"`
	Mode             models.ConversationMode `json:"mode"`
	Model            string                  `json:"model,omitempty"`
	Sources          []models.SearchResult   `json:"sources,omitempty"`
	ProcessingTimeMs int64                   `json:"processing_time_ms"`
	Persisted        bool                    `json:"persisted"`
	Metadata         map[string]interface{}  `json:"metadata,omitempty"`
}

// ChatService orchestrates single-transcript conversations. Each user
// message runs through memory management, mode dispatch, context assembly
// with budget enforcement, generation and persistence. Turns on the same
// conversation are serialized; different conversations run concurrently.
type ChatService struct {
	cfg          *config.Store
	llm          LLMClientInterface
	retrieval    *RetrievalService
	memory       *MemoryService
	modelContext *ModelContextService
	prompts      *PromptService
	transcripts  repositories.TranscriptRepository
	history      repositories.ChatHistoryRepository
	logger       *log.Logger
	locks        *ConversationLocker
}

// NewChatService creates a new conversation orchestrator
func NewChatService(
	cfg *config.Store,
	llm LLMClientInterface,
	retrieval *RetrievalService,
	memory *MemoryService,
	modelContext *ModelContextService,
	prompts *PromptService,
	transcripts repositories.TranscriptRepository,
	history repositories.ChatHistoryRepository,
	locks *ConversationLocker,
	logger *log.Logger,
) *ChatService {
	if locks == nil {
		locks = NewConversationLocker()
	}
	return &ChatService{
		cfg:          cfg,
		llm:          llm,
		retrieval:    retrieval,
		memory:       memory,
		modelContext: modelContext,
		prompts:      prompts,
		transcripts:  transcripts,
		history:      history,
		logger:       logger,
		locks:        locks,
	}
}

// ChatWithTranscript processes one user message against a transcript and
// returns the assistant response. On success exactly two messages (user
// then assistant) are appended to the conversation; on upstream failure
// nothing is persisted and the response carries a fixed apology so the
// caller can retry the same message.
func (s *ChatService) ChatWithTranscript(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(req.ConversationID)
	defer unlock()

	started := time.Now()
	cfg := s.cfg.Snapshot()
	mode := cfg.ConversationMode
	model := req.Model
	if model == "" {
		model = cfg.ChatModel
	}

	transcript, err := s.transcripts.Get(ctx, req.TranscriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript %s: %w", req.TranscriptID, err)
	}

	fullHistory, err := s.history.GetHistory(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}
	memory, err := s.memory.ManageMemory(ctx, req.ConversationID, fullHistory, cfg.ConversationMemoryLimit, model)
	if err != nil {
		return nil, fmt.Errorf("failed to manage conversation memory: %w", err)
	}

	var (
		content string
		sources []models.SearchResult
	)
	switch mode {
	case models.ModeVectorOnly:
		content, sources, err = s.answerVectorOnly(ctx, req, cfg)
	case models.ModeRAG:
		content, sources, err = s.answerRAG(ctx, req, cfg, transcript, memory, model)
	case models.ModeDirectLLM:
		content, err = s.answerDirectLLM(ctx, req, cfg, transcript, memory, model)
	default:
		return nil, fmt.Errorf("unknown conversation mode: %s", mode)
	}

	response := &ChatResponse{
		ConversationID: req.ConversationID,
		TranscriptID:   req.TranscriptID,
		Mode:           mode,
		Model:          model,
		Sources:        sources,
	}

	if err != nil {
		s.logger.Printf("Turn failed for conversation %s in %s mode: %v", req.ConversationID, mode, err)
		response.Content = modeApologies[mode]
		response.ProcessingTimeMs = time.Since(started).Milliseconds()
		response.Metadata = map[string]interface{}{"error": err.Error()}
		return response, nil
	}

	response.Content = content
	response.ProcessingTimeMs = time.Since(started).Milliseconds()

	if err := s.persistExchange(ctx, req, response); err != nil {
		// The answer was generated; losing the persistence write should
		// not hide it from the user
		s.logger.Printf("Failed to persist exchange for %s: %v", req.ConversationID, err)
	} else {
		response.Persisted = true
	}
	return response, nil
}

// GetConversationHistory returns the full ordered history
func (s *ChatService) GetConversationHistory(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	return s.history.GetHistory(ctx, conversationID)
}

// ResetConversation clears the compacted memory but keeps the history
func (s *ChatService) ResetConversation(ctx context.Context, conversationID string) error {
	return s.memory.Reset(ctx, conversationID)
}

// DeleteConversation removes the history and memory entirely
func (s *ChatService) DeleteConversation(ctx context.Context, conversationID string) error {
	unlock := s.locks.lock(conversationID)
	defer unlock()

	if err := s.history.DeleteHistory(ctx, conversationID); err != nil && !repositories.IsNotFound(err) {
		return fmt.Errorf("failed to delete conversation history: %w", err)
	}
	return s.memory.Reset(ctx, conversationID)
}

// answerVectorOnly formats retrieved excerpts directly, no LLM call
func (s *ChatService) answerVectorOnly(ctx context.Context, req *ChatRequest, cfg config.ChatConfig) (string, []models.SearchResult, error) {
	results, err := s.retrieval.Retrieve(ctx, req.Message, RetrievalOptions{
		Limit:         cfg.ContextChunks,
		TranscriptIDs: []string{req.TranscriptID},
		MinScore:      cfg.MinRetrievalScore,
	})
	if err != nil {
		return "", nil, err
	}
	if len(results) == 0 {
		return noResultsMessage, nil, nil
	}
	return formatExcerpts(results), results, nil
}

// answerRAG merges retrieval and memory into the system prompt context
func (s *ChatService) answerRAG(ctx context.Context, req *ChatRequest, cfg config.ChatConfig, transcript *models.Transcript, memory *models.ConversationMemory, model string) (string, []models.SearchResult, error) {
	results, err := s.retrieval.Retrieve(ctx, req.Message, RetrievalOptions{
		Limit:         cfg.ContextChunks,
		TranscriptIDs: []string{req.TranscriptID},
		MinScore:      cfg.MinRetrievalScore,
	})
	if err != nil {
		return "", nil, err
	}

	var contextBlock strings.Builder
	if len(results) > 0 {
		contextBlock.WriteString("Relevant transcript excerpts:\n")
		contextBlock.WriteString(formatExcerpts(results))
	} else {
		contextBlock.WriteString("No transcript excerpts matched this question.")
	}
	if memoryText := renderMemory(memory, 0); memoryText != "" {
		contextBlock.WriteString("\n\nConversation so far:\n")
		contextBlock.WriteString(memoryText)
	}

	content, err := s.generate(ctx, transcript.Title, req.Message, contextBlock.String(), model)
	if err != nil {
		return "", nil, err
	}
	return content, results, nil
}

// answerDirectLLM sends the full transcript text, enforcing the context
// budget by truncation
func (s *ChatService) answerDirectLLM(ctx context.Context, req *ChatRequest, cfg config.ChatConfig, transcript *models.Transcript, memory *models.ConversationMemory, model string) (string, error) {
	contentLimit, memoryLimit := s.directLimits(ctx, cfg, model)

	transcriptText := transcript.BestText()
	memoryText := renderMemory(memory, 0)

	if len(transcriptText)+len(memoryText) > contentLimit+memoryLimit {
		if len(transcriptText) > contentLimit {
			cut := contentLimit - truncationReserve
			if cut < 0 {
				cut = 0
			}
			transcriptText = transcriptText[:cut] + truncationNotice
			s.logger.Printf("Transcript %s truncated to %d characters for direct mode", req.TranscriptID, cut)
		}
		memoryText = renderMemory(memory, memoryLimit)
	}

	var contextBlock strings.Builder
	contextBlock.WriteString("Full transcript:\n")
	contextBlock.WriteString(transcriptText)
	if memoryText != "" {
		contextBlock.WriteString("\n\nConversation so far:\n")
		contextBlock.WriteString(memoryText)
	}

	return s.generate(ctx, transcript.Title, req.Message, contextBlock.String(), model)
}

// directLimits returns the character budgets for the direct path: model
// derived when dynamic context management is on, static config otherwise
func (s *ChatService) directLimits(ctx context.Context, cfg config.ChatConfig, model string) (int, int) {
	if !cfg.DynamicContextManagement {
		return cfg.DirectLLMContextLimit, cfg.DirectLLMMemoryLimit
	}
	budget := s.modelContext.CalculateContextBudget(ctx, model, cfg.SafetyMarginFactor, cfg.MemoryReserveFactor)
	// token budgets to characters, matching the token estimator's ratio
	return budget.ContentBudget * 4, budget.MemoryReserve * 4
}

func (s *ChatService) generate(ctx context.Context, transcriptTitle, message, contextBlock, model string) (string, error) {
	systemPrompt := s.prompts.GetProcessedPrompt(ctx, PromptCategoryChat, PromptTypeSystem,
		map[string]string{"title": transcriptTitle})

	resp, err := s.llm.Generate(ctx, &GenerateRequest{
		Model:        model,
		SystemPrompt: systemPrompt,
		Message:      message,
		Context:      contextBlock,
		Temperature:  0.7,
	})
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("model returned an empty response")
	}
	return resp.Content, nil
}

// persistExchange appends the user and assistant messages as one atomic
// pair
func (s *ChatService) persistExchange(ctx context.Context, req *ChatRequest, response *ChatResponse) error {
	now := time.Now()
	userMsg := &models.ChatMessage{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		Role:           models.RoleUser,
		Content:        req.Message,
		Timestamp:      now,
	}
	assistantMsg := &models.ChatMessage{
		ID:             uuid.New().String(),
		ConversationID: req.ConversationID,
		Role:           models.RoleAssistant,
		Content:        response.Content,
		Timestamp:      now,
		Metadata: map[string]interface{}{
			"mode":               string(response.Mode),
			"model":              response.Model,
			"processing_time_ms": response.ProcessingTimeMs,
			"source_count":       len(response.Sources),
		},
	}
	return s.history.AppendMessages(ctx, req.ConversationID, userMsg, assistantMsg)
}

// formatExcerpts renders search results as a numbered excerpt list
func formatExcerpts(results []models.SearchResult) string {
	var b strings.Builder
	for i, result := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. [%s - %s]", result.Rank, formatTimestamp(result.Chunk.StartTime), formatTimestamp(result.Chunk.EndTime))
		if result.Chunk.Speaker != "" {
			fmt.Fprintf(&b, " %s:", result.Chunk.Speaker)
		}
		b.WriteString(" ")
		b.WriteString(result.Chunk.Text)
	}
	return b.String()
}

// formatTimestamp renders seconds as mm:ss or h:mm:ss
func formatTimestamp(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	sec := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

// renderMemory formats conversation memory for a prompt. With a positive
// limit it truncates to that many characters, preferring the most recent
// active messages over the summary and over older messages.
func renderMemory(memory *models.ConversationMemory, limit int) string {
	if memory == nil {
		return ""
	}

	lines := make([]string, 0, len(memory.ActiveMessages)+1)
	if memory.HasSummary() {
		lines = append(lines, "Summary of earlier discussion: "+memory.CompactedSummary)
	}
	for _, msg := range memory.ActiveMessages {
		lines = append(lines, string(msg.Role)+": "+msg.Content)
	}
	if len(lines) == 0 {
		return ""
	}

	if limit <= 0 {
		return strings.Join(lines, "\n")
	}

	// Take lines newest-first until the budget is spent, then restore order
	kept := make([]string, 0, len(lines))
	used := 0
	for i := len(lines) - 1; i >= 0; i-- {
		cost := len(lines[i]) + 1
		if used+cost > limit {
			break
		}
		kept = append([]string{lines[i]}, kept...)
		used += cost
	}
	// A budget smaller than the newest line clips that line rather than
	// dropping the memory block entirely
	if len(kept) == 0 {
		return clipText(lines[len(lines)-1], limit)
	}
	return strings.Join(kept, "\n")
}
