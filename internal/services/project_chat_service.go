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

// ProjectChatRequest represents one user turn in a project-level
// conversation spanning multiple transcripts
type ProjectChatRequest struct {
	ConversationID string `json:"conversation_id"`
	ProjectID      string `json:"project_id"`
	Message        string `json:"message"`
	Model          string `json:"model,omitempty"`
}

// Validate checks the project chat request is processable
func (r *ProjectChatRequest) Validate() error {
	if r.ConversationID == "" {
		return &models.ValidationError{Field: "conversation_id", Message: "conversation ID is required"}
	}
	if r.ProjectID == "" {
		return &models.ValidationError{Field: "project_id", Message: "project ID is required"}
	}
	if strings.TrimSpace(r.Message) == "" {
		return &models.ValidationError{Field: "message", Message: "message is required"}
	}
	return nil
}

// ProjectChatService orchestrates conversations across all transcripts in
// a project. It selects which transcripts to draw from, classifies the
// question to pick a retrieval shape, then runs the same three-mode
// dispatch as single-transcript conversations.
type ProjectChatService struct {
	cfg         *config.Store
	llm         LLMClientInterface
	retrieval   *RetrievalService
	memory      *MemoryService
	prompts     *PromptService
	classifier  *QuestionClassifier
	transcripts repositories.TranscriptRepository
	history     repositories.ChatHistoryRepository
	logger      *log.Logger
	locks       *ConversationLocker
}

// NewProjectChatService creates a new project conversation orchestrator
func NewProjectChatService(
	cfg *config.Store,
	llm LLMClientInterface,
	retrieval *RetrievalService,
	memory *MemoryService,
	prompts *PromptService,
	transcripts repositories.TranscriptRepository,
	history repositories.ChatHistoryRepository,
	locks *ConversationLocker,
	logger *log.Logger,
) *ProjectChatService {
	if locks == nil {
		locks = NewConversationLocker()
	}
	return &ProjectChatService{
		cfg:         cfg,
		llm:         llm,
		retrieval:   retrieval,
		memory:      memory,
		prompts:     prompts,
		classifier:  NewQuestionClassifier(),
		transcripts: transcripts,
		history:     history,
		logger:      logger,
		locks:       locks,
	}
}

// ChatWithProject processes one user message against a project's
// transcripts. The response metadata records which transcripts contributed
// and how the question was classified.
func (s *ProjectChatService) ChatWithProject(ctx context.Context, req *ProjectChatRequest) (*ChatResponse, error) {
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

	available, err := s.transcripts.ListByProject(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project transcripts: %w", err)
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("project %s has no transcripts", req.ProjectID)
	}

	fullHistory, err := s.history.GetHistory(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}
	memory, err := s.memory.ManageMemory(ctx, req.ConversationID, fullHistory, cfg.ConversationMemoryLimit, model)
	if err != nil {
		return nil, fmt.Errorf("failed to manage conversation memory: %w", err)
	}

	analysis := s.classifier.Classify(req.Message)
	selected, err := s.selectTranscripts(ctx, req.Message, analysis, available, cfg)
	if err != nil {
		return nil, fmt.Errorf("transcript selection failed: %w", err)
	}

	response := &ChatResponse{
		ConversationID: req.ConversationID,
		Mode:           mode,
		Model:          model,
		Metadata: map[string]interface{}{
			"project_id":    req.ProjectID,
			"question_kind": string(analysis.Kind),
		},
	}
	if len(analysis.Keywords) > 0 {
		response.Metadata["question_keywords"] = analysis.Keywords
	}

	var (
		content string
		sources []models.SearchResult
	)
	switch mode {
	case models.ModeVectorOnly:
		content, sources, err = s.answerVectorOnly(ctx, req.Message, selected, cfg)
	case models.ModeRAG, models.ModeDirectLLM:
		// Full-text direct mode does not scale past one transcript, so
		// project conversations fall back to retrieval for both LLM modes
		content, sources, err = s.answerRAG(ctx, req.Message, analysis, selected, memory, cfg, model)
	default:
		return nil, fmt.Errorf("unknown conversation mode: %s", mode)
	}

	if err != nil {
		s.logger.Printf("Project turn failed for %s in %s mode: %v", req.ConversationID, mode, err)
		response.Content = modeApologies[mode]
		response.ProcessingTimeMs = time.Since(started).Milliseconds()
		response.Metadata["error"] = err.Error()
		return response, nil
	}

	response.Content = content
	response.Sources = sources
	response.ProcessingTimeMs = time.Since(started).Milliseconds()
	response.Metadata["contributing_transcripts"] = contributingTranscripts(selected, sources)

	if err := s.persistExchange(ctx, req, response); err != nil {
		s.logger.Printf("Failed to persist project exchange for %s: %v", req.ConversationID, err)
	} else {
		response.Persisted = true
	}
	return response, nil
}

// selectTranscripts picks which project transcripts to search, per the
// configured strategy, capped at the project maximum
func (s *ProjectChatService) selectTranscripts(ctx context.Context, query string, analysis QuestionAnalysis, available []*models.Transcript, cfg config.ChatConfig) ([]*models.Transcript, error) {
	limit := cfg.MaxProjectTranscripts
	if limit <= 0 {
		limit = len(available)
	}

	switch cfg.TranscriptSelection {
	case config.SelectAll:
		if len(available) > limit {
			return available[:limit], nil
		}
		return available, nil

	case config.SelectRecency:
		// ListByProject returns newest first
		if len(available) > limit {
			return available[:limit], nil
		}
		return available, nil

	case config.SelectRelevance:
		ids := make([]string, len(available))
		byID := make(map[string]*models.Transcript, len(available))
		for i, transcript := range available {
			ids[i] = transcript.ID
			byID[transcript.ID] = transcript
		}

		// Rank on the distilled keywords so cue words and filler do not
		// steer the embedding
		rankQuery := query
		if len(analysis.Keywords) > 0 {
			rankQuery = strings.Join(analysis.Keywords, " ")
		}

		ranked, err := s.retrieval.RankTranscripts(ctx, rankQuery, ids, cfg.ContextChunks)
		if err != nil {
			return nil, err
		}

		selected := make([]*models.Transcript, 0, limit)
		for _, relevance := range ranked {
			if len(selected) == limit {
				break
			}
			if transcript, ok := byID[relevance.TranscriptID]; ok {
				selected = append(selected, transcript)
			}
		}
		// No matches anywhere degrades to recency so the turn still has
		// something to work with
		if len(selected) == 0 {
			if len(available) > limit {
				return available[:limit], nil
			}
			return available, nil
		}
		return selected, nil
	}

	return nil, fmt.Errorf("unknown transcript selection strategy: %s", cfg.TranscriptSelection)
}

func (s *ProjectChatService) answerVectorOnly(ctx context.Context, query string, selected []*models.Transcript, cfg config.ChatConfig) (string, []models.SearchResult, error) {
	results, err := s.retrieval.Retrieve(ctx, query, RetrievalOptions{
		Limit:         cfg.ContextChunks,
		TranscriptIDs: transcriptIDs(selected),
		MinScore:      cfg.MinRetrievalScore,
	})
	if err != nil {
		return "", nil, err
	}
	if len(results) == 0 {
		return noResultsMessage, nil, nil
	}
	return s.formatProjectExcerpts(results, selected), results, nil
}

func (s *ProjectChatService) answerRAG(ctx context.Context, query string, analysis QuestionAnalysis, selected []*models.Transcript, memory *models.ConversationMemory, cfg config.ChatConfig, model string) (string, []models.SearchResult, error) {
	// Thematic and comparative questions spread the chunk budget across
	// transcripts; specific questions let the best matches win regardless
	// of which transcript they came from
	var results []models.SearchResult
	var err error
	if analysis.Kind == QuestionSpecific {
		results, err = s.retrieval.Retrieve(ctx, query, RetrievalOptions{
			Limit:         cfg.ContextChunks,
			TranscriptIDs: transcriptIDs(selected),
			MinScore:      cfg.MinRetrievalScore,
		})
	} else {
		results, err = s.collatePerTranscript(ctx, query, selected, cfg)
	}
	if err != nil {
		return "", nil, err
	}

	var contextBlock strings.Builder
	if len(results) > 0 {
		contextBlock.WriteString("Relevant excerpts from the project's transcripts:\n")
		contextBlock.WriteString(s.formatProjectExcerpts(results, selected))
	} else {
		contextBlock.WriteString("No transcript excerpts matched this question.")
	}
	if memoryText := renderMemory(memory, 0); memoryText != "" {
		contextBlock.WriteString("\n\nConversation so far:\n")
		contextBlock.WriteString(memoryText)
	}

	systemPrompt := s.prompts.GetProcessedPrompt(ctx, PromptCategoryChat, PromptTypeSystem,
		map[string]string{"title": projectTitle(selected)})

	resp, err := s.llm.Generate(ctx, &GenerateRequest{
		Model:        model,
		SystemPrompt: systemPrompt,
		Message:      query,
		Context:      contextBlock.String(),
		Temperature:  0.7,
	})
	if err != nil {
		return "", nil, fmt.Errorf("generation failed: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", nil, fmt.Errorf("model returned an empty response")
	}
	return resp.Content, results, nil
}

// collatePerTranscript retrieves a small slice from each selected
// transcript so every transcript is represented in the context
func (s *ProjectChatService) collatePerTranscript(ctx context.Context, query string, selected []*models.Transcript, cfg config.ChatConfig) ([]models.SearchResult, error) {
	perTranscript := cfg.ContextChunks / len(selected)
	if perTranscript < 1 {
		perTranscript = 1
	}

	var collated []models.SearchResult
	for _, transcript := range selected {
		results, err := s.retrieval.Retrieve(ctx, query, RetrievalOptions{
			Limit:         perTranscript,
			TranscriptIDs: []string{transcript.ID},
			MinScore:      cfg.MinRetrievalScore,
		})
		if err != nil {
			return nil, err
		}
		collated = append(collated, results...)
	}

	for i := range collated {
		collated[i].Rank = i + 1
	}
	return collated, nil
}

// formatProjectExcerpts renders excerpts with their transcript titles so
// the model (or reader) can tell sources apart
func (s *ProjectChatService) formatProjectExcerpts(results []models.SearchResult, selected []*models.Transcript) string {
	titles := make(map[string]string, len(selected))
	for _, transcript := range selected {
		titles[transcript.ID] = transcript.Title
	}

	var b strings.Builder
	for i, result := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		title := titles[result.Chunk.TranscriptID]
		if title == "" {
			title = result.Chunk.TranscriptID
		}
		fmt.Fprintf(&b, "%d. (%s) [%s - %s]", i+1, title,
			formatTimestamp(result.Chunk.StartTime), formatTimestamp(result.Chunk.EndTime))
		if result.Chunk.Speaker != "" {
			fmt.Fprintf(&b, " %s:", result.Chunk.Speaker)
		}
		b.WriteString(" ")
		b.WriteString(result.Chunk.Text)
	}
	return b.String()
}

func (s *ProjectChatService) persistExchange(ctx context.Context, req *ProjectChatRequest, response *ChatResponse) error {
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
			"project_id":         req.ProjectID,
			"source_count":       len(response.Sources),
		},
	}
	return s.history.AppendMessages(ctx, req.ConversationID, userMsg, assistantMsg)
}

// contributingTranscripts lists the distinct transcripts whose chunks made
// it into the context, in result order
func contributingTranscripts(selected []*models.Transcript, sources []models.SearchResult) []string {
	titles := make(map[string]string, len(selected))
	for _, transcript := range selected {
		titles[transcript.ID] = transcript.Title
	}

	seen := make(map[string]bool)
	var contributing []string
	for _, source := range sources {
		id := source.Chunk.TranscriptID
		if seen[id] {
			continue
		}
		seen[id] = true
		if title := titles[id]; title != "" {
			contributing = append(contributing, title)
		} else {
			contributing = append(contributing, id)
		}
	}
	return contributing
}

func transcriptIDs(transcripts []*models.Transcript) []string {
	ids := make([]string, len(transcripts))
	for i, transcript := range transcripts {
		ids[i] = transcript.ID
	}
	return ids
}

func projectTitle(selected []*models.Transcript) string {
	if len(selected) == 1 {
		return selected[0].Title
	}
	return fmt.Sprintf("%d project transcripts", len(selected))
}
