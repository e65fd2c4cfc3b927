package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"transcript-chat/internal/models"
	"transcript-chat/internal/repositories"
)

// extractiveFallbackMessages is how many compacted user questions the
// deterministic fallback summary quotes when the LLM is unavailable
const extractiveFallbackMessages = 3

// MemoryService maintains the rolling conversation memory: a window of
// recent messages kept verbatim plus a cumulative summary of everything
// older. The message history is the source of truth; memory is a derived
// record that can always be rebuilt from it.
type MemoryService struct {
	llm     LLMClientInterface
	memory  repositories.MemoryRepository
	prompts *PromptService
	logger  *log.Logger
}

// NewMemoryService creates a new conversation memory service
func NewMemoryService(llm LLMClientInterface, memory repositories.MemoryRepository, prompts *PromptService, logger *log.Logger) *MemoryService {
	return &MemoryService{
		llm:     llm,
		memory:  memory,
		prompts: prompts,
		logger:  logger,
	}
}

// ManageMemory brings the stored memory for a conversation up to date with
// the full history. Below the limit every message stays active; above it
// the newest floor(limit*0.4) messages stay active and the rest are folded
// into the cumulative summary. Re-running against an unchanged history is
// a no-op that returns the stored record.
func (s *MemoryService) ManageMemory(ctx context.Context, conversationID string, history []models.ChatMessage, limit int, model string) (*models.ConversationMemory, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation ID is required")
	}
	if limit <= 0 {
		limit = 10
	}

	stored := s.load(ctx, conversationID)
	if stored != nil && stored.TotalExchanges == len(history) {
		return stored, nil
	}

	memory := &models.ConversationMemory{
		ConversationID: conversationID,
		TotalExchanges: len(history),
	}
	if stored != nil {
		memory.CompactedSummary = stored.CompactedSummary
		memory.LastCompactionAt = stored.LastCompactionAt
	}

	if len(history) <= limit {
		memory.ActiveMessages = history
		s.persist(ctx, memory)
		return memory, nil
	}

	activeCount := limit * 4 / 10
	if activeCount < 1 {
		activeCount = 1
	}
	boundary := len(history) - activeCount
	memory.ActiveMessages = history[boundary:]

	summary := s.summarize(ctx, memory.CompactedSummary, history[:boundary], model)
	memory.CompactedSummary = summary
	now := time.Now()
	memory.LastCompactionAt = &now

	s.logger.Printf("Compacted conversation %s: %d messages folded into summary, %d active",
		conversationID, boundary, activeCount)

	s.persist(ctx, memory)
	return memory, nil
}

// Reset discards the stored memory for a conversation. The next
// ManageMemory call rebuilds it from the history.
func (s *MemoryService) Reset(ctx context.Context, conversationID string) error {
	if err := s.memory.DeleteMemory(ctx, conversationID); err != nil && !repositories.IsNotFound(err) {
		return fmt.Errorf("failed to reset conversation memory: %w", err)
	}
	return nil
}

func (s *MemoryService) load(ctx context.Context, conversationID string) *models.ConversationMemory {
	stored, err := s.memory.GetMemory(ctx, conversationID)
	if err != nil {
		if !repositories.IsNotFound(err) {
			s.logger.Printf("Failed to load memory for %s, rebuilding: %v", conversationID, err)
		}
		return nil
	}
	return stored
}

func (s *MemoryService) persist(ctx context.Context, memory *models.ConversationMemory) {
	if err := s.memory.SaveMemory(ctx, memory); err != nil {
		// Memory is reconstructable from history, so a failed save only
		// costs a redundant compaction next turn
		s.logger.Printf("Failed to persist memory for %s: %v", memory.ConversationID, err)
	}
}

// summarize produces the cumulative summary of the compacted messages.
// The prior summary is threaded in as a leading synthetic turn so the new
// summary covers the whole compacted span, not just the latest slice.
func (s *MemoryService) summarize(ctx context.Context, priorSummary string, compacted []models.ChatMessage, model string) string {
	conversation := renderConversation(priorSummary, compacted)

	if s.llm != nil {
		prompt := s.prompts.GetProcessedPrompt(ctx, PromptCategoryCompaction, PromptTypeSummarize,
			map[string]string{"conversation": conversation})

		resp, err := s.llm.Generate(ctx, &GenerateRequest{
			Model:       model,
			Message:     prompt,
			Temperature: 0.2,
			MaxTokens:   300,
		})
		if err == nil && strings.TrimSpace(resp.Content) != "" {
			return strings.TrimSpace(resp.Content)
		}
		if err != nil {
			s.logger.Printf("Summarization failed, using extractive fallback: %v", err)
		}
	}

	return extractiveSummary(priorSummary, compacted)
}

// renderConversation formats messages for the summarization prompt
func renderConversation(priorSummary string, messages []models.ChatMessage) string {
	var b strings.Builder
	if priorSummary != "" {
		b.WriteString("assistant: [summary of earlier conversation] ")
		b.WriteString(priorSummary)
		b.WriteString("\n")
	}
	for _, msg := range messages {
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// extractiveSummary is the deterministic fallback: it quotes the most
// recent compacted user questions so the summary stays grounded in what
// was actually asked
func extractiveSummary(priorSummary string, compacted []models.ChatMessage) string {
	questions := make([]string, 0, extractiveFallbackMessages)
	for i := len(compacted) - 1; i >= 0 && len(questions) < extractiveFallbackMessages; i-- {
		if compacted[i].Role != models.RoleUser {
			continue
		}
		questions = append([]string{clipText(compacted[i].Content, 120)}, questions...)
	}

	var b strings.Builder
	if priorSummary != "" {
		b.WriteString(priorSummary)
		b.WriteString(" ")
	}
	if len(questions) > 0 {
		b.WriteString("Recent topics: ")
		b.WriteString(strings.Join(questions, "; "))
	} else if priorSummary == "" {
		b.WriteString("Earlier conversation compacted.")
	}
	return strings.TrimSpace(b.String())
}

// clipText truncates text to max runes, appending an ellipsis when cut
func clipText(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
