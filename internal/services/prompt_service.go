package services

import (
	"context"
	"log"
	"strings"

	"transcript-chat/internal/repositories"
)

// Prompt categories and types used by the conversation engine
const (
	PromptCategoryChat       = "transcript_chat"
	PromptCategoryCompaction = "conversation_compaction"

	PromptTypeSystem    = "system"
	PromptTypeSummarize = "summarize"
)

// builtinPrompts are the fallback templates used when no stored override
// exists or the settings store is unreachable. Variables use {{name}}.
var builtinPrompts = map[string]string{
	PromptCategoryChat + "/" + PromptTypeSystem: `You are an assistant helping the user understand the transcript "{{title}}".
Answer the user's question directly and conversationally, basing your answer ONLY on the provided transcript context and conversation memory.
If the context does not answer the question, say so honestly instead of guessing.`,

	PromptCategoryCompaction + "/" + PromptTypeSummarize: `Summarize the following conversation into 2-3 short bullet points capturing the topics discussed and any conclusions reached.
Answer only with the bullet points and nothing else.

Conversation:
{{conversation}}`,
}

// PromptService materializes system prompts from stored templates with
// named-variable substitution, falling back to builtin templates. Never
// fails: a missing or broken stored template degrades to the builtin.
type PromptService struct {
	settings repositories.SettingsRepository
	logger   *log.Logger
}

// NewPromptService creates a new prompt service. The settings repository
// may be nil, in which case only builtin templates are served.
func NewPromptService(settings repositories.SettingsRepository, logger *log.Logger) *PromptService {
	return &PromptService{
		settings: settings,
		logger:   logger,
	}
}

// GetProcessedPrompt returns the template for category/type with all
// {{variable}} placeholders substituted
func (s *PromptService) GetProcessedPrompt(ctx context.Context, category, promptType string, vars map[string]string) string {
	template := s.lookup(ctx, category, promptType)
	return substitute(template, vars)
}

// lookup resolves the raw template: stored override first, builtin second
func (s *PromptService) lookup(ctx context.Context, category, promptType string) string {
	key := category + "/" + promptType

	if s.settings != nil {
		stored, err := s.settings.Get(ctx, "prompt:"+key)
		if err == nil && strings.TrimSpace(stored) != "" {
			return stored
		}
		if err != nil && !repositories.IsNotFound(err) {
			s.logger.Printf("Prompt lookup failed for %s, using builtin: %v", key, err)
		}
	}

	if builtin, ok := builtinPrompts[key]; ok {
		return builtin
	}

	s.logger.Printf("No prompt registered for %s, using minimal fallback", key)
	return "You are a helpful assistant."
}

// substitute replaces {{name}} placeholders with their values
func substitute(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{{"+name+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
