package config

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	"transcript-chat/internal/models"
)

// Default values applied before any stored settings are read
const (
	DefaultContextChunks           = 5
	DefaultConversationMemoryLimit = 10
	DefaultMaxChunkSize            = 30.0 // seconds
	DefaultMinChunkSize            = 2.0  // seconds
	DefaultChunkOverlap            = 5.0  // seconds
	DefaultDirectLLMContextLimit   = 8000 // characters
	DefaultDirectLLMMemoryLimit    = 2000 // characters
	DefaultMemoryReserveFactor     = 0.2
	DefaultSafetyMarginFactor      = 0.1
	DefaultMinRetrievalScore       = 0.3
	DefaultMaxProjectTranscripts   = 5
	DefaultChatModel               = "llama-3.2-3b-instruct"
	DefaultEmbeddingModel          = "nomic-embed-text"
)

// TranscriptSelection selects how project conversations pick transcripts
type TranscriptSelection string

const (
	SelectRecency   TranscriptSelection = "recency"
	SelectRelevance TranscriptSelection = "relevance"
	SelectAll       TranscriptSelection = "all"
)

// ChatConfig is the process-wide configuration for the conversation
// engine. Loaded once at service start from the settings store, mutable
// via Update, re-loadable via Reload.
type ChatConfig struct {
	ContextChunks            int                     `json:"context_chunks"`
	ConversationMemoryLimit  int                     `json:"conversation_memory_limit"`
	ChunkingMethod           models.ChunkingMethod   `json:"chunking_method"`
	MaxChunkSize             float64                 `json:"max_chunk_size"` // seconds
	MinChunkSize             float64                 `json:"min_chunk_size"` // seconds
	ChunkOverlap             float64                 `json:"chunk_overlap"`  // seconds
	ConversationMode         models.ConversationMode `json:"conversation_mode"`
	DirectLLMContextLimit    int                     `json:"direct_llm_context_limit"` // characters
	DirectLLMMemoryLimit     int                     `json:"direct_llm_memory_limit"`  // characters
	DynamicContextManagement bool                    `json:"dynamic_context_management"`
	MemoryReserveFactor      float64                 `json:"memory_reserve_factor"`
	SafetyMarginFactor       float64                 `json:"safety_margin_factor"`
	MinRetrievalScore        float32                 `json:"min_retrieval_score"`
	MaxProjectTranscripts    int                     `json:"max_project_transcripts"`
	TranscriptSelection      TranscriptSelection     `json:"transcript_selection"`
	ChatModel                string                  `json:"chat_model"`
	EmbeddingModel           string                  `json:"embedding_model"`
}

// DefaultChatConfig returns a configuration with all defaults applied
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		ContextChunks:            DefaultContextChunks,
		ConversationMemoryLimit:  DefaultConversationMemoryLimit,
		ChunkingMethod:           models.ChunkingMethodSpeaker,
		MaxChunkSize:             DefaultMaxChunkSize,
		MinChunkSize:             DefaultMinChunkSize,
		ChunkOverlap:             DefaultChunkOverlap,
		ConversationMode:         models.ModeRAG,
		DirectLLMContextLimit:    DefaultDirectLLMContextLimit,
		DirectLLMMemoryLimit:     DefaultDirectLLMMemoryLimit,
		DynamicContextManagement: true,
		MemoryReserveFactor:      DefaultMemoryReserveFactor,
		SafetyMarginFactor:       DefaultSafetyMarginFactor,
		MinRetrievalScore:        DefaultMinRetrievalScore,
		MaxProjectTranscripts:    DefaultMaxProjectTranscripts,
		TranscriptSelection:      SelectRelevance,
		ChatModel:                DefaultChatModel,
		EmbeddingModel:           DefaultEmbeddingModel,
	}
}

// Validate checks the configuration for values that would break the engine
func (c *ChatConfig) Validate() error {
	if c.ContextChunks <= 0 {
		return fmt.Errorf("context_chunks must be positive")
	}
	if c.ConversationMemoryLimit <= 0 {
		return fmt.Errorf("conversation_memory_limit must be positive")
	}
	if c.MaxChunkSize <= 0 || c.MinChunkSize < 0 || c.MinChunkSize >= c.MaxChunkSize {
		return fmt.Errorf("chunk size bounds invalid: min=%.1f max=%.1f", c.MinChunkSize, c.MaxChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.MaxChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, max_chunk_size)")
	}
	if c.MemoryReserveFactor < 0 || c.MemoryReserveFactor >= 1 {
		return fmt.Errorf("memory_reserve_factor must be in [0, 1)")
	}
	if c.SafetyMarginFactor < 0 || c.SafetyMarginFactor >= 1 {
		return fmt.Errorf("safety_margin_factor must be in [0, 1)")
	}
	if c.MinRetrievalScore < 0 || c.MinRetrievalScore > 1 {
		return fmt.Errorf("min_retrieval_score must be in [0, 1]")
	}
	if _, err := models.ParseChunkingMethod(string(c.ChunkingMethod)); err != nil {
		return err
	}
	if _, err := models.ParseConversationMode(string(c.ConversationMode)); err != nil {
		return err
	}
	switch c.TranscriptSelection {
	case SelectRecency, SelectRelevance, SelectAll:
	default:
		return fmt.Errorf("unknown transcript_selection: %s", c.TranscriptSelection)
	}
	return nil
}

// SettingsSource supplies stored key/value settings. Satisfied by the
// Redis settings repository; a nil source means defaults only.
type SettingsSource interface {
	All(ctx context.Context) (map[string]string, error)
}

// Store holds the live configuration behind a read lock so conversation
// turns see a consistent snapshot while updates and reloads happen.
type Store struct {
	mu      sync.RWMutex
	current ChatConfig
	source  SettingsSource
	logger  *log.Logger
}

// NewStore creates a configuration store with defaults applied. Call Load
// to overlay persisted settings.
func NewStore(source SettingsSource, logger *log.Logger) *Store {
	return &Store{
		current: DefaultChatConfig(),
		source:  source,
		logger:  logger,
	}
}

// Snapshot returns a copy of the current configuration
func (s *Store) Snapshot() ChatConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update replaces the current configuration after validation
func (s *Store) Update(cfg ChatConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()
	return nil
}

// Load reads persisted settings and overlays them onto defaults.
// Unknown keys and unparseable values are logged and skipped so one bad
// row cannot take the engine down.
func (s *Store) Load(ctx context.Context) error {
	if s.source == nil {
		return nil
	}

	settings, err := s.source.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	cfg := DefaultChatConfig()
	for key, value := range settings {
		if err := applySetting(&cfg, key, value); err != nil {
			s.logger.Printf("Skipping setting %s=%q: %v", key, value, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("loaded config invalid: %w", err)
	}

	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()

	s.logger.Printf("Configuration loaded (%d stored settings)", len(settings))
	return nil
}

// Reload re-reads settings from the store on demand
func (s *Store) Reload(ctx context.Context) error {
	return s.Load(ctx)
}

// applySetting maps one stored key/value row onto a typed config field
func applySetting(cfg *ChatConfig, key, value string) error {
	switch key {
	case "chat.context_chunks":
		return setInt(&cfg.ContextChunks, value)
	case "chat.conversation_memory_limit":
		return setInt(&cfg.ConversationMemoryLimit, value)
	case "chat.chunking_method":
		method, err := models.ParseChunkingMethod(value)
		if err != nil {
			return err
		}
		cfg.ChunkingMethod = method
	case "chat.max_chunk_size":
		return setFloat(&cfg.MaxChunkSize, value)
	case "chat.min_chunk_size":
		return setFloat(&cfg.MinChunkSize, value)
	case "chat.chunk_overlap":
		return setFloat(&cfg.ChunkOverlap, value)
	case "chat.conversation_mode":
		mode, err := models.ParseConversationMode(value)
		if err != nil {
			return err
		}
		cfg.ConversationMode = mode
	case "chat.direct_llm_context_limit":
		return setInt(&cfg.DirectLLMContextLimit, value)
	case "chat.direct_llm_memory_limit":
		return setInt(&cfg.DirectLLMMemoryLimit, value)
	case "chat.dynamic_context_management":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		cfg.DynamicContextManagement = parsed
	case "chat.memory_reserve_factor":
		return setFloat(&cfg.MemoryReserveFactor, value)
	case "chat.safety_margin_factor":
		return setFloat(&cfg.SafetyMarginFactor, value)
	case "chat.min_retrieval_score":
		parsed, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return err
		}
		cfg.MinRetrievalScore = float32(parsed)
	case "chat.max_project_transcripts":
		return setInt(&cfg.MaxProjectTranscripts, value)
	case "chat.transcript_selection":
		cfg.TranscriptSelection = TranscriptSelection(value)
	case "chat.model":
		cfg.ChatModel = value
	case "chat.embedding_model":
		cfg.EmbeddingModel = value
	default:
		return fmt.Errorf("unknown setting key")
	}
	return nil
}

func setInt(dst *int, value string) error {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*dst = parsed
	return nil
}

func setFloat(dst *float64, value string) error {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	*dst = parsed
	return nil
}
