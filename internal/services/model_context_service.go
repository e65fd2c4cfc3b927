package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"transcript-chat/internal/models"
	"transcript-chat/internal/repositories"
)

const (
	// DefaultContextLimit is the last-resort window when nothing is known
	// about a model
	DefaultContextLimit = 4096

	metadataCacheTTL = 30 * time.Minute
)

// modelFamilyLimits maps model-name substrings to known context windows.
// Checked in order so the more specific patterns win.
var modelFamilyLimits = []struct {
	pattern string
	limit   int
}{
	{"llama-3", 8192},
	{"llama3", 8192},
	{"llama-2", 4096},
	{"llama2", 4096},
	{"mixtral", 32768},
	{"mistral", 32768},
	{"qwen", 32768},
	{"phi-3", 4096},
	{"phi3", 4096},
	{"gemma", 8192},
	{"nomic-embed", 8192},
}

// Metadata resolution sources, recorded on the returned record
const (
	metadataSourceCache  = "cache"
	metadataSourceStore  = "store"
	metadataSourceLive   = "live"
	metadataSourceFamily = "family_pattern"
	metadataSourceNone   = "default"
)

// TokenEstimator converts text to an approximate token count. The default
// implementation assumes four characters per token.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// CharTokenEstimator estimates tokens as ceil(len/4)
type CharTokenEstimator struct{}

func (CharTokenEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// ContextUsageReport describes how an estimated prompt compares to a
// model's usable window
type ContextUsageReport struct {
	EstimatedTokens int     `json:"estimated_tokens"`
	ContextLimit    int     `json:"context_limit"`
	UsageRatio      float64 `json:"usage_ratio"`
	Severity        string  `json:"severity"` // ok, mild, moderate, severe
	Fits            bool    `json:"fits"`
}

type cachedMetadata struct {
	metadata *models.ModelMetadata
	expires  time.Time
}

// ModelContextService resolves per-model context windows and splits them
// into content and memory budgets. Resolution walks an ordered chain -
// in-memory cache, persisted metadata, the live model server, family-name
// patterns - and always produces an answer; failures along the chain
// degrade to the next source rather than erroring.
type ModelContextService struct {
	llm       LLMClientInterface
	store     repositories.ModelMetadataRepository
	estimator TokenEstimator
	logger    *log.Logger

	cacheMutex sync.RWMutex
	cache      map[string]cachedMetadata
}

// NewModelContextService creates a new model context service. The LLM
// client and metadata store may be nil; resolution then relies on family
// patterns and the default limit.
func NewModelContextService(llm LLMClientInterface, store repositories.ModelMetadataRepository, logger *log.Logger) *ModelContextService {
	return &ModelContextService{
		llm:       llm,
		store:     store,
		estimator: CharTokenEstimator{},
		logger:    logger,
		cache:     make(map[string]cachedMetadata),
	}
}

// SetTokenEstimator replaces the token estimator. Intended for callers
// with access to a real tokenizer.
func (s *ModelContextService) SetTokenEstimator(estimator TokenEstimator) {
	if estimator != nil {
		s.estimator = estimator
	}
}

// EstimateTokens returns the approximate token count for text
func (s *ModelContextService) EstimateTokens(text string) int {
	return s.estimator.EstimateTokens(text)
}

// GetModelMetadata resolves metadata for modelName. Never returns an
// error: when every source fails the result carries the default context
// limit with IsAvailable false. With forceRefresh the cache and stored
// record are skipped so the live server is queried again.
func (s *ModelContextService) GetModelMetadata(ctx context.Context, modelName string, forceRefresh bool) *models.ModelMetadata {
	if modelName == "" {
		return s.defaultMetadata(modelName)
	}

	if !forceRefresh {
		if cached := s.fromCache(modelName); cached != nil {
			return cached
		}
		if stored := s.fromStore(ctx, modelName); stored != nil {
			s.toCache(stored)
			return stored
		}
	}

	if live := s.fromLiveServer(ctx, modelName); live != nil {
		s.persist(ctx, live)
		s.toCache(live)
		return live
	}

	if inferred := s.fromFamilyPattern(modelName); inferred != nil {
		s.toCache(inferred)
		return inferred
	}

	s.logger.Printf("No metadata source matched model %s, using default limit %d", modelName, DefaultContextLimit)
	fallback := s.defaultMetadata(modelName)
	s.toCache(fallback)
	return fallback
}

// CalculateContextBudget splits a model's window into safety margin,
// memory reserve and content budget. The parts always sum back to the
// effective limit.
func (s *ModelContextService) CalculateContextBudget(ctx context.Context, modelName string, safetyFactor, reserveFactor float64) *models.ModelContextBudget {
	metadata := s.GetModelMetadata(ctx, modelName, false)
	return s.budgetFromLimit(metadata.ContextLimit, safetyFactor, reserveFactor)
}

// BudgetForLimit computes the same split for an explicit token limit,
// used by the direct-llm mode where the window is configured rather than
// resolved from the model.
func (s *ModelContextService) BudgetForLimit(totalLimit int, safetyFactor, reserveFactor float64) *models.ModelContextBudget {
	return s.budgetFromLimit(totalLimit, safetyFactor, reserveFactor)
}

func (s *ModelContextService) budgetFromLimit(totalLimit int, safetyFactor, reserveFactor float64) *models.ModelContextBudget {
	if totalLimit <= 0 {
		totalLimit = DefaultContextLimit
	}
	safetyMargin := int(math.Floor(float64(totalLimit) * safetyFactor))
	effective := totalLimit - safetyMargin
	memoryReserve := int(math.Floor(float64(effective) * reserveFactor))
	contentBudget := effective - memoryReserve

	return &models.ModelContextBudget{
		TotalLimit:    totalLimit,
		SafetyMargin:  safetyMargin,
		MemoryReserve: memoryReserve,
		ContentBudget: contentBudget,
	}
}

// ValidateContextUsage compares an assembled prompt against the model's
// usable window and grades the overflow, if any
func (s *ModelContextService) ValidateContextUsage(ctx context.Context, modelName, prompt string) *ContextUsageReport {
	metadata := s.GetModelMetadata(ctx, modelName, false)
	estimated := s.estimator.EstimateTokens(prompt)
	usable := metadata.ContextLimit - int(math.Floor(float64(metadata.ContextLimit)*DefaultSafetyMarginFactorForValidation))

	ratio := 0.0
	if usable > 0 {
		ratio = float64(estimated) / float64(usable)
	}

	report := &ContextUsageReport{
		EstimatedTokens: estimated,
		ContextLimit:    metadata.ContextLimit,
		UsageRatio:      ratio,
		Fits:            estimated <= usable,
	}

	switch {
	case ratio <= 1.0:
		report.Severity = "ok"
	case ratio <= 1.1:
		report.Severity = "mild"
	case ratio <= 1.5:
		report.Severity = "moderate"
	default:
		report.Severity = "severe"
	}

	if !report.Fits {
		s.logger.Printf("Prompt for %s estimated at %d tokens exceeds usable window %d (%s overflow)",
			modelName, estimated, usable, report.Severity)
	}
	return report
}

// DefaultSafetyMarginFactorForValidation mirrors the configured safety
// margin used when assembling prompts
const DefaultSafetyMarginFactorForValidation = 0.1

// RecordUserOverride stores a user-supplied context limit for a model and
// refreshes the cache
func (s *ModelContextService) RecordUserOverride(ctx context.Context, modelName string, contextLimit int) (*models.ModelMetadata, error) {
	metadata := &models.ModelMetadata{
		ModelName:    modelName,
		ContextLimit: contextLimit,
		Capabilities: models.ModelCapabilities{SupportsChat: true},
		LastUpdated:  time.Now(),
		UserOverride: true,
		IsAvailable:  true,
		Source:       metadataSourceStore,
	}
	if err := metadata.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model override: %w", err)
	}
	if s.store != nil {
		if err := s.store.SaveMetadata(ctx, metadata); err != nil {
			return nil, fmt.Errorf("failed to persist model override: %w", err)
		}
	}
	s.toCache(metadata)
	return metadata, nil
}

func (s *ModelContextService) fromCache(modelName string) *models.ModelMetadata {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()

	entry, ok := s.cache[modelName]
	if !ok || time.Now().After(entry.expires) {
		return nil
	}
	clone := *entry.metadata
	clone.Source = metadataSourceCache
	return &clone
}

func (s *ModelContextService) toCache(metadata *models.ModelMetadata) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	s.cache[metadata.ModelName] = cachedMetadata{
		metadata: metadata,
		expires:  time.Now().Add(metadataCacheTTL),
	}
}

func (s *ModelContextService) fromStore(ctx context.Context, modelName string) *models.ModelMetadata {
	if s.store == nil {
		return nil
	}
	metadata, err := s.store.GetMetadata(ctx, modelName)
	if err != nil {
		if !repositories.IsNotFound(err) {
			s.logger.Printf("Model metadata lookup failed for %s: %v", modelName, err)
		}
		return nil
	}
	// User overrides never expire; resolved records go stale with the TTL
	if !metadata.UserOverride && time.Since(metadata.LastUpdated) > metadataCacheTTL {
		return nil
	}
	metadata.Source = metadataSourceStore
	return metadata
}

func (s *ModelContextService) fromLiveServer(ctx context.Context, modelName string) *models.ModelMetadata {
	if s.llm == nil {
		return nil
	}
	available, err := s.llm.ListModels(ctx)
	if err != nil {
		s.logger.Printf("Model server query failed while resolving %s: %v", modelName, err)
		return nil
	}

	for _, info := range available {
		if info.ID != modelName {
			continue
		}
		limit := DefaultContextLimit
		source := metadataSourceLive
		if familyLimit, ok := familyContextLimit(modelName); ok {
			limit = familyLimit
		}
		return &models.ModelMetadata{
			ModelName:    modelName,
			ContextLimit: limit,
			Capabilities: models.ModelCapabilities{SupportsChat: true},
			Parameters:   parametersFromName(modelName),
			LastUpdated:  time.Now(),
			IsAvailable:  true,
			Source:       source,
		}
	}
	return nil
}

func (s *ModelContextService) fromFamilyPattern(modelName string) *models.ModelMetadata {
	limit, ok := familyContextLimit(modelName)
	if !ok {
		return nil
	}
	return &models.ModelMetadata{
		ModelName:    modelName,
		ContextLimit: limit,
		Capabilities: models.ModelCapabilities{SupportsChat: true},
		Parameters:   parametersFromName(modelName),
		LastUpdated:  time.Now(),
		IsAvailable:  false,
		Source:       metadataSourceFamily,
	}
}

func (s *ModelContextService) defaultMetadata(modelName string) *models.ModelMetadata {
	return &models.ModelMetadata{
		ModelName:    modelName,
		ContextLimit: DefaultContextLimit,
		Capabilities: models.ModelCapabilities{SupportsChat: true},
		LastUpdated:  time.Now(),
		IsAvailable:  false,
		Source:       metadataSourceNone,
	}
}

func (s *ModelContextService) persist(ctx context.Context, metadata *models.ModelMetadata) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveMetadata(ctx, metadata); err != nil {
		s.logger.Printf("Failed to persist metadata for %s: %v", metadata.ModelName, err)
	}
}

// familyContextLimit infers a context window from well-known model family
// names embedded in the model identifier
func familyContextLimit(modelName string) (int, bool) {
	lower := strings.ToLower(modelName)
	for _, family := range modelFamilyLimits {
		if strings.Contains(lower, family.pattern) {
			return family.limit, true
		}
	}
	return 0, false
}

// parametersFromName extracts a parameter-count token like "7b" from the
// model identifier, if present
func parametersFromName(modelName string) string {
	for _, part := range strings.FieldsFunc(strings.ToLower(modelName), func(r rune) bool {
		return r == '-' || r == '_' || r == ':' || r == '/' || r == '.'
	}) {
		if len(part) >= 2 && len(part) <= 4 && strings.HasSuffix(part, "b") {
			digits := strings.TrimSuffix(part, "b")
			if digits != "" && strings.Trim(digits, "0123456789") == "" {
				return strings.ToUpper(part)
			}
		}
	}
	return ""
}
