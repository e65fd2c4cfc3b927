package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"transcript-chat/internal/models"
	"transcript-chat/internal/repositories"
)

const retrievalCacheTTL = 2 * time.Minute

// RetrievalOptions control one retrieval pass
type RetrievalOptions struct {
	Limit         int
	TranscriptIDs []string
	MinScore      float32
}

type cachedRetrieval struct {
	results []models.SearchResult
	expires time.Time
}

// RetrievalService performs semantic search over indexed transcript
// chunks: it embeds the query, searches the vector store, filters by
// minimum score and returns results ranked by similarity.
type RetrievalService struct {
	vectors   repositories.VectorRepository
	embedding EmbeddingClientInterface
	logger    *log.Logger

	cacheMutex sync.RWMutex
	cache      map[string]cachedRetrieval
}

// NewRetrievalService creates a new retrieval service
func NewRetrievalService(vectors repositories.VectorRepository, embedding EmbeddingClientInterface, logger *log.Logger) *RetrievalService {
	return &RetrievalService{
		vectors:   vectors,
		embedding: embedding,
		logger:    logger,
		cache:     make(map[string]cachedRetrieval),
	}
}

// Retrieve returns the most relevant chunks for a natural-language query,
// best first. Ties on score break on transcript id then chunk index so
// identical queries always return identical orderings.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, opts RetrievalOptions) ([]models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = 5
	}

	cacheKey := retrievalCacheKey(query, opts)
	if results, ok := s.fromCache(cacheKey); ok {
		return results, nil
	}

	embedding, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := s.vectors.SearchSimilar(ctx, embedding.Embedding, repositories.SearchOptions{
		Limit:         opts.Limit,
		TranscriptIDs: opts.TranscriptIDs,
		MinScore:      opts.MinScore,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := make([]models.SearchResult, 0, len(matches))
	for _, match := range matches {
		if match.Score < opts.MinScore {
			continue
		}
		results = append(results, models.SearchResult{
			Chunk: match.Chunk,
			Score: match.Score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.TranscriptID != results[j].Chunk.TranscriptID {
			return results[i].Chunk.TranscriptID < results[j].Chunk.TranscriptID
		}
		return results[i].Chunk.ChunkIndex < results[j].Chunk.ChunkIndex
	})

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}

	s.toCache(cacheKey, results)
	s.logger.Printf("Retrieved %d chunks for query (%d raw matches)", len(results), len(matches))
	return results, nil
}

// RankTranscripts scores whole transcripts against a query by summing the
// scores of their matching chunks. Used by project conversations to pick
// which transcripts to draw context from.
func (s *RetrievalService) RankTranscripts(ctx context.Context, query string, transcriptIDs []string, perTranscriptLimit int) ([]models.TranscriptRelevance, error) {
	if perTranscriptLimit <= 0 {
		perTranscriptLimit = 5
	}

	results, err := s.Retrieve(ctx, query, RetrievalOptions{
		Limit:         perTranscriptLimit * maxInt(len(transcriptIDs), 1),
		TranscriptIDs: transcriptIDs,
	})
	if err != nil {
		return nil, err
	}

	byTranscript := make(map[string]*models.TranscriptRelevance)
	for _, result := range results {
		relevance, ok := byTranscript[result.Chunk.TranscriptID]
		if !ok {
			relevance = &models.TranscriptRelevance{TranscriptID: result.Chunk.TranscriptID}
			byTranscript[result.Chunk.TranscriptID] = relevance
		}
		relevance.AggregateScore += result.Score
		relevance.MatchCount++
	}

	ranked := make([]models.TranscriptRelevance, 0, len(byTranscript))
	for _, relevance := range byTranscript {
		ranked = append(ranked, *relevance)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].AggregateScore != ranked[j].AggregateScore {
			return ranked[i].AggregateScore > ranked[j].AggregateScore
		}
		return ranked[i].TranscriptID < ranked[j].TranscriptID
	})
	return ranked, nil
}

// InvalidateCache drops all cached retrievals. Called after reindexing.
func (s *RetrievalService) InvalidateCache() {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()
	s.cache = make(map[string]cachedRetrieval)
}

func (s *RetrievalService) fromCache(key string) ([]models.SearchResult, bool) {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()

	entry, ok := s.cache[key]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.results, true
}

func (s *RetrievalService) toCache(key string, results []models.SearchResult) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	s.cache[key] = cachedRetrieval{
		results: results,
		expires: time.Now().Add(retrievalCacheTTL),
	}
}

func retrievalCacheKey(query string, opts RetrievalOptions) string {
	return fmt.Sprintf("%s|%d|%.2f|%s", query, opts.Limit, opts.MinScore, strings.Join(opts.TranscriptIDs, ","))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
