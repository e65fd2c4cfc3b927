package models

import (
	"time"
)

// ChunkingMethod selects how a transcript's segments are grouped into chunks
type ChunkingMethod string

const (
	ChunkingMethodSpeaker ChunkingMethod = "speaker"
	ChunkingMethodTime    ChunkingMethod = "time"
	ChunkingMethodHybrid  ChunkingMethod = "hybrid"
)

// ParseChunkingMethod converts a stored setting value into a ChunkingMethod
func ParseChunkingMethod(s string) (ChunkingMethod, error) {
	switch ChunkingMethod(s) {
	case ChunkingMethodSpeaker, ChunkingMethodTime, ChunkingMethodHybrid:
		return ChunkingMethod(s), nil
	}
	return "", &ValidationError{Field: "chunking_method", Message: "unknown chunking method: " + s}
}

// TextChunk represents a bounded span of transcript text, the unit of
// retrieval. Chunks are derived from segments and regenerable; adjacent
// chunks may overlap in time by the configured overlap window but never
// share a chunk index.
type TextChunk struct {
	ID           string         `json:"id"`
	TranscriptID string         `json:"transcript_id"`
	Text         string         `json:"text"`
	StartTime    float64        `json:"start_time"`
	EndTime      float64        `json:"end_time"`
	Speaker      string         `json:"speaker,omitempty"` // set only for single-speaker chunks
	Speakers     []string       `json:"speakers,omitempty"`
	ChunkIndex   int            `json:"chunk_index"`
	WordCount    int            `json:"word_count"`
	Method       ChunkingMethod `json:"method"`
	CreatedAt    time.Time      `json:"created_at,omitempty"`
}

// Duration returns the time span of the chunk in seconds.
func (c *TextChunk) Duration() float64 {
	return c.EndTime - c.StartTime
}

// Validate checks if the chunk is valid
func (c *TextChunk) Validate() error {
	if c.ID == "" {
		return &ValidationError{Field: "id", Message: "chunk ID is required"}
	}
	if c.TranscriptID == "" {
		return &ValidationError{Field: "transcript_id", Message: "transcript ID is required"}
	}
	if c.Text == "" {
		return &ValidationError{Field: "text", Message: "text is required"}
	}
	if c.ChunkIndex < 0 {
		return &ValidationError{Field: "chunk_index", Message: "chunk index cannot be negative"}
	}
	if c.EndTime < c.StartTime {
		return &ValidationError{Field: "end_time", Message: "end time precedes start time"}
	}
	return nil
}

// SearchResult represents a single retrieval hit with its similarity score
// and 1-based rank in the result set
type SearchResult struct {
	Chunk TextChunk `json:"chunk"`
	Score float32   `json:"score"` // similarity score (0-1, higher is better)
	Rank  int       `json:"rank"`
}

// TranscriptRelevance aggregates per-chunk scores for one transcript.
// Used to pick the most relevant transcripts in project conversations.
type TranscriptRelevance struct {
	TranscriptID   string  `json:"transcript_id"`
	AggregateScore float32 `json:"aggregate_score"`
	MatchCount     int     `json:"match_count"`
}
