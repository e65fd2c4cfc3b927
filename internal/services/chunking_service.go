package services

import (
	"fmt"
	"log"
	"strings"

	"transcript-chat/internal/config"
	"transcript-chat/internal/models"
)

// wordsPerSecond approximates speech rate when no timestamps are available
const wordsPerSecond = 10.0

// minChunkWords is the noise floor: chunks with fewer words are dropped
const minChunkWords = 5

// ChunkingOptions controls one chunking run. Zero values fall back to the
// package defaults so callers can override selectively.
type ChunkingOptions struct {
	Method       models.ChunkingMethod
	MaxChunkSize float64 // seconds
	MinChunkSize float64 // seconds
	ChunkOverlap float64 // seconds
}

// ChunkingService splits a transcript's timestamped segments into bounded
// text chunks. Pure computation: no I/O, no randomness, so identical input
// and options always produce identical chunks.
type ChunkingService struct {
	cfg    *config.Store
	logger *log.Logger
}

// NewChunkingService creates a new chunking service
func NewChunkingService(cfg *config.Store, logger *log.Logger) *ChunkingService {
	return &ChunkingService{
		cfg:    cfg,
		logger: logger,
	}
}

// ChunkTranscript chunks with the currently configured method and bounds
func (s *ChunkingService) ChunkTranscript(transcriptID string, segments []models.TranscriptSegment, fullTextFallback string) []models.TextChunk {
	snapshot := s.cfg.Snapshot()
	return s.ChunkWithOptions(transcriptID, segments, fullTextFallback, ChunkingOptions{
		Method:       snapshot.ChunkingMethod,
		MaxChunkSize: snapshot.MaxChunkSize,
		MinChunkSize: snapshot.MinChunkSize,
		ChunkOverlap: snapshot.ChunkOverlap,
	})
}

// ChunkWithOptions chunks with explicit options
func (s *ChunkingService) ChunkWithOptions(transcriptID string, segments []models.TranscriptSegment, fullTextFallback string, opts ChunkingOptions) []models.TextChunk {
	opts = normalizeOptions(opts)

	if len(segments) == 0 {
		chunks := fallbackChunks(transcriptID, fullTextFallback, opts)
		s.logger.Printf("Chunked transcript %s from full text fallback: %d chunks", transcriptID, len(chunks))
		return chunks
	}

	var groups [][]models.TranscriptSegment
	switch opts.Method {
	case models.ChunkingMethodTime:
		groups = groupSegments(segments, false, opts)
	case models.ChunkingMethodHybrid:
		groups = splitOversizeGroups(groupSegments(segments, true, opts), opts)
	default: // speaker
		groups = groupSegments(segments, true, opts)
	}

	chunks := make([]models.TextChunk, 0, len(groups))
	for _, group := range groups {
		if chunk := buildChunk(transcriptID, group, len(chunks), opts); chunk != nil {
			chunks = append(chunks, *chunk)
		}
	}

	s.logger.Printf("Chunked transcript %s: %d segments -> %d chunks (method: %s)",
		transcriptID, len(segments), len(chunks), opts.Method)

	return chunks
}

// normalizeOptions applies defaults for unset option fields
func normalizeOptions(opts ChunkingOptions) ChunkingOptions {
	if opts.Method == "" {
		opts.Method = models.ChunkingMethodSpeaker
	}
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = config.DefaultMaxChunkSize
	}
	if opts.MinChunkSize < 0 {
		opts.MinChunkSize = config.DefaultMinChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	return opts
}

// groupSegments walks segments in order and opens a new group on a
// boundary trigger. With respectSpeaker set, a speaker change closes the
// running group when it has reached the minimum duration (shorter
// utterances merge forward instead of producing noise chunks); exceeding
// the maximum duration always closes it. New groups are seeded with the
// segments that started within ChunkOverlap seconds before the boundary.
func groupSegments(segments []models.TranscriptSegment, respectSpeaker bool, opts ChunkingOptions) [][]models.TranscriptSegment {
	var groups [][]models.TranscriptSegment
	var current []models.TranscriptSegment
	lastSpeaker := ""

	for i, seg := range segments {
		if len(current) > 0 {
			elapsed := seg.EndTime - current[0].StartTime
			speakerChanged := respectSpeaker && seg.Speaker != lastSpeaker
			closable := seg.StartTime-current[0].StartTime >= opts.MinChunkSize

			if (speakerChanged && closable) || elapsed > opts.MaxChunkSize {
				groups = append(groups, current)
				current = overlapSeed(segments[:i], seg.StartTime, opts.ChunkOverlap)
			}
		}
		current = append(current, seg)
		lastSpeaker = seg.Speaker
	}

	if len(current) > 0 {
		groups = append(groups, current)
	}

	return groups
}

// overlapSeed returns the trailing segments whose start time falls within
// the overlap window before the boundary
func overlapSeed(preceding []models.TranscriptSegment, boundary, overlap float64) []models.TranscriptSegment {
	if overlap <= 0 {
		return nil
	}

	var seed []models.TranscriptSegment
	for _, seg := range preceding {
		if seg.StartTime >= boundary-overlap && seg.StartTime < boundary {
			seed = append(seed, seg)
		}
	}
	return seed
}

// splitOversizeGroups re-splits speaker groups that still exceed the
// maximum duration using the time trigger. A single segment longer than
// the maximum is split by word position with interpolated timestamps.
func splitOversizeGroups(groups [][]models.TranscriptSegment, opts ChunkingOptions) [][]models.TranscriptSegment {
	var out [][]models.TranscriptSegment
	for _, group := range groups {
		duration := group[len(group)-1].EndTime - group[0].StartTime
		if duration <= opts.MaxChunkSize {
			out = append(out, group)
			continue
		}
		if len(group) == 1 {
			out = append(out, splitSegmentByWords(group[0], opts.MaxChunkSize)...)
			continue
		}
		out = append(out, groupSegments(group, false, opts)...)
	}
	return out
}

// splitSegmentByWords slices one oversize segment into synthetic segments
// of at most maxChunkSize seconds, distributing its words evenly over its
// time span
func splitSegmentByWords(seg models.TranscriptSegment, maxChunkSize float64) [][]models.TranscriptSegment {
	words := strings.Fields(seg.Text)
	duration := seg.EndTime - seg.StartTime
	if len(words) == 0 || duration <= 0 {
		return [][]models.TranscriptSegment{{seg}}
	}

	perWord := duration / float64(len(words))
	wordsPerPiece := int(maxChunkSize / perWord)
	if wordsPerPiece < 1 {
		wordsPerPiece = 1
	}

	var pieces [][]models.TranscriptSegment
	for start := 0; start < len(words); start += wordsPerPiece {
		end := start + wordsPerPiece
		if end > len(words) {
			end = len(words)
		}
		pieces = append(pieces, []models.TranscriptSegment{{
			StartTime: seg.StartTime + float64(start)*perWord,
			EndTime:   seg.StartTime + float64(end)*perWord,
			Text:      strings.Join(words[start:end], " "),
			Speaker:   seg.Speaker,
		}})
	}
	return pieces
}

// buildChunk assembles one TextChunk from a segment group, applying the
// noise filter. Returns nil for chunks below the duration or word floor.
func buildChunk(transcriptID string, group []models.TranscriptSegment, index int, opts ChunkingOptions) *models.TextChunk {
	if len(group) == 0 {
		return nil
	}

	parts := make([]string, 0, len(group))
	var speakers []string
	seen := make(map[string]bool)
	for _, seg := range group {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		if seg.Speaker != "" && !seen[seg.Speaker] {
			seen[seg.Speaker] = true
			speakers = append(speakers, seg.Speaker)
		}
	}

	text := strings.Join(parts, " ")
	wordCount := len(strings.Fields(text))
	startTime := group[0].StartTime
	endTime := group[len(group)-1].EndTime

	if endTime-startTime < opts.MinChunkSize || wordCount < minChunkWords {
		return nil
	}

	chunk := &models.TextChunk{
		ID:           fmt.Sprintf("%s_chunk_%d", transcriptID, index),
		TranscriptID: transcriptID,
		Text:         text,
		StartTime:    startTime,
		EndTime:      endTime,
		ChunkIndex:   index,
		WordCount:    wordCount,
		Speakers:     speakers,
		Method:       opts.Method,
	}
	if len(speakers) == 1 {
		chunk.Speaker = speakers[0]
	}
	return chunk
}

// fallbackChunks splits raw text into fixed-size word groups when no
// timestamped segments exist, approximating the configured chunk duration
// at ~10 words per second
func fallbackChunks(transcriptID, fullText string, opts ChunkingOptions) []models.TextChunk {
	words := strings.Fields(fullText)
	if len(words) == 0 {
		return nil
	}

	wordsPerChunk := int(opts.MaxChunkSize * wordsPerSecond)
	if wordsPerChunk < 1 {
		wordsPerChunk = 1
	}
	overlapWords := int(opts.ChunkOverlap * wordsPerSecond)

	var chunks []models.TextChunk
	for start := 0; start < len(words); start += wordsPerChunk {
		end := start + wordsPerChunk
		if end > len(words) {
			end = len(words)
		}

		seedStart := start - overlapWords
		if seedStart < 0 || start == 0 {
			seedStart = start
		}

		text := strings.Join(words[seedStart:end], " ")
		wordCount := end - seedStart
		if wordCount < minChunkWords {
			continue
		}

		index := len(chunks)
		chunks = append(chunks, models.TextChunk{
			ID:           fmt.Sprintf("%s_chunk_%d", transcriptID, index),
			TranscriptID: transcriptID,
			Text:         text,
			StartTime:    float64(seedStart) / wordsPerSecond,
			EndTime:      float64(end) / wordsPerSecond,
			ChunkIndex:   index,
			WordCount:    wordCount,
			Method:       opts.Method,
		})
	}

	return chunks
}
