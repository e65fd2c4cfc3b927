package models

import (
	"time"
)

// TranscriptSegment represents a single timestamped utterance produced by
// the upstream transcription pipeline. Segments are ordered by start time
// and immutable once stored.
type TranscriptSegment struct {
	StartTime float64 `json:"start_time"` // seconds from transcript start
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text"`
	Speaker   string  `json:"speaker,omitempty"`
}

// Duration returns the elapsed time covered by the segment in seconds.
func (s *TranscriptSegment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// Transcript represents a recorded conversation with its text in up to
// three processing stages. SpeakerTaggedText is the most processed form,
// CorrectedText the next, FullText the raw transcription output.
type Transcript struct {
	ID                string              `json:"transcript_id"`
	ProjectID         string              `json:"project_id,omitempty"`
	Title             string              `json:"title"`
	FullText          string              `json:"full_text"`
	CorrectedText     string              `json:"corrected_text,omitempty"`
	SpeakerTaggedText string              `json:"speaker_tagged_text,omitempty"`
	Segments          []TranscriptSegment `json:"segments,omitempty"`
	Duration          float64             `json:"duration,omitempty"` // seconds
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// BestText returns the most processed text version available. Direct-LLM
// conversations prefer speaker-tagged text over corrected text over the
// raw transcription.
func (t *Transcript) BestText() string {
	if t.SpeakerTaggedText != "" {
		return t.SpeakerTaggedText
	}
	if t.CorrectedText != "" {
		return t.CorrectedText
	}
	return t.FullText
}

// Validate checks if the transcript is valid
func (t *Transcript) Validate() error {
	if t.ID == "" {
		return &ValidationError{Field: "transcript_id", Message: "transcript ID is required"}
	}
	if t.Title == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if t.FullText == "" && len(t.Segments) == 0 {
		return &ValidationError{Field: "full_text", Message: "transcript needs full text or segments"}
	}
	for i, seg := range t.Segments {
		if seg.EndTime < seg.StartTime {
			return &ValidationError{Field: "segments", Message: "segment end time precedes start time"}
		}
		if i > 0 && seg.StartTime < t.Segments[i-1].StartTime {
			return &ValidationError{Field: "segments", Message: "segments must be ordered by start time"}
		}
	}
	return nil
}

// TranscriptDTO represents the API view of a transcript (segments and text
// bodies omitted from listings)
type TranscriptDTO struct {
	ID           string  `json:"transcript_id"`
	ProjectID    string  `json:"project_id,omitempty"`
	Title        string  `json:"title"`
	Duration     float64 `json:"duration,omitempty"`
	SegmentCount int     `json:"segment_count"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// ToDTO converts Transcript domain model to DTO
func (t *Transcript) ToDTO() TranscriptDTO {
	return TranscriptDTO{
		ID:           t.ID,
		ProjectID:    t.ProjectID,
		Title:        t.Title,
		Duration:     t.Duration,
		SegmentCount: len(t.Segments),
		CreatedAt:    t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    t.UpdatedAt.Format(time.RFC3339),
	}
}
