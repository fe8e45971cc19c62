// Package transcriber turns speech recogniser output into suggestion
// records for the annotator.
package transcriber

import (
	"context"
	"time"
)

// Transcriber is the unified interface for recogniser backends
type Transcriber interface {
	// Transcribe returns word timings for the audio file at audioPath.
	Transcribe(ctx context.Context, audioPath string, opts TranscriptionOptions) (*TranscriptResult, error)

	// Check if the transcriber is ready to process
	IsReady() bool

	// Close releases resources
	Close() error
}

// TranscriptionOptions provides hints for transcription
type TranscriptionOptions struct {
	// Language hint (e.g., "en", "de", "auto")
	Language string

	// Custom vocabulary, usually the wordpool, for better recognition
	CustomVocabulary []string
}

// TranscriptResult contains the transcription result with metadata
type TranscriptResult struct {
	// Primary transcription text
	Text string

	// Detected or specified language
	Language string

	// Processing duration
	Duration time.Duration

	// Word-level timestamps
	Words []WordTiming

	// Prompt is the vocabulary prompt built from
	// TranscriptionOptions.CustomVocabulary for this run
	Prompt string
}

// WordTiming represents timing information for a word. An empty Word marks
// speech the recogniser could not resolve.
type WordTiming struct {
	Word       string
	StartTime  time.Duration
	EndTime    time.Duration
	Confidence float32
}
