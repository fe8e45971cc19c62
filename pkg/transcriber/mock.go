package transcriber

import (
	"context"
	"fmt"
)

// MockTranscriber for testing without a recogniser. It returns Result for
// every file.
type MockTranscriber struct {
	Result *TranscriptResult
}

func (mt *MockTranscriber) Transcribe(ctx context.Context, audioPath string, opts TranscriptionOptions) (*TranscriptResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := CreateVocabularyPrompt(opts.CustomVocabulary)
	if mt.Result == nil {
		return &TranscriptResult{Text: fmt.Sprintf("[Mock transcript: %s]", audioPath), Language: opts.Language, Prompt: prompt}, nil
	}
	copied := *mt.Result
	copied.Words = append([]WordTiming(nil), mt.Result.Words...)
	copied.Prompt = prompt
	return &copied, nil
}

func (mt *MockTranscriber) IsReady() bool { return true }

func (mt *MockTranscriber) Close() error {
	return nil
}
