package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNoTranscript is returned when an audio file has no recogniser output.
var ErrNoTranscript = errors.New("transcriber: no transcript for audio file")

// SidecarResponse is the whisper-style JSON an offline recogniser run
// leaves next to the audio file. Times are in seconds.
type SidecarResponse struct {
	Text     string        `json:"text"`
	Language string        `json:"language,omitempty"`
	Words    []SidecarWord `json:"words"`
	Error    string        `json:"error,omitempty"`
}

// SidecarWord is one recognised word.
type SidecarWord struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float32 `json:"probability"`
}

// SidecarTranscriber reads recogniser output that was produced ahead of time
// into "<audio>.json".
type SidecarTranscriber struct {
	ext string
}

// NewSidecarTranscriber reads sidecar files with extension ext; "" selects
// "json".
func NewSidecarTranscriber(ext string) *SidecarTranscriber {
	if ext == "" {
		ext = "json"
	}
	return &SidecarTranscriber{ext: strings.TrimPrefix(ext, ".")}
}

// SidecarPath returns the transcript file read for audioPath.
func (st *SidecarTranscriber) SidecarPath(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + "." + st.ext
}

func (st *SidecarTranscriber) Transcribe(ctx context.Context, audioPath string, opts TranscriptionOptions) (*TranscriptResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	path := st.SidecarPath(audioPath)

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoTranscript, path)
	}
	if err != nil {
		return nil, fmt.Errorf("transcriber: open %q: %w", path, err)
	}
	defer f.Close()

	result, err := ReadResult(f)
	if err != nil {
		return nil, fmt.Errorf("transcriber: %s: %w", path, err)
	}
	if result.Language == "" {
		result.Language = opts.Language
	}
	result.Prompt = CreateVocabularyPrompt(opts.CustomVocabulary)
	result.Duration = time.Since(start)

	logrus.WithFields(logrus.Fields{
		"path":   path,
		"words":  len(result.Words),
		"prompt": result.Prompt,
	}).Debug("SidecarTranscriber: Transcript loaded")
	return result, nil
}

func (st *SidecarTranscriber) IsReady() bool { return true }

func (st *SidecarTranscriber) Close() error { return nil }

// ReadResult decodes a SidecarResponse from r.
func ReadResult(r io.Reader) (*TranscriptResult, error) {
	var response SidecarResponse
	if err := json.NewDecoder(r).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("recogniser failed: %s", response.Error)
	}

	result := &TranscriptResult{
		Text:     strings.TrimSpace(response.Text),
		Language: response.Language,
		Words:    make([]WordTiming, 0, len(response.Words)),
	}
	for _, w := range response.Words {
		result.Words = append(result.Words, WordTiming{
			Word:       strings.TrimSpace(w.Word),
			StartTime:  seconds(w.Start),
			EndTime:    seconds(w.End),
			Confidence: w.Probability,
		})
	}
	return result, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
