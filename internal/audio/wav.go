package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotOpen is returned when a transport call is made without audio.
	ErrNotOpen = errors.New("audio: no file open")
	// ErrSeekRange is returned for a seek outside [0, duration-1].
	ErrSeekRange = errors.New("audio: position out of range")
)

// WavPlayer tracks the transport state of a WAV file. Sample rate and length
// come from the file header; rendering the sound is left to the front end,
// which reports progress through Seek.
type WavPlayer struct {
	mu         sync.RWMutex
	path       string
	sampleRate int
	channels   int
	bitDepth   int
	frames     int64
	position   int64
	status     Status
}

// NewWavPlayer returns a player with nothing open.
func NewWavPlayer() *WavPlayer {
	return &WavPlayer{}
}

// Open reads the header of the WAV file at path and rewinds to frame 0.
func (p *WavPlayer) Open(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if err := dec.FwdToPCM(); err != nil {
		return fmt.Errorf("audio: read header %q: %w", path, err)
	}
	if dec.SampleRate == 0 || dec.NumChans == 0 || dec.BitDepth == 0 {
		return fmt.Errorf("audio: %q is not a valid WAV file", path)
	}

	frameBytes := int64(dec.NumChans) * int64(dec.BitDepth) / 8
	if frameBytes == 0 {
		frameBytes = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.path = path
	p.sampleRate = int(dec.SampleRate)
	p.channels = int(dec.NumChans)
	p.bitDepth = int(dec.BitDepth)
	p.frames = dec.PCMLen() / frameBytes
	p.position = 0
	p.status = StatusStopped

	logrus.WithFields(logrus.Fields{
		"path":        path,
		"sample_rate": p.sampleRate,
		"channels":    p.channels,
		"frames":      p.frames,
	}).Info("Opened audio file")
	return nil
}

// Close forgets the open file.
func (p *WavPlayer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.path = ""
	p.sampleRate, p.channels, p.bitDepth = 0, 0, 0
	p.frames, p.position = 0, 0
	p.status = StatusStopped
}

// Path returns the open file, or "" when nothing is open.
func (p *WavPlayer) Path() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.path
}

// SampleRate returns frames per second of the open file.
func (p *WavPlayer) SampleRate() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sampleRate
}

func (p *WavPlayer) IsOpen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.path != ""
}

func (p *WavPlayer) Position() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.position
}

// Seek moves the playhead to frame.
func (p *WavPlayer) Seek(frame int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path == "" {
		return ErrNotOpen
	}
	if frame < 0 || frame > p.frames-1 {
		return fmt.Errorf("%w: frame %d, duration %d", ErrSeekRange, frame, p.frames)
	}
	p.position = frame
	return nil
}

func (p *WavPlayer) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// SetStatus records the transport state reported by the front end.
func (p *WavPlayer) SetStatus(s Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path == "" {
		return ErrNotOpen
	}
	p.status = s
	return nil
}

func (p *WavPlayer) FramesToMillis(frames int64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.sampleRate == 0 {
		return 0
	}
	return float64(frames) * 1000 / float64(p.sampleRate)
}

func (p *WavPlayer) MillisToFrames(ms float64) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return int64(math.Round(ms * float64(p.sampleRate) / 1000))
}

func (p *WavPlayer) DurationFrames() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frames
}
