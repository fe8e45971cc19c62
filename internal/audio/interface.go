package audio

// Status is the transport state of a playback.
type Status int

const (
	StatusStopped Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "stopped"
	}
}

// Playback is the audio collaborator the commit workflow depends on.
// Positions are in frames; times are milliseconds from the start of the
// recording.
type Playback interface {
	IsOpen() bool
	Position() int64
	Seek(frame int64) error
	Status() Status
	FramesToMillis(frames int64) float64
	MillisToFrames(ms float64) int64
	DurationFrames() int64
}

// Ensure the WAV player implements the interface
var _ Playback = (*WavPlayer)(nil)
