package speech

import "context"

// Defaults applied when the engine handle is created.
const (
	DefaultRate   = 175 // words per minute
	DefaultVolume = 0.9
)

// Settings is the mutable synthesis configuration held by the engine handle.
type Settings struct {
	// VoiceID selects the backend voice. Empty means the backend default.
	VoiceID string

	// Rate is the speaking rate in words per minute.
	Rate int

	// Volume is the output level between 0.0 and 1.0.
	Volume float64
}

// Backend is a platform speech engine. Implementations are not required to
// be safe for concurrent use; the Engine serializes every call.
type Backend interface {
	// Name returns the short backend name, e.g. "espeak" or "say".
	Name() string

	// Voices lists the voices the backend can speak with.
	Voices(ctx context.Context) ([]Voice, error)

	// SynthesizeToFile renders text as a WAV file at path using settings.
	// The file at path already exists and is empty.
	SynthesizeToFile(ctx context.Context, text, path string, settings Settings) error
}
