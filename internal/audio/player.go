package audio

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
)

// pollInterval is how often Play checks whether playback has finished.
const pollInterval = 20 * time.Millisecond

// Play plays a 16-bit PCM WAV file on the default output device and blocks
// until playback finishes or ctx is done.
//
// oto allows one context per process, so Play is meant for one-shot CLI use.
func Play(ctx context.Context, w *WAV) error {
	if w.Format.BitsPerSample != 16 {
		return fmt.Errorf("bit depth must be 16, got %d", w.Format.BitsPerSample)
	}
	if w.Format.Channels != 1 && w.Format.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", w.Format.Channels)
	}

	op := &oto.NewContextOptions{
		SampleRate:   w.Format.SampleRate,
		ChannelCount: w.Format.Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	otoCtx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	// keep the PCM slice referenced until the player is closed
	data := w.Data
	player := otoCtx.NewPlayer(bytes.NewReader(data))
	defer func() { _ = player.Close() }()

	player.Play()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}
