// Package mock provides an in-process speech backend that renders
// deterministic tones instead of speech. It is used for testing and for
// running the server on machines without a platform engine.
package mock

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opero/opero-tts/internal/audio"
	"github.com/opero/opero-tts/internal/speech"
)

// SampleRate is the output sample rate of the mock backend.
const SampleRate = 22050

func init() {
	speech.Backends.Register("mock", func(map[string]string) (speech.Backend, error) {
		return New(), nil
	})
}

// DefaultVoices are the voices offered by a new mock backend.
var DefaultVoices = []speech.Voice{
	speech.NewVoice("mock-david", "Mock David", "en_US"),
	speech.NewVoice("mock-zira", "Mock Zira", "en_US"),
	speech.NewVoice("mock-hedda", "Mock Hedda Female", "de_DE"),
}

// Engine is the mock backend.
type Engine struct {
	mu       sync.Mutex
	voices   []speech.Voice
	failure  error
	delay    time.Duration
	calls    int
	lastSeen speech.Settings

	inFlight      atomic.Int32
	maxConcurrent atomic.Int32
}

// New creates a mock backend with DefaultVoices.
func New() *Engine {
	voices := make([]speech.Voice, len(DefaultVoices))
	copy(voices, DefaultVoices)
	return &Engine{voices: voices}
}

// Name implements speech.Backend.
func (e *Engine) Name() string { return "mock" }

// SetVoices replaces the voice list.
func (e *Engine) SetVoices(voices []speech.Voice) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voices = voices
}

// SetFailure makes every call fail with err. Nil clears it.
func (e *Engine) SetFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failure = err
}

// SetDelay adds a simulated processing delay to each synthesis.
func (e *Engine) SetDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
}

// Calls returns the number of synthesis calls made.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// LastSettings returns the settings of the most recent synthesis.
func (e *Engine) LastSettings() speech.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeen
}

// MaxConcurrent returns the highest number of overlapping synthesis calls
// observed.
func (e *Engine) MaxConcurrent() int {
	return int(e.maxConcurrent.Load())
}

// Voices implements speech.Backend.
func (e *Engine) Voices(context.Context) ([]speech.Voice, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failure != nil {
		return nil, e.failure
	}
	voices := make([]speech.Voice, len(e.voices))
	copy(voices, e.voices)
	return voices, nil
}

// SynthesizeToFile implements speech.Backend.
func (e *Engine) SynthesizeToFile(ctx context.Context, text, path string, settings speech.Settings) error {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		peak := e.maxConcurrent.Load()
		if n <= peak || e.maxConcurrent.CompareAndSwap(peak, n) {
			break
		}
	}

	e.mu.Lock()
	e.calls++
	e.lastSeen = settings
	failure, delay := e.failure, e.delay
	e.mu.Unlock()

	if failure != nil {
		return failure
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	format := audio.Format{SampleRate: SampleRate, Channels: 1, BitsPerSample: 16}
	if err := audio.WriteWAV(f, format, Render(text, settings)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Duration returns the length of audio rendered for text at rate words per
// minute. Every word lasts 60/rate seconds.
func Duration(text string, rate int) time.Duration {
	if rate <= 0 {
		rate = speech.DefaultRate
	}
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	return time.Duration(words) * time.Minute / time.Duration(rate)
}

// Render produces 16-bit mono PCM for text. The tone frequency is derived
// from the text and voice so different inputs yield different audio.
func Render(text string, settings speech.Settings) []byte {
	h := fnv.New32a()
	_, _ = h.Write([]byte(settings.VoiceID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(text))
	freq := 200 + float64(h.Sum32()%600)

	volume := settings.Volume
	if volume <= 0 || volume > 1 {
		volume = 1
	}

	samples := int(Duration(text, settings.Rate).Seconds() * SampleRate)
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := math.Sin(2*math.Pi*freq*float64(i)/SampleRate) * volume * math.MaxInt16 * 0.5
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return pcm
}
