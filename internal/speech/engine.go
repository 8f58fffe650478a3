// Package speech owns the process-wide speech engine handle: a single
// platform backend whose voice, rate and volume are shared state, with every
// access serialized by one mutex because the underlying engines are not
// reentrant.
package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// SpeakRequest is one synthesis call.
type SpeakRequest struct {
	// Text to synthesize, 1 to MaxTextLength characters, not blank.
	Text string

	// VoiceID overrides the current voice when non-empty.
	VoiceID string

	// Rate overrides the current rate when non-zero.
	Rate int

	// Persist controls whether overrides outlive the call. Nil uses the
	// engine default.
	Persist *bool
}

// VoiceConfig changes the shared engine settings. Zero values are ignored.
type VoiceConfig struct {
	VoiceID string
	Rate    int
}

// TempFiles hands out fresh output files and releases them when done.
type TempFiles interface {
	Create() (string, error)
	Release(path string) error
}

// Options configures a new Engine.
type Options struct {
	// VoiceID is the initial voice. Empty selects a preferred voice at init.
	VoiceID string

	// Rate is the initial rate in words per minute.
	Rate int

	// Volume is the initial volume (0.0 - 1.0).
	Volume float64

	// PreferredVoices are name substrings tried in order at init when no
	// voice is configured.
	PreferredVoices []string

	// PersistOverrides keeps per-request voice/rate overrides as the new
	// engine settings. Requests can opt out individually.
	PersistOverrides bool

	// Timeout bounds a single engine run. Zero disables it.
	Timeout time.Duration

	// Files provides temporary output files. Defaults to os.CreateTemp.
	Files TempFiles

	// Logger defaults to log.Default().
	Logger *log.Logger
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		Rate:             DefaultRate,
		Volume:           DefaultVolume,
		PreferredVoices:  []string{"female", "zira"},
		PersistOverrides: true,
	}
}

// Engine is the speech engine handle.
type Engine struct {
	mu          sync.Mutex
	backend     Backend
	settings    Settings
	initialized bool

	preferred []string
	persist   bool
	timeout   time.Duration
	files     TempFiles
	logger    *log.Logger
	metrics   *metrics
}

// New creates an engine handle around backend. The backend is not touched
// until Init or the first call that needs it.
func New(backend Backend, opts Options) *Engine {
	if opts.Rate == 0 {
		opts.Rate = DefaultRate
	}
	if opts.Files == nil {
		opts.Files = osTempFiles{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	logger := opts.Logger.With("backend", backend.Name())

	return &Engine{
		backend: backend,
		settings: Settings{
			VoiceID: opts.VoiceID,
			Rate:    opts.Rate,
			Volume:  opts.Volume,
		},
		preferred: opts.PreferredVoices,
		persist:   opts.PersistOverrides,
		timeout:   opts.Timeout,
		files:     opts.Files,
		logger:    logger,
		metrics:   &metrics{logger: logger},
	}
}

// Name returns the backend name.
func (e *Engine) Name() string {
	return e.backend.Name()
}

// Init initializes the engine eagerly. It is safe to call more than once;
// a failed Init is retried by the next call that needs the engine.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, _, err := e.initLocked(ctx)
	return err
}

// initLocked reports the voice list when it had to query the backend.
func (e *Engine) initLocked(ctx context.Context) (voices []Voice, fetched bool, err error) {
	if e.initialized {
		return nil, false, nil
	}

	voices, err = e.backend.Voices(e.backendContext(ctx))
	if err != nil {
		return nil, false, NewError(ErrorCodeEngineUnavailable, err.Error(), err)
	}

	if e.settings.VoiceID == "" {
		for _, v := range voices {
			if matchesPreferred(v, e.preferred) {
				e.settings.VoiceID = v.ID
				break
			}
		}
	}

	e.initialized = true
	e.logger.Info("Engine initialized",
		"voices", len(voices),
		"voice", e.settings.VoiceID,
		"rate", e.settings.Rate)
	return voices, true, nil
}

// backendContext carries the engine logger to backend subprocesses.
func (e *Engine) backendContext(ctx context.Context) context.Context {
	return log.WithContext(ctx, e.logger)
}

// Voices returns every voice the backend offers.
func (e *Engine) Voices(ctx context.Context) ([]Voice, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	voices, fetched, err := e.initLocked(ctx)
	if err != nil {
		return nil, err
	}
	if fetched {
		return voices, nil
	}
	voices, err = e.backend.Voices(e.backendContext(ctx))
	if err != nil {
		return nil, NewError(ErrorCodeEngineUnavailable, err.Error(), err)
	}
	return voices, nil
}

// Configure updates the shared voice and rate. Values are passed through to
// the backend unchecked; it never fails.
func (e *Engine) Configure(cfg VoiceConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyLocked(cfg)
	e.logger.Info("Engine configured", "voice", e.settings.VoiceID, "rate", e.settings.Rate)
}

// SetVolume updates the shared volume.
func (e *Engine) SetVolume(volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings.Volume = volume
}

func (e *Engine) applyLocked(cfg VoiceConfig) {
	if cfg.VoiceID != "" {
		e.settings.VoiceID = cfg.VoiceID
	}
	if cfg.Rate != 0 {
		e.settings.Rate = cfg.Rate
	}
}

// Settings returns a snapshot of the current settings.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// Stats returns synthesis counters.
func (e *Engine) Stats() Stats {
	return e.metrics.snapshot()
}

// Speak synthesizes text into a fresh temporary WAV file and returns its
// path. The caller owns the file and must hand it back with Release.
//
// Voice and rate overrides are applied to the shared settings before
// synthesis. Unless the request or engine opts out, they remain in effect
// for later calls.
func (e *Engine) Speak(ctx context.Context, req SpeakRequest) (string, error) {
	if err := ValidateText(req.Text); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, _, err := e.initLocked(ctx); err != nil {
		return "", err
	}

	previous := e.settings
	e.applyLocked(VoiceConfig{VoiceID: req.VoiceID, Rate: req.Rate})
	if !e.persistFor(req) {
		defer func() { e.settings = previous }()
	}
	settings := e.settings

	path, err := e.files.Create()
	if err != nil {
		return "", synthesisError(fmt.Errorf("create output file: %w", err))
	}

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	m := e.metrics.start(e.backend.Name(), TextLength(req.Text))
	size, err := e.synthesize(runCtx, req.Text, path, settings)
	m.end(size, err)
	if err != nil {
		if releaseErr := e.files.Release(path); releaseErr != nil {
			e.logger.Warn("Failed to remove output file", "path", path, "error", releaseErr)
		}
		return "", synthesisError(err)
	}

	return path, nil
}

func (e *Engine) synthesize(ctx context.Context, text, path string, settings Settings) (int64, error) {
	if err := e.backend.SynthesizeToFile(e.backendContext(ctx), text, path, settings); err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("engine output missing: %w", err)
	}
	if info.Size() == 0 {
		return 0, errors.New("engine produced no audio")
	}
	return info.Size(), nil
}

func (e *Engine) persistFor(req SpeakRequest) bool {
	if req.Persist != nil {
		return *req.Persist
	}
	return e.persist
}

// SpeakBytes synthesizes text and returns the audio. The temporary file is
// removed before returning.
func (e *Engine) SpeakBytes(ctx context.Context, req SpeakRequest) ([]byte, error) {
	path, err := e.Speak(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := e.Release(path); err != nil {
			e.logger.Warn("Failed to remove output file", "path", path, "error", err)
		}
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, synthesisError(fmt.Errorf("read output file: %w", err))
	}
	return data, nil
}

// Release returns an output file produced by Speak.
func (e *Engine) Release(path string) error {
	return e.files.Release(path)
}

// osTempFiles creates output files in the system temp directory.
type osTempFiles struct{}

func (osTempFiles) Create() (string, error) {
	f, err := os.CreateTemp("", "speech-*.wav")
	if err != nil {
		return "", err
	}
	path := f.Name()
	return path, f.Close()
}

func (osTempFiles) Release(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
