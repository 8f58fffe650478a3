// Package piper drives the Piper neural TTS binary as a speech backend.
// Voices are the .onnx models found in a voices directory.
package piper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/opero/opero-tts/internal/speech"
)

// modelExt is the file extension of Piper voice models.
const modelExt = ".onnx"

func init() {
	speech.Backends.Register("piper", func(options map[string]string) (speech.Backend, error) {
		return New(Config{
			Binary:    options["binary"],
			VoicesDir: options["voices_dir"],
			Model:     options["model"],
		})
	})
}

// Config holds Piper settings.
type Config struct {
	// Binary is the piper executable. Defaults to "piper".
	Binary string

	// VoicesDir holds the .onnx voice models.
	VoicesDir string

	// Model is used when no voice is selected. Defaults to the first model
	// in VoicesDir.
	Model string
}

// Engine implements speech.Backend with Piper.
type Engine struct {
	config Config
}

// New creates a Piper backend. VoicesDir or Model must be set.
func New(config Config) (*Engine, error) {
	if config.VoicesDir == "" && config.Model == "" {
		return nil, errors.New("piper: voices_dir or model is required")
	}
	if config.Binary == "" {
		config.Binary = "piper"
	}
	return &Engine{config: config}, nil
}

// Name implements speech.Backend.
func (e *Engine) Name() string { return "piper" }

// Voices implements speech.Backend.
func (e *Engine) Voices(context.Context) ([]speech.Voice, error) {
	if _, err := speech.LookPath(e.config.Binary); err != nil {
		return nil, err
	}
	if e.config.VoicesDir == "" {
		return []speech.Voice{VoiceFromModel(e.config.Model)}, nil
	}
	return ListVoices(e.config.VoicesDir)
}

// SynthesizeToFile implements speech.Backend.
func (e *Engine) SynthesizeToFile(ctx context.Context, text, path string, settings speech.Settings) error {
	bin, err := speech.LookPath(e.config.Binary)
	if err != nil {
		return err
	}
	model, err := e.modelPath(settings.VoiceID)
	if err != nil {
		return err
	}
	_, err = speech.Command{Name: bin, Args: Args(model, path, settings), Stdin: text}.Run(ctx)
	return err
}

func (e *Engine) modelPath(voiceID string) (string, error) {
	switch {
	case strings.HasSuffix(voiceID, modelExt):
		return voiceID, nil
	case voiceID != "" && e.config.VoicesDir != "":
		return filepath.Join(e.config.VoicesDir, voiceID+modelExt), nil
	case e.config.Model != "":
		return e.config.Model, nil
	}

	voices, err := ListVoices(e.config.VoicesDir)
	if err != nil {
		return "", err
	}
	if len(voices) == 0 {
		return "", fmt.Errorf("no piper models in %s", e.config.VoicesDir)
	}
	return filepath.Join(e.config.VoicesDir, voices[0].ID+modelExt), nil
}

// Args builds the piper arguments. Piper's length scale is inverse to the
// speaking rate, with 1.0 at the default rate.
func Args(model, path string, settings speech.Settings) []string {
	args := []string{"--model", model, "--output_file", path}
	if settings.Rate > 0 && settings.Rate != speech.DefaultRate {
		scale := float64(speech.DefaultRate) / float64(settings.Rate)
		args = append(args, "--length_scale", strconv.FormatFloat(scale, 'f', 3, 64))
	}
	return args
}

// ListVoices returns a voice for every model in dir, sorted by id.
func ListVoices(dir string) ([]speech.Voice, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read piper voices: %w", err)
	}

	var voices []speech.Voice
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), modelExt) {
			continue
		}
		voices = append(voices, VoiceFromModel(entry.Name()))
	}
	sort.Slice(voices, func(i, j int) bool { return voices[i].ID < voices[j].ID })
	return voices, nil
}

// VoiceFromModel derives a voice from a model file name such as
// "en_US-amy-medium.onnx": the language comes first, then the speaker and
// quality.
func VoiceFromModel(model string) speech.Voice {
	id := strings.TrimSuffix(filepath.Base(model), modelExt)
	parts := strings.Split(id, "-")
	if len(parts) < 2 {
		return speech.NewVoice(id, id)
	}
	return speech.NewVoice(id, strings.Join(parts[1:], " "), parts[0])
}
