// Package say drives the macOS say command as a speech backend.
package say

import (
	"bufio"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/opero/opero-tts/internal/speech"
)

func init() {
	speech.Backends.Register("say", func(options map[string]string) (speech.Backend, error) {
		return New(options["binary"]), nil
	})
}

// Engine implements speech.Backend with /usr/bin/say.
type Engine struct {
	binary string
}

// New creates a say backend. An empty binary uses "say" from PATH.
func New(binary string) *Engine {
	if binary == "" {
		binary = "say"
	}
	return &Engine{binary: binary}
}

// Name implements speech.Backend.
func (e *Engine) Name() string { return "say" }

// Voices implements speech.Backend.
func (e *Engine) Voices(ctx context.Context) ([]speech.Voice, error) {
	bin, err := speech.LookPath(e.binary)
	if err != nil {
		return nil, err
	}
	out, err := speech.Command{Name: bin, Args: []string{"-v", "?"}}.Run(ctx)
	if err != nil {
		return nil, err
	}
	return ParseVoices(string(out)), nil
}

// SynthesizeToFile implements speech.Backend.
func (e *Engine) SynthesizeToFile(ctx context.Context, text, path string, settings speech.Settings) error {
	bin, err := speech.LookPath(e.binary)
	if err != nil {
		return err
	}
	_, err = speech.Command{Name: bin, Args: Args(path, settings), Stdin: text}.Run(ctx)
	return err
}

// Args builds the say arguments for writing 16-bit WAV from stdin. say has
// no volume flag, so the volume setting is not applied.
func Args(path string, settings speech.Settings) []string {
	args := []string{"-o", path, "--file-format=WAVE", "--data-format=LEI16@22050"}
	if settings.Rate > 0 {
		args = append(args, "-r", strconv.Itoa(settings.Rate))
	}
	if settings.VoiceID != "" {
		args = append(args, "-v", settings.VoiceID)
	}
	return append(args, "-f", "-")
}

var voiceLine = regexp.MustCompile(`^(.+?)\s+([a-z]{2,3}_[A-Z0-9]+|[a-z]{2,3})\s+#\s?(.*)$`)

// ParseVoices parses `say -v ?` output, one voice per line:
//
//	Samantha            en_US    # Hello, my name is Samantha.
//
// The voice name doubles as its id.
func ParseVoices(output string) []speech.Voice {
	var voices []speech.Voice
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		m := voiceLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		voices = append(voices, speech.NewVoice(name, name, m[2]))
	}
	return voices
}
