// Package espeak drives espeak-ng (or classic espeak) as a speech backend.
package espeak

import (
	"bufio"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/opero/opero-tts/internal/speech"
)

func init() {
	speech.Backends.Register("espeak", func(options map[string]string) (speech.Backend, error) {
		return New(options["binary"]), nil
	})
}

// Engine implements speech.Backend with the espeak command line tool.
type Engine struct {
	// binary is the configured executable; empty searches PATH.
	binary string
}

// New creates an espeak backend. An empty binary looks for espeak-ng, then
// espeak, in PATH on first use.
func New(binary string) *Engine {
	return &Engine{binary: binary}
}

// Name implements speech.Backend.
func (e *Engine) Name() string { return "espeak" }

func (e *Engine) resolve() (string, error) {
	if e.binary != "" {
		return speech.LookPath(e.binary)
	}
	return speech.LookPath("espeak-ng", "espeak")
}

// Voices implements speech.Backend.
func (e *Engine) Voices(ctx context.Context) ([]speech.Voice, error) {
	bin, err := e.resolve()
	if err != nil {
		return nil, err
	}
	out, err := speech.Command{Name: bin, Args: []string{"--voices"}}.Run(ctx)
	if err != nil {
		return nil, err
	}
	return ParseVoices(string(out)), nil
}

// SynthesizeToFile implements speech.Backend.
func (e *Engine) SynthesizeToFile(ctx context.Context, text, path string, settings speech.Settings) error {
	bin, err := e.resolve()
	if err != nil {
		return err
	}
	_, err = speech.Command{
		Name:  bin,
		Args:  Args(path, settings),
		Stdin: text,
	}.Run(ctx)
	return err
}

// Args builds the espeak arguments for writing a WAV file. Text is read
// from stdin as UTF-8.
func Args(path string, settings speech.Settings) []string {
	args := []string{"-w", path, "-b", "1"}
	if settings.Rate != 0 {
		args = append(args, "-s", strconv.Itoa(settings.Rate))
	}
	// espeak amplitude runs 0-200 with 100 as the default
	args = append(args, "-a", strconv.Itoa(int(settings.Volume*100+0.5)))
	if settings.VoiceID != "" {
		args = append(args, "-v", settings.VoiceID)
	}
	return append(args, "--stdin")
}

var otherLanguage = regexp.MustCompile(`\(([^\s()]+)\s+\d+\)`)

// ParseVoices parses the table printed by `espeak --voices`:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  en-us           --/M      English_(America)  gmw/en-US     (en 3)
//
// The voice file is used as the id since espeak accepts it with -v.
func ParseVoices(output string) []speech.Voice {
	var voices []speech.Voice
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 || fields[0] == "Pty" {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}

		languages := []string{fields[1]}
		for _, m := range otherLanguage.FindAllStringSubmatch(strings.Join(fields[5:], " "), -1) {
			languages = append(languages, m[1])
		}
		name := strings.ReplaceAll(fields[3], "_", " ")
		voices = append(voices, speech.NewVoice(fields[4], name, languages...))
	}
	return voices
}
