// Package sapi drives the Windows speech API through PowerShell and
// System.Speech.
package sapi

import (
	"bufio"
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/opero/opero-tts/internal/speech"
)

func init() {
	speech.Backends.Register("sapi", func(options map[string]string) (speech.Backend, error) {
		return New(options["binary"]), nil
	})
}

// baseRate is the speaking rate SAPI uses at Rate 0, in words per minute.
const baseRate = 200

const prelude = `[Console]::InputEncoding = [Text.Encoding]::UTF8
[Console]::OutputEncoding = [Text.Encoding]::UTF8
Add-Type -AssemblyName System.Speech
$s = New-Object System.Speech.Synthesis.SpeechSynthesizer
`

const voicesScript = prelude + `foreach ($v in $s.GetInstalledVoices()) {
  if ($v.Enabled) { "{0}` + "`t" + `{1}" -f $v.VoiceInfo.Name, $v.VoiceInfo.Culture.Name }
}
$s.Dispose()
`

const speakScript = prelude + `$s.Rate = [int]$env:OPERO_TTS_RATE
$s.Volume = [int]$env:OPERO_TTS_VOLUME
if ($env:OPERO_TTS_VOICE) { $s.SelectVoice($env:OPERO_TTS_VOICE) }
$s.SetOutputToWaveFile($env:OPERO_TTS_OUTPUT)
$s.Speak([Console]::In.ReadToEnd())
$s.Dispose()
`

// Engine implements speech.Backend with SAPI voices.
type Engine struct {
	binary string
}

// New creates a SAPI backend. An empty binary uses powershell from PATH.
func New(binary string) *Engine {
	if binary == "" {
		binary = "powershell"
	}
	return &Engine{binary: binary}
}

// Name implements speech.Backend.
func (e *Engine) Name() string { return "sapi" }

func (e *Engine) run(ctx context.Context, script, stdin string, env []string) ([]byte, error) {
	bin, err := speech.LookPath(e.binary)
	if err != nil {
		return nil, err
	}
	return speech.Command{
		Name:  bin,
		Args:  []string{"-NoProfile", "-NonInteractive", "-Command", script},
		Stdin: stdin,
		Env:   env,
	}.Run(ctx)
}

// Voices implements speech.Backend.
func (e *Engine) Voices(ctx context.Context) ([]speech.Voice, error) {
	out, err := e.run(ctx, voicesScript, "", nil)
	if err != nil {
		return nil, err
	}
	return ParseVoices(string(out)), nil
}

// SynthesizeToFile implements speech.Backend.
func (e *Engine) SynthesizeToFile(ctx context.Context, text, path string, settings speech.Settings) error {
	_, err := e.run(ctx, speakScript, text, Env(path, settings))
	return err
}

// Env returns the environment passed to the synthesis script.
func Env(path string, settings speech.Settings) []string {
	return []string{
		"OPERO_TTS_OUTPUT=" + path,
		"OPERO_TTS_VOICE=" + settings.VoiceID,
		"OPERO_TTS_RATE=" + strconv.Itoa(Rate(settings.Rate)),
		"OPERO_TTS_VOLUME=" + strconv.Itoa(Volume(settings.Volume)),
	}
}

// Rate converts words per minute to the SAPI -10..10 scale, where each step
// is a factor of 1.5.
func Rate(wpm int) int {
	if wpm <= 0 {
		return 0
	}
	r := int(math.Log(float64(wpm)/baseRate) / math.Log(1.5))
	return max(-10, min(10, r))
}

// Volume converts 0.0-1.0 to the SAPI 0..100 scale.
func Volume(v float64) int {
	return max(0, min(100, int(math.Round(v*100))))
}

// ParseVoices parses the tab separated name and culture lines printed by the
// voice listing script.
func ParseVoices(output string) []speech.Voice {
	var voices []speech.Voice
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		name, culture, _ := strings.Cut(line, "\t")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		voices = append(voices, speech.NewVoice(name, name, culture))
	}
	return voices
}
