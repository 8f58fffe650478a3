package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/opero/opero-tts/internal/speech"
)

// maxColumnWidth caps the id and name columns of the voice table.
const maxColumnWidth = 40

var (
	voicesJSON bool

	voicesCmd = &cobra.Command{
		Use:     "voices [FILTER]",
		Short:   "List the voices of the speech backend",
		Long:    paragraph(fmt.Sprintf("\n%s the voices offered by the configured backend, optionally fuzzy filtered by id, name or language.", keyword("List"))),
		Example: paragraph("opero-tts voices\nopero-tts voices zira\nopero-tts voices --backend espeak en-gb"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runVoices,
	}
)

func init() {
	voicesCmd.Flags().BoolVar(&voicesJSON, "json", false, "print voices as JSON")
}

func runVoices(cmd *cobra.Command, args []string) error {
	engine, err := newEngine(cfg, nil, log.Default())
	if err != nil {
		return err
	}

	voices, err := engine.Voices(cmd.Context())
	if err != nil {
		return fmt.Errorf("unable to list voices: %w", err)
	}
	if len(args) == 1 {
		voices = filterVoices(voices, args[0])
	}

	out := cmd.OutOrStdout()
	if voicesJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(voices)
	}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd())) //nolint:gosec
	return writeVoiceTable(out, voices, isTerminal)
}

// voiceSource adapts voices to fuzzy.Source.
type voiceSource []speech.Voice

func (s voiceSource) String(i int) string {
	v := s[i]
	return v.Name + " " + v.ID + " " + strings.Join(v.Languages, " ")
}

func (s voiceSource) Len() int { return len(s) }

// filterVoices returns the voices matching pattern, best match first.
func filterVoices(voices []speech.Voice, pattern string) []speech.Voice {
	matches := fuzzy.FindFrom(pattern, voiceSource(voices))
	filtered := make([]speech.Voice, 0, len(matches))
	for _, m := range matches {
		filtered = append(filtered, voices[m.Index])
	}
	return filtered
}

// writeVoiceTable prints voices as aligned columns. Styling is applied only
// when writing to a terminal.
func writeVoiceTable(w io.Writer, voices []speech.Voice, styled bool) error {
	if len(voices) == 0 {
		_, err := fmt.Fprintln(w, "No voices found.")
		return err
	}

	idWidth, nameWidth := len("ID"), len("NAME")
	for _, v := range voices {
		idWidth = max(idWidth, min(runewidth.StringWidth(v.ID), maxColumnWidth))
		nameWidth = max(nameWidth, min(runewidth.StringWidth(v.Name), maxColumnWidth))
	}

	cell := func(s string, width int) string {
		s = truncate.StringWithTail(s, uint(width), "…") //nolint:gosec
		return runewidth.FillRight(s, width)
	}

	header := fmt.Sprintf("%s  %s  %s  %s", cell("ID", idWidth), cell("NAME", nameWidth), cell("GENDER", 6), "LANGUAGES")
	if styled {
		header = headerStyle.Render(header)
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}

	for _, v := range voices {
		languages := strings.Join(v.Languages, ", ")
		if styled {
			languages = dimStyle.Render(languages)
		}
		line := fmt.Sprintf("%s  %s  %s  %s", cell(v.ID, idWidth), cell(v.Name, nameWidth), cell(v.Gender, 6), languages)
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}
