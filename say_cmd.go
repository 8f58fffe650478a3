package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/opero/opero-tts/internal/audio"
	"github.com/opero/opero-tts/internal/speech"
)

var (
	sayOutput    string
	sayPlay      bool
	sayClipboard bool
	sayVoice     string
	sayRate      int

	sayCmd = &cobra.Command{
		Use:     "say [TEXT]",
		Short:   "Synthesize text without starting the server",
		Long:    paragraph(fmt.Sprintf("\n%s text to a WAV file or play it right away. Text is taken from the arguments, stdin or the clipboard.", keyword("Speak"))),
		Example: paragraph("opero-tts say \"Hello there\"\necho hello | opero-tts say --play\nopero-tts say --clipboard -o clip.wav"),
		RunE:    runSay,
	}
)

func init() {
	sayCmd.Flags().StringVarP(&sayOutput, "output", "o", "speech.wav", "WAV file to write")
	sayCmd.Flags().BoolVar(&sayPlay, "play", false, "play the audio instead of writing a file")
	sayCmd.Flags().BoolVarP(&sayClipboard, "clipboard", "c", false, "read the text from the clipboard")
	sayCmd.Flags().StringVar(&sayVoice, "voice", "", "voice id (see the voices command)")
	sayCmd.Flags().IntVarP(&sayRate, "rate", "r", 0, "speaking rate in words per minute")
}

func runSay(cmd *cobra.Command, args []string) error {
	text, err := readText(args, sayClipboard, os.Stdin)
	if err != nil {
		return err
	}

	engine, err := newEngine(cfg, nil, log.Default())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	data, err := engine.SpeakBytes(ctx, speech.SpeakRequest{Text: text, VoiceID: sayVoice, Rate: sayRate})
	if err != nil {
		return err
	}

	wav, err := audio.ParseWAV(data)
	if err != nil {
		return fmt.Errorf("engine returned unreadable audio: %w", err)
	}

	if sayPlay {
		return audio.Play(ctx, wav)
	}

	if err := os.WriteFile(sayOutput, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("unable to write audio: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%v) to %s\n",
		humanize.Bytes(uint64(len(data))), wav.Duration().Round(time.Millisecond), sayOutput)
	return nil
}

// readText picks the text from args, the clipboard or a piped stdin, in
// that order.
func readText(args []string, fromClipboard bool, stdin *os.File) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	if fromClipboard {
		text, err := clipboard.ReadAll()
		if err != nil {
			return "", fmt.Errorf("unable to read clipboard: %w", err)
		}
		return text, nil
	}

	if yes, err := isPipe(stdin); err != nil {
		return "", err
	} else if yes {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("unable to read from stdin: %w", err)
		}
		return string(b), nil
	}

	return "", errors.New("no text given: pass it as an argument, pipe it in or use --clipboard")
}

func isPipe(f *os.File) (bool, error) {
	stat, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}
