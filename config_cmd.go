package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const defaultConfig = `# HTTP listener
server:
  host: "0.0.0.0"
  port: 8765
  read_timeout: "30s"
  # 0 disables the write timeout; long texts can take a while to synthesize
  write_timeout: "0s"
  max_body_bytes: 1048576
  # gzip JSON responses
  gzip: true

# Speech engine
speech:
  # auto, espeak, say, sapi, piper or mock
  backend: "auto"
  # voice id as listed by "opero-tts voices"; empty picks a preferred voice
  voice: ""
  # words per minute
  rate: 175
  # 0.0 to 1.0
  volume: 0.9
  # name fragments tried in order when no voice is set
  preferred_voices: ["female", "zira"]
  # keep voice_id/rate sent with /speak as the new defaults
  persist_overrides: true
  # limit for one synthesis run, 0 disables it
  timeout: "0s"
  # where synthesized audio is written before it is sent
  # temp_dir: "/tmp/opero-tts"

  # espeak:
  #   binary: "espeak-ng"
  # say:
  #   binary: "/usr/bin/say"
  # sapi:
  #   binary: "powershell"
  piper:
    binary: "piper"
    voices_dir: "~/.local/share/piper/voices"
    # model: "~/.local/share/piper/voices/en_US-lessac-medium.onnx"

# Removal of audio files left behind by aborted requests
housekeeping:
  interval: "10m"
  max_age: "1h"

log:
  # debug, info, warn or error
  level: "info"
  # log to a rotated file instead of stderr
  # file: "~/.local/state/opero-tts/opero-tts.log"
  max_size_mb: 10
  max_backups: 3
  max_age_days: 28
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the opero-tts config file",
	Long:    paragraph(fmt.Sprintf("\n%s the opero-tts config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("opero-tts config\nopero-tts config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	// the config file must stay editable when its contents are invalid
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("opero-tts", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  paragraph(fmt.Sprintf("\n%s the configuration after applying the config file, .env, environment variables and flags.", keyword("Print"))),
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintln(cmd.OutOrStdout(), "# "+used)
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("unable to encode config: %w", err)
		}
		return enc.Close()
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
