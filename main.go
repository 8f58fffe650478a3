// Package main provides the entry point for the opero-tts server and CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opero/opero-tts/internal/config"
	"github.com/opero/opero-tts/internal/server"
	"github.com/opero/opero-tts/internal/speech"
	"github.com/opero/opero-tts/internal/tempfiles"
)

// shutdownTimeout bounds the wait for in-flight requests on exit.
const shutdownTimeout = 10 * time.Second

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	host       string
	port       int
	backend    string

	// cfg is the effective configuration, loaded before any command runs.
	cfg       config.Config
	logCloser = func() error { return nil }

	rootCmd = &cobra.Command{
		Use:   "opero-tts",
		Short: "Local text-to-speech server",
		Long: paragraph(
			fmt.Sprintf("\nServe your operating system's %s over a small local HTTP API.", keyword("text-to-speech engine")),
		),
		SilenceErrors: false,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
		RunE: serve,
	}
)

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	c, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	// flags beat environment and config file
	flags := cmd.Flags()
	if flags.Changed("host") {
		c.Server.Host = host
	}
	if flags.Changed("port") {
		c.Server.Port = port
	}
	if flags.Changed("backend") {
		c.Speech.Backend = backend
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c

	closer, err := setupLog(cfg.Log)
	if err != nil {
		return err
	}
	logCloser = closer
	return nil
}

// newEngine creates the engine handle for the configured backend. A nil
// files uses the system temp directory.
func newEngine(c config.Config, files speech.TempFiles, logger *log.Logger) (*speech.Engine, error) {
	name := speech.ResolveBackend(c.Speech.Backend)
	b, err := speech.Backends.Create(name, c.BackendOptions(name))
	if err != nil {
		return nil, fmt.Errorf("unable to create %s backend: %w", name, err)
	}

	opts := c.EngineOptions()
	opts.Files = files
	opts.Logger = logger
	return speech.New(b, opts), nil
}

// applyReload returns a config change handler. Only settings that differ
// from the last loaded config are pushed to the engine, so an unrelated edit
// keeps values set through /configure.
func applyReload(engine *speech.Engine, current config.Config) func(config.Config) {
	return func(c config.Config) {
		prev := current.Speech
		current = c

		var vc speech.VoiceConfig
		if c.Speech.Voice != prev.Voice {
			vc.VoiceID = c.Speech.Voice
		}
		if c.Speech.Rate != prev.Rate {
			vc.Rate = c.Speech.Rate
		}
		if vc != (speech.VoiceConfig{}) {
			engine.Configure(vc)
		}
		if c.Speech.Volume != prev.Volume {
			engine.SetVolume(c.Speech.Volume)
		}
		if level, err := log.ParseLevel(c.Log.Level); err == nil {
			log.SetLevel(level)
		}
	}
}

func serve(cmd *cobra.Command, _ []string) error {
	logger := log.Default()

	files, err := tempfiles.New(cfg.Speech.TempDir, logger.WithPrefix("tempfiles"))
	if err != nil {
		return err
	}
	defer func() {
		if err := files.Close(); err != nil {
			logger.Warn("Failed to remove audio files", "error", err)
		}
	}()

	engine, err := newEngine(cfg, files, logger.WithPrefix("speech"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a failed eager init is retried by the first request
	if err := engine.Init(ctx); err != nil {
		logger.Warn("Speech engine not ready", "backend", engine.Name(), "error", err)
	}

	go files.Run(ctx, cfg.Housekeeping.Interval, cfg.Housekeeping.MaxAge)

	config.Watch(viper.GetViper(), logger, applyReload(engine, cfg))

	srv, err := server.New(server.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Gzip:         cfg.Server.Gzip,
	}, engine, logger.WithPrefix("http"))
	if err != nil {
		return err
	}
	if err := srv.StartAsync(); err != nil {
		return err
	}
	printEndpoints(cfg.Server.Port)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("unable to stop server: %w", err)
	}
	logger.Info("Server stopped", "stats", engine.Stats().String())
	return nil
}

func printEndpoints(port int) {
	base := fmt.Sprintf("http://localhost:%d", port)
	var b strings.Builder
	fmt.Fprintf(&b, "\nListening on %s\n\n", keyword(base))
	for _, e := range [][2]string{
		{"GET ", "/               health check"},
		{"GET ", "/status         engine status"},
		{"POST", "/speak          WAV download"},
		{"POST", "/speak/base64   base64 audio"},
		{"GET ", "/voices         available voices"},
		{"POST", "/configure      set voice and rate"},
	} {
		fmt.Fprintf(&b, "  %s %s\n", e[0], e[1])
	}
	fmt.Fprintln(os.Stderr, paragraph(b.String()))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_ = logCloser()
		os.Exit(1)
	}
	_ = logCloser()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().StringVarP(&backend, "backend", "b", speech.BackendAuto, fmt.Sprintf("speech backend (%s)", strings.Join(append([]string{speech.BackendAuto}, speech.Backends.List()...), ", ")))
	rootCmd.Flags().StringVar(&host, "host", "0.0.0.0", "address to listen on")
	rootCmd.Flags().IntVarP(&port, "port", "p", 8765, "port to listen on")

	rootCmd.AddCommand(configCmd, manCmd, voicesCmd, sayCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "opero-tts")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "opero-tts")}, dirs...)
	}

	if c := os.Getenv("OPERO_TTS_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	config.SetDefaults(viper.GetViper())
	viper.SetConfigName("opero-tts")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("opero_tts")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	configFile = filepath.Join(dirs[0], "opero-tts.yml")
}
