// Package config loads the server configuration from the YAML config file,
// a .env file and TTS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/opero/opero-tts/internal/speech"
	"github.com/opero/opero-tts/internal/tempfiles"
)

// Config is the complete server configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Speech       SpeechConfig       `mapstructure:"speech" yaml:"speech"`
	Housekeeping HousekeepingConfig `mapstructure:"housekeeping" yaml:"housekeeping"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	Gzip         bool          `mapstructure:"gzip" yaml:"gzip"`
}

// Address returns host:port.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SpeechConfig configures the engine handle and its backend.
type SpeechConfig struct {
	// Backend is auto, espeak, say, sapi, piper or mock.
	Backend          string        `mapstructure:"backend" yaml:"backend"`
	Voice            string        `mapstructure:"voice" yaml:"voice"`
	Rate             int           `mapstructure:"rate" yaml:"rate"`
	Volume           float64       `mapstructure:"volume" yaml:"volume"`
	PreferredVoices  []string      `mapstructure:"preferred_voices" yaml:"preferred_voices"`
	PersistOverrides bool          `mapstructure:"persist_overrides" yaml:"persist_overrides"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	TempDir          string        `mapstructure:"temp_dir" yaml:"temp_dir"`

	Espeak BinaryConfig `mapstructure:"espeak" yaml:"espeak"`
	Say    BinaryConfig `mapstructure:"say" yaml:"say"`
	SAPI   BinaryConfig `mapstructure:"sapi" yaml:"sapi"`
	Piper  PiperConfig  `mapstructure:"piper" yaml:"piper"`
}

// BinaryConfig overrides the executable used by a backend.
type BinaryConfig struct {
	Binary string `mapstructure:"binary" yaml:"binary"`
}

// PiperConfig configures the piper backend.
type PiperConfig struct {
	Binary    string `mapstructure:"binary" yaml:"binary"`
	VoicesDir string `mapstructure:"voices_dir" yaml:"voices_dir"`
	Model     string `mapstructure:"model" yaml:"model"`
}

// HousekeepingConfig controls the stale temp file sweep.
type HousekeepingConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	MaxAge   time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// Env holds the environment variable overrides. They take precedence over
// the config file.
type Env struct {
	Host     string `env:"TTS_HOST"`
	Port     int    `env:"TTS_PORT"`
	Backend  string `env:"TTS_BACKEND"`
	Voice    string `env:"TTS_VOICE"`
	Rate     int    `env:"TTS_RATE"`
	LogLevel string `env:"TTS_LOG_LEVEL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8765,
			ReadTimeout:  30 * time.Second,
			MaxBodyBytes: 1 << 20,
			Gzip:         true,
		},
		Speech: SpeechConfig{
			Backend:          speech.BackendAuto,
			Rate:             speech.DefaultRate,
			Volume:           speech.DefaultVolume,
			PreferredVoices:  []string{"female", "zira"},
			PersistOverrides: true,
			TempDir:          tempfiles.DefaultDir(),
		},
		Housekeeping: HousekeepingConfig{
			Interval: tempfiles.DefaultInterval,
			MaxAge:   tempfiles.DefaultMaxAge,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// SetDefaults registers the built-in values with v so that every key is
// known to viper, which is required for environment lookups.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	v.SetDefault("server.gzip", d.Server.Gzip)

	v.SetDefault("speech.backend", d.Speech.Backend)
	v.SetDefault("speech.voice", d.Speech.Voice)
	v.SetDefault("speech.rate", d.Speech.Rate)
	v.SetDefault("speech.volume", d.Speech.Volume)
	v.SetDefault("speech.preferred_voices", d.Speech.PreferredVoices)
	v.SetDefault("speech.persist_overrides", d.Speech.PersistOverrides)
	v.SetDefault("speech.timeout", d.Speech.Timeout)
	v.SetDefault("speech.temp_dir", d.Speech.TempDir)
	v.SetDefault("speech.espeak.binary", "")
	v.SetDefault("speech.say.binary", "")
	v.SetDefault("speech.sapi.binary", "")
	v.SetDefault("speech.piper.binary", "")
	v.SetDefault("speech.piper.voices_dir", "")
	v.SetDefault("speech.piper.model", "")

	v.SetDefault("housekeeping.interval", d.Housekeeping.Interval)
	v.SetDefault("housekeeping.max_age", d.Housekeeping.MaxAge)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// Load builds the configuration from v, then applies .env and TTS_*
// environment overrides, expands paths and validates the result.
func Load(v *viper.Viper) (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}

	overrides, err := env.ParseAs[Env]()
	if err != nil {
		return Config{}, fmt.Errorf("error parsing environment: %w", err)
	}
	cfg.ApplyEnv(overrides)

	if err := cfg.expandPaths(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads environment variables from path. A missing file is not
// an error and variables already set are kept.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unable to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv copies the non-empty overrides into c.
func (c *Config) ApplyEnv(e Env) {
	if e.Host != "" {
		c.Server.Host = e.Host
	}
	if e.Port != 0 {
		c.Server.Port = e.Port
	}
	if e.Backend != "" {
		c.Speech.Backend = e.Backend
	}
	if e.Voice != "" {
		c.Speech.Voice = e.Voice
	}
	if e.Rate != 0 {
		c.Speech.Rate = e.Rate
	}
	if e.LogLevel != "" {
		c.Log.Level = e.LogLevel
	}
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.Speech.TempDir,
		&c.Speech.Piper.VoicesDir,
		&c.Speech.Piper.Model,
		&c.Log.File,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("unable to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate reports every invalid value.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("server max_body_bytes must not be negative, got %d", c.Server.MaxBodyBytes))
	}
	if c.Speech.Backend == "" {
		errs = append(errs, errors.New("speech backend must be set"))
	}
	if c.Speech.Rate < 0 {
		errs = append(errs, fmt.Errorf("speech rate must not be negative, got %d", c.Speech.Rate))
	}
	if c.Speech.Volume < 0 || c.Speech.Volume > 1 {
		errs = append(errs, fmt.Errorf("speech volume must be between 0.0 and 1.0, got %.2f", c.Speech.Volume))
	}
	if c.Speech.Timeout < 0 {
		errs = append(errs, fmt.Errorf("speech timeout must not be negative, got %v", c.Speech.Timeout))
	}
	if c.Housekeeping.Interval < 0 || c.Housekeeping.MaxAge < 0 {
		errs = append(errs, errors.New("housekeeping durations must not be negative"))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

// BackendOptions returns the factory options for the named backend.
func (c Config) BackendOptions(name string) map[string]string {
	switch name {
	case "espeak":
		return map[string]string{"binary": c.Speech.Espeak.Binary}
	case "say":
		return map[string]string{"binary": c.Speech.Say.Binary}
	case "sapi":
		return map[string]string{"binary": c.Speech.SAPI.Binary}
	case "piper":
		return map[string]string{
			"binary":     c.Speech.Piper.Binary,
			"voices_dir": c.Speech.Piper.VoicesDir,
			"model":      c.Speech.Piper.Model,
		}
	}
	return map[string]string{}
}

// EngineOptions converts the speech settings into engine options.
func (c Config) EngineOptions() speech.Options {
	opts := speech.DefaultOptions()
	opts.VoiceID = c.Speech.Voice
	if c.Speech.Rate != 0 {
		opts.Rate = c.Speech.Rate
	}
	opts.Volume = c.Speech.Volume
	if len(c.Speech.PreferredVoices) > 0 {
		opts.PreferredVoices = c.Speech.PreferredVoices
	}
	opts.PersistOverrides = c.Speech.PersistOverrides
	opts.Timeout = c.Speech.Timeout
	return opts
}
