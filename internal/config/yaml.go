package config

// The MarshalYAML methods render durations as "30s" rather than
// nanosecond integers, matching what the config file accepts.

// MarshalYAML implements yaml.Marshaler.
func (s ServerConfig) MarshalYAML() (any, error) {
	return struct {
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		MaxBodyBytes int64  `yaml:"max_body_bytes"`
		Gzip         bool   `yaml:"gzip"`
	}{s.Host, s.Port, s.ReadTimeout.String(), s.WriteTimeout.String(), s.MaxBodyBytes, s.Gzip}, nil
}

// MarshalYAML implements yaml.Marshaler.
func (s SpeechConfig) MarshalYAML() (any, error) {
	return struct {
		Backend          string       `yaml:"backend"`
		Voice            string       `yaml:"voice"`
		Rate             int          `yaml:"rate"`
		Volume           float64      `yaml:"volume"`
		PreferredVoices  []string     `yaml:"preferred_voices"`
		PersistOverrides bool         `yaml:"persist_overrides"`
		Timeout          string       `yaml:"timeout"`
		TempDir          string       `yaml:"temp_dir"`
		Espeak           BinaryConfig `yaml:"espeak"`
		Say              BinaryConfig `yaml:"say"`
		SAPI             BinaryConfig `yaml:"sapi"`
		Piper            PiperConfig  `yaml:"piper"`
	}{
		s.Backend, s.Voice, s.Rate, s.Volume, s.PreferredVoices, s.PersistOverrides,
		s.Timeout.String(), s.TempDir, s.Espeak, s.Say, s.SAPI, s.Piper,
	}, nil
}

// MarshalYAML implements yaml.Marshaler.
func (h HousekeepingConfig) MarshalYAML() (any, error) {
	return struct {
		Interval string `yaml:"interval"`
		MaxAge   string `yaml:"max_age"`
	}{h.Interval.String(), h.MaxAge.String()}, nil
}
