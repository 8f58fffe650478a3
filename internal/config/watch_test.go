package config

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// waitForConfig returns the first reloaded config accepted by match. A file
// rewrite can fire more than one event, so intermediate values are skipped.
func waitForConfig(t *testing.T, changes <-chan Config, match func(Config) bool) Config {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if match(c) {
				return c
			}
		case <-deadline:
			t.Fatal("Timed out waiting for configuration reload")
		}
	}
}

func TestWatch(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	v := newViper(t, "speech:\n  rate: 175\n")
	path := v.ConfigFileUsed()

	changes := make(chan Config, 64)
	Watch(v, log.New(io.Discard), func(c Config) {
		select {
		case changes <- c:
		default:
		}
	})

	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	write("speech:\n  rate: 220\n  voice: \"mock-zira\"\nlog:\n  level: \"debug\"\n")
	got := waitForConfig(t, changes, func(c Config) bool { return c.Speech.Rate == 220 })
	if got.Speech.Voice != "mock-zira" || got.Log.Level != "debug" {
		t.Errorf("Unexpected reloaded config: %+v", got)
	}

	// invalid edits are dropped; the next valid one still arrives
	write("speech:\n  rate: -1\n")
	time.Sleep(100 * time.Millisecond)
	write("speech:\n  rate: 300\n")
	waitForConfig(t, changes, func(c Config) bool {
		if c.Speech.Rate < 0 {
			t.Errorf("Invalid configuration was delivered: %+v", c.Speech)
		}
		return c.Speech.Rate == 300
	})
}

func TestWatchWithoutConfigFile(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	called := false
	Watch(v, log.New(io.Discard), func(Config) { called = true })
	if called {
		t.Error("Callback must not run without a config file")
	}
}
