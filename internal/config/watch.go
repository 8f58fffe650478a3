package config

import (
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch reloads the configuration whenever the config file used by v
// changes and passes the new values to onChange. Invalid edits are logged
// and ignored. Watch does nothing when v has no config file.
func Watch(v *viper.Viper, logger *log.Logger, onChange func(Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(v)
		if err != nil {
			logger.Warn("Ignoring invalid configuration change", "path", e.Name, "error", err)
			return
		}
		logger.Info("Configuration reloaded", "path", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
}
