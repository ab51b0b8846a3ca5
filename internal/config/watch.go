package config

import (
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch re-reads the config file when it changes and passes the new values
// to onChange. Invalid edits are logged and ignored. It returns false when
// no config file is in use.
func (l *Loader) Watch(logger *zap.Logger, onChange func(Config)) bool {
	if l.File() == "" {
		return false
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.Config()
		if err != nil {
			logger.Warn("config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("config reloaded", zap.String("file", e.Name), zap.Int("pairs", len(cfg.Pairs)))
		onChange(cfg)
	})
	l.v.WatchConfig()
	return true
}
