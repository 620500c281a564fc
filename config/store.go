package config

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store holds the current configuration and swaps it atomically on reload.
// Readers take the read lock for the duration of a field access only; the
// returned *Config is immutable by convention.
type Store struct {
	mu        sync.RWMutex
	cur       *Config
	listeners []func(*Config)
}

func NewStore(cfg *Config) *Store {
	return &Store{cur: cfg}
}

// Current returns the active configuration snapshot.
func (s *Store) Current() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// OnSwap registers fn to run with every accepted snapshot. Register during
// startup wiring, before Watch.
func (s *Store) OnSwap(fn func(*Config)) {
	s.listeners = append(s.listeners, fn)
}

func (s *Store) swap(cfg *Config) {
	s.mu.Lock()
	s.cur = cfg
	s.mu.Unlock()
	for _, fn := range s.listeners {
		fn(cfg)
	}
}

// Watch re-reads the configuration file on change and swaps the store when
// the new contents validate. Invalid edits keep the previous snapshot.
func (s *Store) Watch(file string, flags *pflag.FlagSet, logger *slog.Logger) {
	if file == "" {
		return
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(file)
	if flags != nil {
		_ = v.BindPFlags(flags)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if err := v.ReadInConfig(); err != nil {
			logger.Warn("config reload failed, keeping previous", "file", e.Name, "err", err)
			return
		}
		next := new(Config)
		if err := v.Unmarshal(next); err != nil {
			logger.Warn("config reload unmarshal failed, keeping previous", "err", err)
			return
		}
		if err := next.Validate(); err != nil {
			logger.Warn("config reload rejected, keeping previous", "err", err)
			return
		}
		s.swap(next)
		logger.Info("configuration reloaded", "file", e.Name)
	})
	v.WatchConfig()
}
