// Package config provides configuration management for glass with Viper integration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	dirPerm  = 0755
	filePerm = 0644
)

// Config represents the complete configuration for glass.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Pump    PumpConfig    `mapstructure:"pump" yaml:"pump"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// EngineConfig holds browser-engine configuration.
type EngineConfig struct {
	// ExecPath overrides the Chromium binary location.
	ExecPath string `mapstructure:"exec_path" yaml:"exec_path"`
	// RemoteURL attaches to a running browser instead of launching one.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
	Headless  bool   `mapstructure:"headless" yaml:"headless"`
	CacheDir  string `mapstructure:"cache_dir" yaml:"cache_dir"`
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
	// FrameRate caps windowless rendering, frames per second.
	FrameRate int `mapstructure:"frame_rate" yaml:"frame_rate"`
}

// PumpConfig bounds the message pump scheduler's sleep interval.
type PumpConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
	MaxInterval time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
}

// SessionConfig holds session persistence configuration.
type SessionConfig struct {
	DBPath        string `mapstructure:"db_path" yaml:"db_path"`
	Restore       bool   `mapstructure:"restore" yaml:"restore"`
	MaxClosedTabs int    `mapstructure:"max_closed_tabs" yaml:"max_closed_tabs"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Manager handles configuration loading, watching, and reloading.
type Manager struct {
	config    *Config
	viper     *viper.Viper
	mu        sync.RWMutex
	callbacks []func(*Config)
	watching  bool
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	v := viper.New()

	v.SetConfigName("config")

	configDir, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	v.AddConfigPath(configDir)
	v.AddConfigPath(".") // Current directory for development

	v.SetEnvPrefix("GLASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string]string{
		"engine.exec_path":        "ENGINE_EXEC_PATH",
		"engine.remote_url":       "ENGINE_REMOTE_URL",
		"engine.headless":         "ENGINE_HEADLESS",
		"engine.cache_dir":        "ENGINE_CACHE_DIR",
		"engine.user_agent":       "ENGINE_USER_AGENT",
		"engine.frame_rate":       "ENGINE_FRAME_RATE",
		"pump.min_interval":       "PUMP_MIN_INTERVAL",
		"pump.max_interval":       "PUMP_MAX_INTERVAL",
		"session.db_path":         "SESSION_DB_PATH",
		"session.restore":         "SESSION_RESTORE",
		"session.max_closed_tabs": "SESSION_MAX_CLOSED_TABS",
		"logging.level":           "LOG_LEVEL",
		"logging.format":          "LOG_FORMAT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "GLASS_"+env); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable %s: %w", env, err)
		}
	}

	return &Manager{
		viper:     v,
		callbacks: make([]func(*Config), 0),
	}, nil
}

// Load loads the configuration from file and environment variables.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to ensure directories: %w", err)
	}

	m.setDefaults()

	if err := m.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{}
	if err := m.viper.Unmarshal(config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Session.DBPath == "" {
		dbPath, err := GetDatabaseFile()
		if err != nil {
			return fmt.Errorf("failed to get database path: %w", err)
		}
		config.Session.DBPath = dbPath
	}
	if config.Engine.CacheDir == "" {
		cacheDir, err := GetCacheDir()
		if err != nil {
			return fmt.Errorf("failed to get cache directory: %w", err)
		}
		config.Engine.CacheDir = cacheDir
	}

	m.config = config
	return nil
}

// Get returns the current configuration (thread-safe).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	configCopy := *m.config
	return &configCopy
}

// Watch starts watching the config file for changes and reloads automatically.
func (m *Manager) Watch() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watching {
		return nil
	}

	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(_ fsnotify.Event) {
		if err := m.reload(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to reload config: %v\n", err)
			return
		}

		m.mu.RLock()
		config := m.config
		callbacks := make([]func(*Config), len(m.callbacks))
		copy(callbacks, m.callbacks)
		m.mu.RUnlock()

		for _, callback := range callbacks {
			callback(config)
		}
	})

	m.watching = true
	return nil
}

// OnConfigChange registers a callback invoked after each reload.
func (m *Manager) OnConfigChange(callback func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

func (m *Manager) reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	config := &Config{}
	if err := m.viper.Unmarshal(config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if config.Session.DBPath == "" {
		config.Session.DBPath = m.config.Session.DBPath
	}
	if config.Engine.CacheDir == "" {
		config.Engine.CacheDir = m.config.Engine.CacheDir
	}

	m.config = config
	return nil
}
