package config

import "time"

// Default values applied before the config file and environment are
// read.
func (m *Manager) setDefaults() {
	m.viper.SetDefault("engine.exec_path", "")
	m.viper.SetDefault("engine.remote_url", "")
	m.viper.SetDefault("engine.headless", false)
	m.viper.SetDefault("engine.user_agent", "")
	m.viper.SetDefault("engine.frame_rate", 30)

	m.viper.SetDefault("pump.min_interval", 500*time.Microsecond)
	m.viper.SetDefault("pump.max_interval", 4*time.Millisecond)

	m.viper.SetDefault("session.restore", true)
	m.viper.SetDefault("session.max_closed_tabs", 10)

	m.viper.SetDefault("logging.level", "info")
	m.viper.SetDefault("logging.format", "console")
}
