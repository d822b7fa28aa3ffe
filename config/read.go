package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	TransportWebsocket = "websocket"
	TransportNATS      = "nats"

	defaultTypingIdleMS = 2000
)

// ReadConfig reads the configuration from the specified JSON file and fills
// in defaults for anything the file leaves out.
func ReadConfig(configPath string) (Config, error) {
	var cfg Config

	viper.SetConfigFile(configPath)
	viper.SetConfigType("json")

	viper.SetDefault("server_url", "http://localhost:5000")
	viper.SetDefault("transport", TransportWebsocket)
	viper.SetDefault("nats_url", "nats://localhost:4222")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("typing_idle_ms", defaultTypingIdleMS)

	if err := viper.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Transport != TransportWebsocket && cfg.Transport != TransportNATS {
		return cfg, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if cfg.TypingIdleMS <= 0 {
		cfg.TypingIdleMS = defaultTypingIdleMS
	}

	if cfg.SessionFile == "" || cfg.CacheDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return cfg, fmt.Errorf("failed to resolve user config dir: %w", err)
		}
		if cfg.SessionFile == "" {
			cfg.SessionFile = filepath.Join(base, "oasis-chat", "session.json")
		}
		if cfg.CacheDir == "" {
			cfg.CacheDir = filepath.Join(base, "oasis-chat", "cache")
		}
	}

	return cfg, nil
}

// MustReadConfig reads the configuration or panics if there's an error.
func MustReadConfig(configPath string) Config {
	cfg, err := ReadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	return cfg
}
