package config

type Config struct {
	ServerURL    string `mapstructure:"server_url"`
	Transport    string `mapstructure:"transport"`
	NATSURL      string `mapstructure:"nats_url"`
	LogLevel     string `mapstructure:"log_level"`
	SessionFile  string `mapstructure:"session_file"`
	CacheDir     string `mapstructure:"cache_dir"`
	TypingIdleMS int    `mapstructure:"typing_idle_ms"`
}
