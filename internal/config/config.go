package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the chat server runtime parameters.
type Config struct {
	ListenAddress       string        `mapstructure:"listen_address"`
	AdminAddress        string        `mapstructure:"admin_address"`
	LogLevel            string        `mapstructure:"log_level"`
	LogEncoding         string        `mapstructure:"log_encoding"`
	StaticDir           string        `mapstructure:"static_dir"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
	Chat                ChatConfig    `mapstructure:"chat"`
}

// ChatConfig bounds per-connection transport behavior.
type ChatConfig struct {
	SendBufferSize int           `mapstructure:"send_buffer_size"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
}

const (
	defaultListenAddress       = ":3000"
	defaultAdminAddress        = "127.0.0.1:9090"
	defaultLogLevel            = "info"
	defaultShutdownGracePeriod = 10 * time.Second
	defaultSendBufferSize      = 64
	defaultMaxMessageSize      = 4096
	defaultWriteTimeout        = 10 * time.Second
	defaultPongTimeout         = 60 * time.Second
)

// Load reads configuration from the provided file path (if any) and the environment.
// Environment variables are prefixed with NOVA_ and can override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NOVA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("listen_address", defaultListenAddress)
	v.SetDefault("admin_address", defaultAdminAddress)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("log_encoding", "json")
	v.SetDefault("static_dir", "")
	v.SetDefault("shutdown_grace_period", defaultShutdownGracePeriod.String())
	v.SetDefault("chat.send_buffer_size", defaultSendBufferSize)
	v.SetDefault("chat.max_message_size", defaultMaxMessageSize)
	v.SetDefault("chat.write_timeout", defaultWriteTimeout.String())
	v.SetDefault("chat.pong_timeout", defaultPongTimeout.String())
	// 0s means derive the interval from the pong window below.
	v.SetDefault("chat.ping_interval", "0s")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Viper leaves durations as strings; normalize them here.
	for _, d := range []struct {
		key      string
		dst      *time.Duration
		fallback time.Duration
	}{
		{"shutdown_grace_period", &cfg.ShutdownGracePeriod, defaultShutdownGracePeriod},
		{"chat.write_timeout", &cfg.Chat.WriteTimeout, defaultWriteTimeout},
		{"chat.pong_timeout", &cfg.Chat.PongTimeout, defaultPongTimeout},
		{"chat.ping_interval", &cfg.Chat.PingInterval, 0},
	} {
		if !v.IsSet(d.key) {
			*d.dst = d.fallback
			continue
		}
		dur, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = dur
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.Chat.SendBufferSize <= 0 {
		cfg.Chat.SendBufferSize = defaultSendBufferSize
	}
	if cfg.Chat.MaxMessageSize <= 0 {
		cfg.Chat.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.Chat.PingInterval <= 0 {
		// Pings must fire well inside the pong window or healthy
		// connections get reaped.
		cfg.Chat.PingInterval = cfg.Chat.PongTimeout * 9 / 10
	}

	return cfg, nil
}
