package playerd

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/troubadour-audio/troubadour/internal/player"
	"github.com/troubadour-audio/troubadour/internal/resolver"
	"github.com/troubadour-audio/troubadour/internal/voice"
)

// Config is the top-level configuration for troubd.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Player   PlayerConfig   `toml:"player"`
	Voice    VoiceConfig    `toml:"voice"`
	Resolver ResolverConfig `toml:"resolver"`
	Sink     SinkConfig     `toml:"sink"`
	Modules  ModulesConfig  `toml:"modules"`
}

// ServerConfig defines shared daemon settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	Identity  string     `toml:"identity"`
	TopicBase string     `toml:"topic_base"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	LogOutput string     `toml:"log_output"`
	LogSource bool       `toml:"log_source"`
	LogUTC    bool       `toml:"log_utc"`
	LogColor  bool       `toml:"log_color"`
	Daemonize bool       `toml:"daemonize"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for MQTT.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds MQTT auth credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// PlayerConfig tunes the per-guild playback engines. Zero values fall
// back to the engine defaults.
type PlayerConfig struct {
	QueueMax        int   `toml:"queue_max"`
	IdleTimeoutS    int64 `toml:"idle_timeout_s"`
	PreloadAhead    int   `toml:"preload_ahead"`
	PreloadWorkers  int   `toml:"preload_workers"`
	PrepareTimeoutS int64 `toml:"prepare_timeout_s"`
}

// VoiceConfig tunes connection recovery.
type VoiceConfig struct {
	MaxRetries           int   `toml:"max_retries"`
	ConnectTimeoutS      int64 `toml:"connect_timeout_s"`
	BackoffBaseMS        int64 `toml:"backoff_base_ms"`
	BackoffCapMS         int64 `toml:"backoff_cap_ms"`
	UnexplainedThreshold int   `toml:"unexplained_threshold"`
	CooldownCapS         int64 `toml:"cooldown_cap_s"`
	ValidateIntervalS    int64 `toml:"validate_interval_s"`
}

// ResolverConfig tunes track resolution.
type ResolverConfig struct {
	YTDLPPath   string `toml:"ytdlp_path"`
	TimeoutS    int64  `toml:"timeout_s"`
	CacheSize   int    `toml:"cache_size"`
	CacheTTLMin int64  `toml:"cache_ttl_min"`
	Workers     int    `toml:"workers"`
}

// SinkConfig selects and configures the audio sink.
type SinkConfig struct {
	Driver   string `toml:"driver"`
	Pipeline string `toml:"pipeline"`
	Device   string `toml:"device"`
}

// ModulesConfig holds optional daemon module configurations.
type ModulesConfig struct {
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// EngineConfig resolves the player section against engine defaults.
func (c PlayerConfig) EngineConfig() player.Config {
	cfg := player.DefaultEngineConfig()
	if c.QueueMax > 0 {
		cfg.QueueMax = c.QueueMax
	}
	if c.IdleTimeoutS > 0 {
		cfg.IdleTimeout = time.Duration(c.IdleTimeoutS) * time.Second
	}
	if c.PreloadAhead > 0 {
		cfg.PreloadAhead = c.PreloadAhead
	}
	if c.PreloadWorkers > 0 {
		cfg.PreloadWorkers = c.PreloadWorkers
	}
	if c.PrepareTimeoutS > 0 {
		cfg.PrepareTimeout = time.Duration(c.PrepareTimeoutS) * time.Second
	}
	return cfg
}

// ManagerConfig resolves the voice section against recovery defaults.
func (c VoiceConfig) ManagerConfig() voice.Config {
	cfg := voice.DefaultConfig()
	if c.MaxRetries > 0 {
		cfg.MaxRetries = c.MaxRetries
	}
	if c.ConnectTimeoutS > 0 {
		cfg.ConnectTimeout = time.Duration(c.ConnectTimeoutS) * time.Second
	}
	if c.BackoffBaseMS > 0 {
		cfg.BackoffBase = time.Duration(c.BackoffBaseMS) * time.Millisecond
	}
	if c.BackoffCapMS > 0 {
		cfg.BackoffCap = time.Duration(c.BackoffCapMS) * time.Millisecond
	}
	if c.UnexplainedThreshold > 0 {
		cfg.UnexplainedThreshold = c.UnexplainedThreshold
	}
	if c.CooldownCapS > 0 {
		cfg.CooldownCap = time.Duration(c.CooldownCapS) * time.Second
	}
	if c.ValidateIntervalS > 0 {
		cfg.ValidateInterval = time.Duration(c.ValidateIntervalS) * time.Second
	}
	return cfg
}

// ServiceConfig resolves the resolver section against its defaults.
func (c ResolverConfig) ServiceConfig() resolver.Config {
	cfg := resolver.DefaultConfig()
	if c.YTDLPPath != "" {
		cfg.YTDLPPath = c.YTDLPPath
	}
	if c.TimeoutS > 0 {
		cfg.Timeout = time.Duration(c.TimeoutS) * time.Second
	}
	if c.CacheSize > 0 {
		cfg.CacheSize = c.CacheSize
	}
	if c.CacheTTLMin > 0 {
		cfg.CacheTTL = time.Duration(c.CacheTTLMin) * time.Minute
	}
	if c.Workers > 0 {
		cfg.Workers = c.Workers
	}
	return cfg
}

// LoadConfig loads a config file from path.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "troubadour", "troubd.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "troubadour", "troubd.toml"), nil
}
