package playerd

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "troubd.toml")
	data := []byte("" +
		"[server]\n" +
		"broker = \"mqtt://localhost:1883\"\n" +
		"identity = \"troubd-test\"\n" +
		"log_level = \"debug\"\n" +
		"\n" +
		"[player]\n" +
		"queue_max = 100\n" +
		"idle_timeout_s = 60\n" +
		"\n" +
		"[voice]\n" +
		"max_retries = 2\n" +
		"\n" +
		"[resolver]\n" +
		"ytdlp_path = \"/usr/local/bin/yt-dlp\"\n" +
		"\n" +
		"[sink]\n" +
		"driver = \"null\"\n" +
		"\n" +
		"[modules.embedded_mqtt]\n" +
		"enabled = true\n" +
		"listen = \"127.0.0.1:0\"\n" +
		"allow_anonymous = true\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Broker != "mqtt://localhost:1883" {
		t.Fatalf("expected broker")
	}
	if cfg.Player.QueueMax != 100 {
		t.Fatalf("expected queue_max 100, got %d", cfg.Player.QueueMax)
	}
	if cfg.Voice.MaxRetries != 2 {
		t.Fatalf("expected max_retries 2, got %d", cfg.Voice.MaxRetries)
	}
	if cfg.Resolver.YTDLPPath != "/usr/local/bin/yt-dlp" {
		t.Fatalf("expected ytdlp_path override")
	}
	if cfg.Sink.Driver != "null" {
		t.Fatalf("expected null sink driver")
	}
	if !cfg.Modules.EmbeddedMQTT.Enabled {
		t.Fatalf("expected embedded mqtt enabled")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/etc/xdg-test")
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("default config path: %v", err)
	}
	if path != filepath.Join("/etc/xdg-test", "troubadour", "troubd.toml") {
		t.Fatalf("unexpected path %q", path)
	}
}

func TestEngineConfigDefaults(t *testing.T) {
	cfg := PlayerConfig{}.EngineConfig()
	if cfg.QueueMax == 0 || cfg.IdleTimeout == 0 || cfg.PreloadWorkers == 0 {
		t.Fatalf("zero section must resolve to defaults, got %+v", cfg)
	}

	cfg = PlayerConfig{QueueMax: 10, IdleTimeoutS: 90}.EngineConfig()
	if cfg.QueueMax != 10 {
		t.Fatalf("expected queue max 10, got %d", cfg.QueueMax)
	}
	if cfg.IdleTimeout != 90*time.Second {
		t.Fatalf("expected 90s idle timeout, got %v", cfg.IdleTimeout)
	}
}

func TestManagerConfigOverrides(t *testing.T) {
	cfg := VoiceConfig{MaxRetries: 7, BackoffBaseMS: 500}.ManagerConfig()
	if cfg.MaxRetries != 7 {
		t.Fatalf("expected 7 retries, got %d", cfg.MaxRetries)
	}
	if cfg.BackoffBase != 500*time.Millisecond {
		t.Fatalf("expected 500ms backoff base, got %v", cfg.BackoffBase)
	}
	if cfg.CooldownCap == 0 {
		t.Fatalf("unset fields must keep defaults")
	}
}

func TestServiceConfigOverrides(t *testing.T) {
	cfg := ResolverConfig{CacheTTLMin: 5, Workers: 4}.ServiceConfig()
	if cfg.CacheTTL != 5*time.Minute {
		t.Fatalf("expected 5m cache ttl, got %v", cfg.CacheTTL)
	}
	if cfg.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Workers)
	}
	if cfg.YTDLPPath == "" {
		t.Fatalf("unset ytdlp path must keep default")
	}
}
