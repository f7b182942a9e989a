package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Name != "maya-livelink-go" {
		t.Errorf("Expected name 'maya-livelink-go', got '%s'", cfg.Name)
	}

	if cfg.Server.Host != "localhost" {
		t.Errorf("Expected host 'localhost', got '%s'", cfg.Server.Host)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}

	if !cfg.TransportEnabled(TransportSSE) || !cfg.TransportEnabled(TransportWebSocket) {
		t.Errorf("Expected both consumer transports enabled, got %+v", cfg.Provider.Transports)
	}

	if cfg.ValidationInterval() != time.Second {
		t.Errorf("Expected 1s validation interval, got %s", cfg.ValidationInterval())
	}

	if cfg.RenderInterval() != 0 {
		t.Errorf("Expected viewport hooks disabled by default, got %s", cfg.RenderInterval())
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "livelink.json")

	testConfig := `{
		"name": "test-provider",
		"server": {
			"host": "127.0.0.1",
			"port": 8080,
			"debug": true
		},
		"provider": {
			"name": " Stage A ",
			"transports": [
				{"type": "SSE", "enabled": true},
				{"type": "websocket", "enabled": false}
			],
			"subscriber_buffer": 8
		},
		"streaming": {
			"validation_interval_seconds": 2,
			"tick_rate_hz": 50,
			"render_rate_hz": 25
		},
		"scene": {"path": "scenes/shot.yaml", "watch": false},
		"logging": {
			"level": "DEBUG",
			"format": "text",
			"path": "/tmp/test.log"
		}
	}`

	if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Name != "test-provider" {
		t.Errorf("Expected name 'test-provider', got '%s'", cfg.Name)
	}
	if cfg.Addr() != "127.0.0.1:8080" {
		t.Errorf("Expected addr '127.0.0.1:8080', got '%s'", cfg.Addr())
	}
	if cfg.Provider.Name != "Stage A" {
		t.Errorf("Expected trimmed provider name, got '%s'", cfg.Provider.Name)
	}
	if !cfg.TransportEnabled(TransportSSE) || cfg.TransportEnabled(TransportWebSocket) {
		t.Errorf("Expected only sse enabled, got %+v", cfg.Provider.Transports)
	}
	if cfg.TickInterval() != 20*time.Millisecond {
		t.Errorf("Expected 20ms tick interval, got %s", cfg.TickInterval())
	}
	if cfg.RenderInterval() != 40*time.Millisecond {
		t.Errorf("Expected 40ms render interval, got %s", cfg.RenderInterval())
	}
	if cfg.Scene.Path != "scenes/shot.yaml" || cfg.Scene.Watch {
		t.Errorf("Unexpected scene config %+v", cfg.Scene)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected normalized log level 'debug', got '%s'", cfg.Logging.Level)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "livelink.json")
	if err := EnsureDefaultConfig(configPath); err != nil {
		t.Fatalf("EnsureDefaultConfig failed: %v", err)
	}

	t.Setenv("LIVELINK_PORT", "7000")
	t.Setenv("LIVELINK_TRANSPORTS", "websocket")
	t.Setenv("LIVELINK_TICK_RATE_HZ", "0")
	t.Setenv("LIVELINK_SCENE_PATH", "other.yaml")
	t.Setenv("LIVELINK_LOG_LEVEL", "warn")
	t.Setenv("LIVELINK_SUBSCRIBER_BUFFER", "not-a-number")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Expected port override 7000, got %d", cfg.Server.Port)
	}
	if cfg.TransportEnabled(TransportSSE) || !cfg.TransportEnabled(TransportWebSocket) {
		t.Errorf("Expected only websocket, got %+v", cfg.Provider.Transports)
	}
	if cfg.TickInterval() != 0 {
		t.Errorf("Expected tick disabled, got %s", cfg.TickInterval())
	}
	if cfg.Scene.Path != "other.yaml" || cfg.Logging.Level != "warn" {
		t.Errorf("Unexpected overrides: scene=%s level=%s", cfg.Scene.Path, cfg.Logging.Level)
	}
	if cfg.Provider.SubscriberBuffer != 64 {
		t.Errorf("Expected invalid buffer override ignored, got %d", cfg.Provider.SubscriberBuffer)
	}
}

func TestLoadConfigFileNotFound(t *testing.T) {
	if _, err := LoadConfig("nonexistent.json"); err == nil {
		t.Error("Expected error when loading non-existent config file")
	}
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.json")
	if err := os.WriteFile(configPath, []byte("{ invalid json }"), 0644); err != nil {
		t.Fatalf("Failed to write invalid config: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("Expected error when loading invalid JSON config")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "port"},
		{"transport type", func(c *Config) { c.Provider.Transports = []Transport{{Type: "udp", Enabled: true}} }, "transport type"},
		{"no transport", func(c *Config) { c.Provider.Transports = []Transport{{Type: TransportSSE}} }, "at least one transport"},
		{"validation interval", func(c *Config) { c.Streaming.ValidationIntervalSeconds = 120 }, "validation interval"},
		{"tick rate", func(c *Config) { c.Streaming.TickRateHz = -1 }, "tick rate"},
		{"scene path", func(c *Config) { c.Scene.Path = "" }, "scene path"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("LIVELINK_CONFIG_PATH", "/etc/livelink.json")
	path, err := ResolveConfigPath()
	if err != nil {
		t.Fatalf("ResolveConfigPath failed: %v", err)
	}
	if path != "/etc/livelink.json" {
		t.Errorf("Expected env path, got '%s'", path)
	}

	t.Setenv("LIVELINK_CONFIG_PATH", "")
	path, err = ResolveConfigPath()
	if err != nil {
		t.Fatalf("ResolveConfigPath failed: %v", err)
	}
	if filepath.Base(path) != "livelink.json" {
		t.Errorf("Expected livelink.json fallback, got '%s'", path)
	}
}

func TestSaveConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "saved.json")

	cfg := NewConfig()
	cfg.Name = "saved-provider"
	cfg.Server.Port = 9999

	if err := SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Name != "saved-provider" || loaded.Server.Port != 9999 {
		t.Errorf("Saved config did not round-trip: %+v", loaded.Server)
	}

	if err := SaveConfig(nil, configPath); err == nil {
		t.Error("Expected error saving nil config")
	}
}
