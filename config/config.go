package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Stream transport types.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// Config represents the provider configuration
type Config struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Server      Server    `json:"server"`
	Provider    Provider  `json:"provider"`
	Streaming   Streaming `json:"streaming"`
	Scene       Scene     `json:"scene"`
	Logging     Logging   `json:"logging"`
}

// Server represents HTTP server configuration
type Server struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Debug bool   `json:"debug"`
}

// Provider names the stream source and the consumer transports it serves.
type Provider struct {
	Name             string      `json:"name"`
	Transports       []Transport `json:"transports"`
	SubscriberBuffer int         `json:"subscriber_buffer"`
}

// Transport represents a consumer transport configuration
type Transport struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// Streaming controls the bridge loop cadence.
type Streaming struct {
	ValidationIntervalSeconds float64 `json:"validation_interval_seconds"`
	// TickRateHz drives the stream timer; 0 disables it.
	TickRateHz float64 `json:"tick_rate_hz"`
	// RenderRateHz simulates viewport redraws per panel; 0 disables the hooks.
	RenderRateHz float64 `json:"render_rate_hz"`
}

// Scene points at the scene document served to consumers.
type Scene struct {
	Path  string `json:"path"`
	Watch bool   `json:"watch"`
}

// Logging represents logging configuration
type Logging struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Path   string `json:"path"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return &Config{
		Name:        "maya-livelink-go",
		Version:     "0.1.0",
		Description: "Live Link style subject provider for authoring-tool scenes",
		Server: Server{
			Host:  "localhost",
			Port:  9090,
			Debug: false,
		},
		Provider: Provider{
			Name: "Maya Live Link",
			Transports: []Transport{
				{Type: TransportSSE, Enabled: true},
				{Type: TransportWebSocket, Enabled: true},
			},
			SubscriberBuffer: 64,
		},
		Streaming: Streaming{
			ValidationIntervalSeconds: 1,
			TickRateHz:                30,
			RenderRateHz:              0,
		},
		Scene: Scene{
			Path:  "config/scene.example.yaml",
			Watch: true,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
			Path:   filepath.Join(home, ".maya-livelink", "logs", "livelink.log"),
		},
	}
}

// LoadConfig loads the configuration from a file
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	// Environment variables have the highest priority.
	applyEnvOverrides(cfg)
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a file
func SaveConfig(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return writeJSON(cfg, path)
}

func writeJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("LIVELINK_HOST"); host != "" {
		cfg.Server.Host = host
	}
	envInt("LIVELINK_PORT", &cfg.Server.Port)
	envBool("LIVELINK_DEBUG", &cfg.Server.Debug)

	if name := os.Getenv("LIVELINK_PROVIDER_NAME"); name != "" {
		cfg.Provider.Name = name
	}
	if transports := os.Getenv("LIVELINK_TRANSPORTS"); transports != "" {
		cfg.Provider.Transports = cfg.Provider.Transports[:0]
		for _, t := range parseCSV(transports) {
			cfg.Provider.Transports = append(cfg.Provider.Transports, Transport{Type: t, Enabled: true})
		}
	}
	envInt("LIVELINK_SUBSCRIBER_BUFFER", &cfg.Provider.SubscriberBuffer)

	envFloat("LIVELINK_VALIDATION_INTERVAL_SECONDS", &cfg.Streaming.ValidationIntervalSeconds)
	envFloat("LIVELINK_TICK_RATE_HZ", &cfg.Streaming.TickRateHz)
	envFloat("LIVELINK_RENDER_RATE_HZ", &cfg.Streaming.RenderRateHz)

	if scenePath := os.Getenv("LIVELINK_SCENE_PATH"); scenePath != "" {
		cfg.Scene.Path = scenePath
	}
	envBool("LIVELINK_SCENE_WATCH", &cfg.Scene.Watch)

	if logLevel := os.Getenv("LIVELINK_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("LIVELINK_LOG_FORMAT"); logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if logPath := os.Getenv("LIVELINK_LOG_PATH"); logPath != "" {
		cfg.Logging.Path = logPath
	}
}

func envInt(key string, dst *int) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("warning: ignoring invalid %s value %q: %v", key, raw, err)
		return
	}
	*dst = parsed
}

func envFloat(key string, dst *float64) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("warning: ignoring invalid %s value %q: %v", key, raw, err)
		return
	}
	*dst = parsed
}

func envBool(key string, dst *bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("warning: ignoring invalid %s value %q: %v", key, raw, err)
		return
	}
	*dst = parsed
}

// Normalize canonicalizes config values so downstream validation and runtime
// logic operate on stable representations.
func (c *Config) Normalize() {
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	c.Provider.Name = strings.TrimSpace(c.Provider.Name)
	for i := range c.Provider.Transports {
		c.Provider.Transports[i].Type = strings.ToLower(strings.TrimSpace(c.Provider.Transports[i].Type))
	}
	if c.Provider.SubscriberBuffer == 0 {
		c.Provider.SubscriberBuffer = 64
	}
	if c.Streaming.ValidationIntervalSeconds == 0 {
		c.Streaming.ValidationIntervalSeconds = 1
	}
	c.Scene.Path = strings.TrimSpace(c.Scene.Path)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Path = strings.TrimSpace(c.Logging.Path)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid port number")
	}
	if c.Server.Host == "" {
		return errors.New("host cannot be empty")
	}

	if c.Provider.Name == "" {
		return errors.New("provider name cannot be empty")
	}
	if c.Provider.SubscriberBuffer < 1 {
		return fmt.Errorf("invalid subscriber buffer %d: must be positive", c.Provider.SubscriberBuffer)
	}

	validTransportTypes := map[string]bool{
		TransportSSE:       true,
		TransportWebSocket: true,
	}
	enabledTransports := 0
	for _, t := range c.Provider.Transports {
		if !validTransportTypes[t.Type] {
			return fmt.Errorf("invalid transport type: %s", t.Type)
		}
		if t.Enabled {
			enabledTransports++
		}
	}
	if enabledTransports == 0 {
		return errors.New("at least one transport must be enabled")
	}

	if c.Streaming.ValidationIntervalSeconds < 0.1 || c.Streaming.ValidationIntervalSeconds > 60 {
		return fmt.Errorf("invalid validation interval seconds %g: expected range 0.1..60", c.Streaming.ValidationIntervalSeconds)
	}
	if c.Streaming.TickRateHz < 0 || c.Streaming.TickRateHz > 240 {
		return fmt.Errorf("invalid tick rate %g: expected range 0..240", c.Streaming.TickRateHz)
	}
	if c.Streaming.RenderRateHz < 0 || c.Streaming.RenderRateHz > 240 {
		return fmt.Errorf("invalid render rate %g: expected range 0..240", c.Streaming.RenderRateHz)
	}

	if c.Scene.Path == "" {
		return errors.New("scene path cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return errors.New("invalid log level")
	}
	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return errors.New("invalid log format")
	}
	if c.Logging.Path == "" {
		return errors.New("log path cannot be empty")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// TransportEnabled reports whether the named consumer transport is on.
func (c *Config) TransportEnabled(kind string) bool {
	for _, t := range c.Provider.Transports {
		if t.Type == kind && t.Enabled {
			return true
		}
	}
	return false
}

func (c *Config) ValidationInterval() time.Duration {
	return secondsToDuration(c.Streaming.ValidationIntervalSeconds)
}

// TickInterval is zero when the stream timer is disabled.
func (c *Config) TickInterval() time.Duration {
	return rateToInterval(c.Streaming.TickRateHz)
}

// RenderInterval is zero when viewport hooks are disabled.
func (c *Config) RenderInterval() time.Duration {
	return rateToInterval(c.Streaming.RenderRateHz)
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func rateToInterval(hz float64) time.Duration {
	if hz <= 0 {
		return 0
	}
	return secondsToDuration(1 / hz)
}

// ResolveConfigPath returns the path that should be used for configuration.
func ResolveConfigPath() (string, error) {
	if path := strings.TrimSpace(os.Getenv("LIVELINK_CONFIG_PATH")); path != "" {
		return path, nil
	}

	if _, err := os.Stat("config/livelink.json"); err == nil {
		return "config/livelink.json", nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".maya-livelink", "config", "livelink.json"), nil
}

// EnsureDefaultConfig creates a default config file if one does not exist.
func EnsureDefaultConfig(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path cannot be empty")
	}

	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	defaultConfig := NewConfig()
	defaultConfig.Normalize()
	return writeJSON(defaultConfig, path)
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
