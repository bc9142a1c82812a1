// Package server provides configuration helpers that define runtime defaults,
// validation, and the override chain (environment, INI file, flags) for the
// ChatRelay service.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/ini.v1"
)

// Config holds the relay configuration settings for both listeners.
type Config struct {
	// Addr is the bind address shared by the TCP listener and the optional
	// WebSocket gateway.
	Addr string
	// Port is the TCP listener port.
	Port int
	// WSPort is the WebSocket gateway port. Zero disables the gateway.
	WSPort int
	// MaxFrameSize bounds a single inbound frame in bytes.
	MaxFrameSize int64
	// SendBuffer is the per-session outbound queue length.
	SendBuffer int
	// AllowedOrigins lists origins accepted by the WebSocket gateway.
	AllowedOrigins []string
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1",
		Port:         50000,
		WSPort:       0,
		MaxFrameSize: 8192,
		SendBuffer:   256,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1"
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = 50000
	}

	if cfg.WSPort < 0 || cfg.WSPort > 65535 {
		cfg.WSPort = 0
	}

	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = 8192
	}

	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := Config{
		Addr:           cfg.Addr,
		Port:           cfg.Port,
		WSPort:         cfg.WSPort,
		MaxFrameSize:   cfg.MaxFrameSize,
		SendBuffer:     cfg.SendBuffer,
		AllowedOrigins: append([]string(nil), cfg.AllowedOrigins...),
	}
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if addr := os.Getenv("CHATRELAY_ADDR"); addr != "" {
		cfg.Addr = addr
	}

	if port := os.Getenv("CHATRELAY_PORT"); port != "" {
		cfg.Port = parsePort(port, cfg.Port)
	}

	if wsPort := os.Getenv("CHATRELAY_WS_PORT"); wsPort != "" {
		cfg.WSPort = parsePort(wsPort, cfg.WSPort)
	}

	if maxSize := os.Getenv("CHATRELAY_MAX_FRAME_SIZE"); maxSize != "" {
		cfg.MaxFrameSize = parseMaxFrameSize(maxSize, cfg.MaxFrameSize)
	}

	if buffer := os.Getenv("CHATRELAY_SEND_BUFFER"); buffer != "" {
		cfg.SendBuffer = parseIntValue(buffer, cfg.SendBuffer)
	}

	if origins := os.Getenv("CHATRELAY_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	return &cfg
}

// LoadConfigFile overlays settings from an INI file onto cfg. Keys live in the
// [server] section: addr, port, ws_port, max_frame_size, send_buffer, and
// allowed_origins (comma-separated). Missing keys leave cfg untouched.
func LoadConfigFile(path string, cfg *Config) error {
	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("loading config file %s: %w", path, err)
	}

	section := file.Section("server")

	if key := section.Key("addr").String(); key != "" {
		cfg.Addr = key
	}
	if key := section.Key("port").String(); key != "" {
		cfg.Port = parsePort(key, cfg.Port)
	}
	if key := section.Key("ws_port").String(); key != "" {
		cfg.WSPort = parsePort(key, cfg.WSPort)
	}
	if key := section.Key("max_frame_size").String(); key != "" {
		cfg.MaxFrameSize = parseMaxFrameSize(key, cfg.MaxFrameSize)
	}
	if key := section.Key("send_buffer").String(); key != "" {
		cfg.SendBuffer = parseIntValue(key, cfg.SendBuffer)
	}
	if key := section.Key("allowed_origins").String(); key != "" {
		cfg.AllowedOrigins = parseOrigins(key)
	}

	return nil
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parsePort(value string, defaultValue int) int {
	if port, err := strconv.Atoi(value); err == nil && port > 0 && port <= 65535 {
		return port
	}
	return defaultValue
}

func parseMaxFrameSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}
