package tool

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moyoez/codesync-go/types"
)

// ConfigPath defaults to ./config.yaml and is replaced by --config.
var ConfigPath = "config.yaml"

func DefaultConfig() types.AppConfig {
	return types.AppConfig{
		Host:      "0.0.0.0",
		Port:      8080,
		PublicURL: "http://localhost:5173",
		Auth: types.AuthConfig{
			Required: false,
			TokenTTL: 10 * time.Hour,
		},
		Session: types.SessionConfig{
			IdleTimeout:    24 * time.Hour,
			ChatHistory:    200,
			FlushInterval:  5 * time.Second,
			SearchLimit:    100,
			MaxUploadBytes: 10 << 20,
		},
		Terminal: types.TerminalConfig{
			Shell: "/bin/sh",
			Cols:  120,
			Rows:  32,
		},
		WebSocket: types.WebSocketConfig{
			OutboundBuffer: 256,
			FrameRate:      50,
			FrameBurst:     100,
			MaxFrameBytes:  1 << 20,
		},
		Metrics: types.MetricsConfig{Enabled: true},
	}
}

// LoadConfig reads path over the defaults. A missing file is created with the defaults.
func LoadConfig(path string) (types.AppConfig, error) {
	if path == "" {
		path = ConfigPath
	}
	ConfigPath = path

	cfg := DefaultConfig()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if writeErr := writeConfig(path, cfg); writeErr != nil {
				return cfg, fmt.Errorf("config file not found, and failed to generate default config: %v", writeErr)
			}
			DefaultLogger.Infof("[Config] Created default config file at %s", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if info.IsDir() {
		return cfg, fmt.Errorf("config file path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %v", err)
	}
	normalize(&cfg)
	return cfg, nil
}

// normalize puts back defaults for values a hand-edited file zeroed out.
func normalize(cfg *types.AppConfig) {
	def := DefaultConfig()
	if cfg.Port <= 0 {
		cfg.Port = def.Port
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = def.Auth.TokenTTL
	}
	if cfg.Session.ChatHistory <= 0 {
		cfg.Session.ChatHistory = def.Session.ChatHistory
	}
	if cfg.Session.FlushInterval <= 0 {
		cfg.Session.FlushInterval = def.Session.FlushInterval
	}
	if cfg.Session.SearchLimit <= 0 {
		cfg.Session.SearchLimit = def.Session.SearchLimit
	}
	if cfg.Session.MaxUploadBytes <= 0 {
		cfg.Session.MaxUploadBytes = def.Session.MaxUploadBytes
	}
	if cfg.Terminal.Shell == "" {
		cfg.Terminal.Shell = def.Terminal.Shell
	}
	if cfg.Terminal.Cols == 0 || cfg.Terminal.Rows == 0 {
		cfg.Terminal.Cols, cfg.Terminal.Rows = def.Terminal.Cols, def.Terminal.Rows
	}
	if cfg.WebSocket.OutboundBuffer <= 0 {
		cfg.WebSocket.OutboundBuffer = def.WebSocket.OutboundBuffer
	}
	if cfg.WebSocket.FrameRate <= 0 {
		cfg.WebSocket.FrameRate = def.WebSocket.FrameRate
	}
	if cfg.WebSocket.FrameBurst <= 0 {
		cfg.WebSocket.FrameBurst = def.WebSocket.FrameBurst
	}
	if cfg.WebSocket.MaxFrameBytes <= 0 {
		cfg.WebSocket.MaxFrameBytes = def.WebSocket.MaxFrameBytes
	}
}

func writeConfig(path string, cfg types.AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
