package types

import "time"

// AppConfig represents the application configuration loaded from config file
type AppConfig struct {
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	PublicURL string          `yaml:"publicUrl"` // base URL used for join links and QR codes
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	Terminal  TerminalConfig  `yaml:"terminal"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type AuthConfig struct {
	Required  bool          `yaml:"required"`
	JWTSecret string        `yaml:"jwtSecret"`
	TokenTTL  time.Duration `yaml:"tokenTTL"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // empty keeps everything in memory
}

// SessionConfig controls session lifetime and per-session limits.
type SessionConfig struct {
	IdleTimeout    time.Duration `yaml:"idleTimeout"` // 0 disables eviction
	ChatHistory    int           `yaml:"chatHistory"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
	SearchLimit    int           `yaml:"searchLimit"`
	MaxUploadBytes int64         `yaml:"maxUploadBytes"`
}

type TerminalConfig struct {
	Shell    string `yaml:"shell"`
	WorkRoot string `yaml:"workRoot"` // empty uses os.TempDir()
	Cols     uint16 `yaml:"cols"`
	Rows     uint16 `yaml:"rows"`
}

type WebSocketConfig struct {
	OutboundBuffer int     `yaml:"outboundBuffer"`
	FrameRate      float64 `yaml:"frameRate"` // inbound SEND frames per second, per connection
	FrameBurst     int     `yaml:"frameBurst"`
	MaxFrameBytes  int64   `yaml:"maxFrameBytes"`
}

type MetricsConfig struct {
	Enabled   bool `yaml:"enabled"`
	LocalOnly bool `yaml:"localOnly"` // serve /metrics to loopback clients only
}

// Config holds runtime overrides from CLI flags
type Config struct {
	Log            string
	UseConfigPath  string
	UseHost        string
	UsePort        int
	UsePublicURL   string
	UseDatabase    string
	UseJWTSecret   string
	UseRequireAuth bool
	UseShell       string
	UseWorkRoot    string
	SkipMetrics    bool
}
