package tool

import (
	"github.com/spf13/pflag"

	"github.com/moyoez/codesync-go/types"
)

// SetFlags parses CLI flags and returns the override config.
func SetFlags() types.Config {
	return parseFlags(pflag.CommandLine, nil)
}

func parseFlags(fs *pflag.FlagSet, args []string) types.Config {
	var cfg types.Config
	fs.StringVar(&cfg.Log, "log", "", "log mode: dev|prod|none")
	fs.StringVarP(&cfg.UseConfigPath, "config", "c", "", "override config file path")
	fs.StringVar(&cfg.UseHost, "host", "", "override listen host")
	fs.IntVarP(&cfg.UsePort, "port", "p", 0, "override listen port")
	fs.StringVar(&cfg.UsePublicURL, "public-url", "", "base URL used for join links and QR codes")
	fs.StringVar(&cfg.UseDatabase, "db", "", "sqlite database path (empty keeps state in memory)")
	fs.StringVar(&cfg.UseJWTSecret, "jwt-secret", "", "HMAC secret used to sign bearer tokens")
	fs.BoolVar(&cfg.UseRequireAuth, "require-auth", false, "reject REST and WebSocket clients without a valid bearer token")
	fs.StringVar(&cfg.UseShell, "shell", "", "shell spawned for session terminals")
	fs.StringVar(&cfg.UseWorkRoot, "work-root", "", "directory holding per-session terminal working directories")
	fs.BoolVar(&cfg.SkipMetrics, "no-metrics", false, "disable the /metrics endpoint")
	if args == nil {
		pflag.Parse()
	} else {
		_ = fs.Parse(args)
	}
	return cfg
}

// ApplyFlags merges non-zero flag overrides into appCfg.
func ApplyFlags(appCfg *types.AppConfig, cfg types.Config) {
	if cfg.UseHost != "" {
		appCfg.Host = cfg.UseHost
	}
	if cfg.UsePort > 0 {
		appCfg.Port = cfg.UsePort
	}
	if cfg.UsePublicURL != "" {
		appCfg.PublicURL = cfg.UsePublicURL
	}
	if cfg.UseDatabase != "" {
		appCfg.Database.Path = cfg.UseDatabase
	}
	if cfg.UseJWTSecret != "" {
		appCfg.Auth.JWTSecret = cfg.UseJWTSecret
	}
	if cfg.UseRequireAuth {
		appCfg.Auth.Required = true
	}
	if cfg.UseShell != "" {
		appCfg.Terminal.Shell = cfg.UseShell
	}
	if cfg.UseWorkRoot != "" {
		appCfg.Terminal.WorkRoot = cfg.UseWorkRoot
	}
	if cfg.SkipMetrics {
		appCfg.Metrics.Enabled = false
	}
}
