// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/asset-proxy/config.toml",
	"configs/config.toml",
}

// reservedRoutes are the fixed routes a metrics path must not shadow.
var reservedRoutes = []string{"/ping", "/proxy", "/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config     string           `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host       string           `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port       int              `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	StaticRoot string           `kong:"help='Directory served for static requests (overrides config).',env='STATIC_ROOT'"`
	LogLevel   string           `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Version    kong.VersionFlag `kong:"help='Print version and exit.'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Static   StaticConfig   `toml:"static"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (5173)
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// StaticConfig describes the directory served for non-API paths.
type StaticConfig struct {
	Root  string `toml:"root"`
	Index string `toml:"index"`
}

// UpstreamConfig holds outbound fetch settings for the image proxy.
type UpstreamConfig struct {
	TimeoutSeconds      int      `toml:"timeout_seconds"`
	IdleConnections     int      `toml:"idle_connections"`
	DenyPrivateNetworks bool     `toml:"deny_private_networks"`
	AllowedHosts        []string `toml:"allowed_hosts"` // empty allows any host
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file, if any, and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/asset-proxy/config.toml then configs/config.toml and falls back to
// built-in defaults when neither exists.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.StaticRoot != "" {
		c.Static.Root = cli.StaticRoot
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	for _, h := range c.Upstream.AllowedHosts {
		if h == "" || strings.ContainsAny(h, "/:?#") {
			return fmt.Errorf("upstream.allowed_hosts entries must be bare host names; got %q", h)
		}
	}

	if strings.ContainsRune(c.Static.Index, '/') {
		return fmt.Errorf("static.index must be a file name, not a path; got %q", c.Static.Index)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5173
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1 << 20 // 1 MiB
	}
	if c.Static.Root == "" {
		c.Static.Root = "assets/data"
	}
	if c.Static.Index == "" {
		c.Static.Index = "index.html"
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 60
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FilePath returns the config file that was loaded, or "" when running on defaults.
func (c *Config) FilePath() string {
	return c.filePath
}

// WarnPermissions logs a warning if the config file is writable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o022 != 0 {
		logger.Warn("config file is writable by group/others; consider chmod 644",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}

// HostAllowed reports whether the proxy may fetch from host.
// An empty allow-list permits every host.
func (u *UpstreamConfig) HostAllowed(host string) bool {
	if len(u.AllowedHosts) == 0 {
		return true
	}
	for _, h := range u.AllowedHosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}
