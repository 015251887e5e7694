// Package config manages the ztpiped daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete ztpiped configuration.
type Config struct {
	Admin   AdminConfig   `koanf:"admin"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Overlay OverlayConfig `koanf:"overlay"`

	Listeners []EndpointConfig `koanf:"listeners"`
	Dialers   []EndpointConfig `koanf:"dialers"`
}

// AdminConfig holds the JSON status/inspection endpoint configuration
// ztpipectl talks to: the daemon's own operator-facing surface, a plain
// JSON-over-HTTP API rather than an RPC framework.
type AdminConfig struct {
	// Addr is the HTTP listen address for the admin API (e.g., ":7700").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// OverlayConfig holds the Overlay Host's own configuration: the home
// directory it is keyed by, and default receive limits.
type OverlayConfig struct {
	// Home is the overlay home directory for identity/planet persistence;
	// empty means ephemeral, per-Host in-memory keying.
	Home string `koanf:"home"`

	// DefaultRecvMaxSize is the receive-message cap applied to endpoints
	// that don't set their own.
	DefaultRecvMaxSize uint32 `koanf:"default_recv_max_size"`
}

// EndpointConfig describes one declarative listener or dialer from the
// configuration file. Each entry brings up an Endpoint on daemon startup
// and SIGHUP reload.
type EndpointConfig struct {
	// URL is a zt:// URL: zt://<nwid>[/<node>]:<port>.
	URL string `koanf:"url"`

	// Protocol is the opaque 16-bit higher-level protocol number this
	// endpoint speaks.
	Protocol uint16 `koanf:"protocol"`

	// RecvMaxSize overrides Overlay.DefaultRecvMaxSize for this endpoint
	// when nonzero.
	RecvMaxSize uint32 `koanf:"recv_max_size"`
}

// Key returns a unique identifier for the endpoint based on (URL,
// protocol). Used to reject duplicate endpoint declarations.
func (ec EndpointConfig) Key() string {
	return fmt.Sprintf("%s|%d", ec.URL, ec.Protocol)
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Admin: AdminConfig{
			Addr: ":7700",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Overlay: OverlayConfig{
			DefaultRecvMaxSize: 1 << 20, // 1 MiB
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for ztpiped configuration.
// Variables are named ZTPIPED_<section>_<key>, e.g., ZTPIPED_ADMIN_ADDR.
const envPrefix = "ZTPIPED_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (ZTPIPED_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	ZTPIPED_ADMIN_ADDR          -> admin.addr
//	ZTPIPED_METRICS_ADDR        -> metrics.addr
//	ZTPIPED_METRICS_PATH        -> metrics.path
//	ZTPIPED_LOG_LEVEL           -> log.level
//	ZTPIPED_LOG_FORMAT          -> log.format
//	ZTPIPED_OVERLAY_HOME        -> overlay.home
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms ZTPIPED_ADMIN_ADDR -> admin.addr.
// Strips the ZTPIPED_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"admin.addr":                  defaults.Admin.Addr,
		"metrics.addr":                defaults.Metrics.Addr,
		"metrics.path":                defaults.Metrics.Path,
		"log.level":                   defaults.Log.Level,
		"log.format":                  defaults.Log.Format,
		"overlay.home":                defaults.Overlay.Home,
		"overlay.default_recv_max_size": defaults.Overlay.DefaultRecvMaxSize,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyAdminAddr indicates the admin API listen address is empty.
	ErrEmptyAdminAddr = errors.New("admin.addr must not be empty")

	// ErrEmptyEndpointURL indicates a declarative listener/dialer has no URL.
	ErrEmptyEndpointURL = errors.New("endpoint url must not be empty")

	// ErrDuplicateEndpointKey indicates two declarative endpoints share the
	// same (url, protocol) key.
	ErrDuplicateEndpointKey = errors.New("duplicate endpoint key")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}

	if err := validateEndpoints("listeners", cfg.Listeners); err != nil {
		return err
	}
	if err := validateEndpoints("dialers", cfg.Dialers); err != nil {
		return err
	}

	return nil
}

// validateEndpoints checks each declarative endpoint entry for correctness.
func validateEndpoints(section string, endpoints []EndpointConfig) error {
	seen := make(map[string]struct{}, len(endpoints))

	for i, ec := range endpoints {
		if ec.URL == "" {
			return fmt.Errorf("%s[%d]: %w", section, i, ErrEmptyEndpointURL)
		}

		key := ec.Key()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%s[%d] key %q: %w", section, i, key, ErrDuplicateEndpointKey)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
