package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ztpipe/ztpipe/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Admin.Addr != ":7700" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":7700")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.Overlay.Home != "" {
		t.Errorf("Overlay.Home = %q, want empty (ephemeral keying)", cfg.Overlay.Home)
	}

	if cfg.Overlay.DefaultRecvMaxSize != 1<<20 {
		t.Errorf("Overlay.DefaultRecvMaxSize = %d, want %d", cfg.Overlay.DefaultRecvMaxSize, 1<<20)
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
admin:
  addr: ":7701"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
overlay:
  home: "/var/lib/ztpiped"
  default_recv_max_size: 65536
listeners:
  - url: "zt://feed00d:0"
    protocol: 42
dialers:
  - url: "zt://feed00d/1122334455:42"
    protocol: 42
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Admin.Addr != ":7701" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":7701")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if cfg.Overlay.Home != "/var/lib/ztpiped" {
		t.Errorf("Overlay.Home = %q, want %q", cfg.Overlay.Home, "/var/lib/ztpiped")
	}

	if cfg.Overlay.DefaultRecvMaxSize != 65536 {
		t.Errorf("Overlay.DefaultRecvMaxSize = %d, want %d", cfg.Overlay.DefaultRecvMaxSize, 65536)
	}

	if len(cfg.Listeners) != 1 || cfg.Listeners[0].URL != "zt://feed00d:0" {
		t.Errorf("Listeners = %+v, want one entry for zt://feed00d:0", cfg.Listeners)
	}

	if len(cfg.Dialers) != 1 || cfg.Dialers[0].Protocol != 42 {
		t.Errorf("Dialers = %+v, want one entry with protocol 42", cfg.Dialers)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override admin.addr and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
admin:
  addr: ":7799"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	// Overridden values.
	if cfg.Admin.Addr != ":7799" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":7799")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if cfg.Overlay.DefaultRecvMaxSize != 1<<20 {
		t.Errorf("Overlay.DefaultRecvMaxSize = %d, want default %d", cfg.Overlay.DefaultRecvMaxSize, 1<<20)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty admin addr",
			modify: func(cfg *config.Config) {
				cfg.Admin.Addr = ""
			},
			wantErr: config.ErrEmptyAdminAddr,
		},
		{
			name: "empty listener url",
			modify: func(cfg *config.Config) {
				cfg.Listeners = []config.EndpointConfig{{URL: ""}}
			},
			wantErr: config.ErrEmptyEndpointURL,
		},
		{
			name: "duplicate dialer key",
			modify: func(cfg *config.Config) {
				cfg.Dialers = []config.EndpointConfig{
					{URL: "zt://feed00d/1:7", Protocol: 1},
					{URL: "zt://feed00d/1:7", Protocol: 1},
				}
			},
			wantErr: config.ErrDuplicateEndpointKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestEndpointKeyDistinct(t *testing.T) {
	t.Parallel()

	a := config.EndpointConfig{URL: "zt://feed00d/1:7", Protocol: 1}
	b := config.EndpointConfig{URL: "zt://feed00d/1:7", Protocol: 2}

	if a.Key() == b.Key() {
		t.Error("EndpointConfig.Key() collided across distinct protocols")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	yamlContent := `
admin:
  addr: ":7700"
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("ZTPIPED_METRICS_ADDR", ":9200")
	t.Setenv("ZTPIPED_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "ztpiped.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
