package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/qbandev/safefetch/internal/fetch"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := (&Config{}).WithDefaults()

	if cfg.Server.Listen != DefaultListen {
		t.Errorf("Listen = %q, want %q", cfg.Server.Listen, DefaultListen)
	}
	if cfg.Fetch.Redirects() != fetch.DefaultMaxRedirects {
		t.Errorf("Redirects() = %d, want %d", cfg.Fetch.Redirects(), fetch.DefaultMaxRedirects)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Server.ErrorStatusCodes {
		t.Error("ErrorStatusCodes should default to false")
	}
}

func TestWithDefaultsKeepsExplicitZeroRedirects(t *testing.T) {
	zero := 0
	cfg := (&Config{Fetch: FetchConfig{MaxRedirects: &zero}}).WithDefaults()
	if cfg.Fetch.Redirects() != 0 {
		t.Fatalf("Redirects() = %d, want 0", cfg.Fetch.Redirects())
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "safefetch.yaml")
	data := `
server:
  listen: "127.0.0.1:9000"
  error_status_codes: true
  download_root: /srv/files
fetch:
  timeout_seconds: 12
  max_redirects: 1
  max_body_bytes: 2048
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Server.Listen != "127.0.0.1:9000" || !cfg.Server.ErrorStatusCodes || cfg.Server.DownloadRoot != "/srv/files" {
		t.Errorf("Server = %+v, want values from file", cfg.Server)
	}
	if cfg.Fetch.Redirects() != 1 {
		t.Errorf("Redirects() = %d, want 1", cfg.Fetch.Redirects())
	}

	got := cfg.Fetch.FetcherConfig()
	if got.RequestTimeout != 12*time.Second || got.MaxBodyBytes != 2048 || got.DNSTimeout != 5*time.Second {
		t.Errorf("FetcherConfig() = %+v, want timeout 12s, body 2048, dns 5s", got)
	}
	if got.UserAgent != fetch.DefaultUserAgent {
		t.Errorf("UserAgent = %q, want default", got.UserAgent)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "negative redirects", data: "fetch:\n  max_redirects: -1\n"},
		{name: "bad level", data: "log:\n  level: loud\n"},
		{name: "bad yaml", data: "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0o600); err != nil {
				t.Fatalf("writing config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("Load() expected error for %s", tt.name)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{}
	err := ApplyEnv(cfg, envMap(map[string]string{
		"SAFEFETCH_LISTEN":             ":7000",
		"SAFEFETCH_ERROR_STATUS_CODES": "true",
		"SAFEFETCH_MAX_REDIRECTS":      "0",
		"SAFEFETCH_TIMEOUT_SECONDS":    "9",
		"SAFEFETCH_LOG_LEVEL":          "warn",
		"SAFEFETCH_USER_AGENT":         "  ",
		"SAFEFETCH_MAX_BODY_BYTES":     "2048",
		"SAFEFETCH_RETRY_ATTEMPTS":     "4",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() unexpected error: %v", err)
	}
	cfg = cfg.WithDefaults()

	want := struct {
		Listen       string
		StatusCodes  bool
		MaxRedirects int
		Timeout      int
		Level        string
		UserAgent    string
		MaxBody      int64
		Retries      int
	}{":7000", true, 0, 9, "warn", fetch.DefaultUserAgent, 2048, 4}
	got := struct {
		Listen       string
		StatusCodes  bool
		MaxRedirects int
		Timeout      int
		Level        string
		UserAgent    string
		MaxBody      int64
		Retries      int
	}{cfg.Server.Listen, cfg.Server.ErrorStatusCodes, cfg.Fetch.Redirects(), cfg.Fetch.TimeoutSecs, cfg.Log.Level, cfg.Fetch.UserAgent, cfg.Fetch.MaxBodyBytes, cfg.Fetch.RetryAttempts}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ApplyEnv() mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnvRejectsMalformedNumbers(t *testing.T) {
	for _, key := range []string{
		"SAFEFETCH_MAX_REDIRECTS", "SAFEFETCH_TIMEOUT_SECONDS", "SAFEFETCH_ERROR_STATUS_CODES",
		"SAFEFETCH_MAX_BODY_BYTES", "SAFEFETCH_RETRY_ATTEMPTS",
	} {
		t.Run(key, func(t *testing.T) {
			if err := ApplyEnv(&Config{}, envMap(map[string]string{key: "many"})); err == nil {
				t.Fatalf("ApplyEnv() expected error for %s=many", key)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := (LogConfig{Level: "debug"}).NewLogger(os.Stderr); err != nil {
		t.Fatalf("NewLogger() unexpected error: %v", err)
	}
	if _, err := (LogConfig{Level: "chatty"}).NewLogger(os.Stderr); err == nil {
		t.Fatal("NewLogger() expected error for unknown level")
	}
}
