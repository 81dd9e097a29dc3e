// Package config loads service settings from a YAML file and SAFEFETCH_*
// environment variables.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/qbandev/safefetch/internal/fetch"
	"github.com/qbandev/safefetch/internal/resilience"
)

const (
	DefaultListen       = ":6457"
	DefaultDownloadRoot = "./downloads"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Fetch  FetchConfig  `yaml:"fetch"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Listen           string `yaml:"listen"`
	ReadTimeoutSecs  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSecs int    `yaml:"write_timeout_seconds"`
	// ErrorStatusCodes maps fetch failures to 4xx/5xx instead of in-band 200s.
	ErrorStatusCodes bool   `yaml:"error_status_codes"`
	DownloadRoot     string `yaml:"download_root"`
}

type FetchConfig struct {
	DNSTimeoutSecs int    `yaml:"dns_timeout_seconds"`
	TimeoutSecs    int    `yaml:"timeout_seconds"`
	MaxRedirects   *int   `yaml:"max_redirects"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
	UserAgent      string `yaml:"user_agent"`
	RetryAttempts  int    `yaml:"retry_attempts"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads path (optional), applies environment overrides and defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) WithDefaults() *Config {
	if c == nil {
		c = &Config{}
	}
	c.Server = c.Server.withDefaults()
	c.Fetch = c.Fetch.withDefaults()
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = zerolog.LevelInfoValue
	}
	return c
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.ReadTimeoutSecs <= 0 {
		c.ReadTimeoutSecs = 30
	}
	if c.WriteTimeoutSecs <= 0 {
		c.WriteTimeoutSecs = 90
	}
	if c.DownloadRoot == "" {
		c.DownloadRoot = DefaultDownloadRoot
	}
	return c
}

func (c FetchConfig) withDefaults() FetchConfig {
	if c.DNSTimeoutSecs <= 0 {
		c.DNSTimeoutSecs = 5
	}
	if c.TimeoutSecs <= 0 {
		c.TimeoutSecs = 30
	}
	if c.MaxRedirects == nil {
		n := fetch.DefaultMaxRedirects
		c.MaxRedirects = &n
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = fetch.DefaultMaxBodyBytes
	}
	if c.UserAgent == "" {
		c.UserAgent = fetch.DefaultUserAgent
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = resilience.DefaultHopPolicy.Attempts
	}
	return c
}

func (c *Config) Validate() error {
	if c.Fetch.MaxRedirects != nil && *c.Fetch.MaxRedirects < 0 {
		return fmt.Errorf("fetch.max_redirects must be >= 0, got %d", *c.Fetch.MaxRedirects)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return nil
}

// Redirects returns the configured default redirect budget.
func (c FetchConfig) Redirects() int {
	if c.MaxRedirects == nil {
		return fetch.DefaultMaxRedirects
	}
	return *c.MaxRedirects
}

// FetcherConfig converts the file settings into fetch.Config.
func (c FetchConfig) FetcherConfig() fetch.Config {
	retry := resilience.DefaultHopPolicy
	retry.Attempts = c.RetryAttempts
	return fetch.Config{
		DNSTimeout:     time.Duration(c.DNSTimeoutSecs) * time.Second,
		RequestTimeout: time.Duration(c.TimeoutSecs) * time.Second,
		MaxBodyBytes:   c.MaxBodyBytes,
		UserAgent:      c.UserAgent,
		Retry:          retry,
	}
}

// NewLogger builds the root logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	if c.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// ApplyEnv overrides cfg with SAFEFETCH_* variables found by lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str("SAFEFETCH_LISTEN", &cfg.Server.Listen)
	str("SAFEFETCH_DOWNLOAD_ROOT", &cfg.Server.DownloadRoot)
	str("SAFEFETCH_USER_AGENT", &cfg.Fetch.UserAgent)
	str("SAFEFETCH_LOG_LEVEL", &cfg.Log.Level)

	if err := boolean("SAFEFETCH_ERROR_STATUS_CODES", &cfg.Server.ErrorStatusCodes); err != nil {
		return err
	}
	if err := boolean("SAFEFETCH_LOG_PRETTY", &cfg.Log.Pretty); err != nil {
		return err
	}
	if err := integer("SAFEFETCH_TIMEOUT_SECONDS", &cfg.Fetch.TimeoutSecs); err != nil {
		return err
	}
	if err := integer("SAFEFETCH_DNS_TIMEOUT_SECONDS", &cfg.Fetch.DNSTimeoutSecs); err != nil {
		return err
	}
	if err := integer("SAFEFETCH_RETRY_ATTEMPTS", &cfg.Fetch.RetryAttempts); err != nil {
		return err
	}
	if v, ok := lookup("SAFEFETCH_MAX_BODY_BYTES"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("parsing SAFEFETCH_MAX_BODY_BYTES: %w", err)
		}
		cfg.Fetch.MaxBodyBytes = n
	}
	if v, ok := lookup("SAFEFETCH_MAX_REDIRECTS"); ok && strings.TrimSpace(v) != "" {
		var n int
		if err := integer("SAFEFETCH_MAX_REDIRECTS", &n); err != nil {
			return err
		}
		cfg.Fetch.MaxRedirects = &n
	}
	return nil
}
