// Package config loads ~/.convsync/config.toml. Every field has a default, so
// a missing file or a partial file is valid.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration written as a string ("15s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", b, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global ~/.convsync/config.toml.
type Config struct {
	DefaultProfile string        `toml:"default_profile"`
	LogLevel       string        `toml:"log_level"`
	Gateway        GatewayConfig `toml:"gateway"`
	Daemon         DaemonConfig  `toml:"daemon"`
}

// GatewayConfig configures convsync-gateway.
type GatewayConfig struct {
	Listen string `toml:"listen"`
	// Provider is "whatsapp" or "loopback".
	Provider        string   `toml:"provider"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	RateLimit       int      `toml:"rate_limit_per_minute"`
	ActiveWindow    Duration `toml:"active_window"`
	MaxMessageChars int      `toml:"max_message_chars"`
	ProviderTimeout Duration `toml:"provider_timeout"`
	// LoopbackFailEvery makes the loopback provider reject every Nth send.
	LoopbackFailEvery int `toml:"loopback_fail_every"`
}

// DaemonConfig configures convsyncd.
type DaemonConfig struct {
	GatewayURL           string   `toml:"gateway_url"`
	SendTimeout          Duration `toml:"send_timeout"`
	RefetchInterval      Duration `toml:"refetch_interval"`
	PollInterval         Duration `toml:"poll_interval"`
	HistoryPageSize      int      `toml:"history_page_size"`
	MergeRapidDuplicates bool     `toml:"merge_rapid_duplicates"`
	ReconnectInitial     Duration `toml:"reconnect_initial"`
	ReconnectMax         Duration `toml:"reconnect_max"`
	MetricsAddr          string   `toml:"metrics_addr"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Gateway: GatewayConfig{
			Listen:          "127.0.0.1:8080",
			Provider:        "loopback",
			AllowedOrigins:  []string{"*"},
			RateLimit:       120,
			ActiveWindow:    Duration{24 * time.Hour},
			MaxMessageChars: 4000,
			ProviderTimeout: Duration{20 * time.Second},
		},
		Daemon: DaemonConfig{
			GatewayURL:           "http://127.0.0.1:8080",
			SendTimeout:          Duration{15 * time.Second},
			RefetchInterval:      Duration{30 * time.Second},
			PollInterval:         Duration{2 * time.Second},
			HistoryPageSize:      20,
			MergeRapidDuplicates: true,
			ReconnectInitial:     Duration{500 * time.Millisecond},
			ReconnectMax:         Duration{30 * time.Second},
		},
	}
}

// Load reads config from the given path over the defaults. Returns error if
// the file is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate rejects values the components cannot run with.
func (c *Config) Validate() error {
	switch c.Gateway.Provider {
	case "whatsapp", "loopback":
	default:
		return fmt.Errorf("gateway.provider: unknown provider %q", c.Gateway.Provider)
	}
	if c.Daemon.SendTimeout.Duration <= 0 {
		return errors.New("daemon.send_timeout must be positive")
	}
	if c.Daemon.HistoryPageSize <= 0 || c.Daemon.HistoryPageSize > 100 {
		return fmt.Errorf("daemon.history_page_size must be in 1..100, got %d", c.Daemon.HistoryPageSize)
	}
	if c.Gateway.ActiveWindow.Duration < 0 {
		return errors.New("gateway.active_window must not be negative")
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
