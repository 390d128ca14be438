package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all daemon configuration.
type Config struct {
	DeviceName string       `yaml:"device_name"`
	Appearance uint16       `yaml:"appearance"`
	Bearer     string       `yaml:"bearer"` // "sim" or "hw"
	ChipName   string       `yaml:"chip_name"`
	Feed       FeedConfig   `yaml:"feed"`
	Timing     TimingConfig `yaml:"timing"`
	DenyList   []string     `yaml:"caller_name_deny_list"`
	LogLevel   string       `yaml:"log_level"`
}

// FeedConfig holds the local event feed settings.
type FeedConfig struct {
	SocketPath string `yaml:"socket_path"`
}

// TimingConfig holds the call-state disambiguation thresholds and the
// GATT lifecycle delays, all in milliseconds.
type TimingConfig struct {
	DialJitterMs      int `yaml:"dial_jitter_ms"`      // second OFFHOOK within this window is jitter
	RedialGapMs       int `yaml:"redial_gap_ms"`       // OFFHOOK while ACTIVE after this gap is a new call
	DialingWatchdogMs int `yaml:"dialing_watchdog_ms"` // force DIALING -> ACTIVE after this
	StartBarrierMs    int `yaml:"start_barrier_ms"`    // soft barrier between server start and client connect
	RestartCooldownMs int `yaml:"restart_cooldown_ms"` // mandatory delay between server teardown and restart
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "wearlink-blue", "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		DeviceName: "WearLink Phone",
		Appearance: 0x0040, // Generic Phone
		Bearer:     "sim",
		ChipName:   "WearLink Chip",
		Feed: FeedConfig{
			SocketPath: filepath.Join(os.TempDir(), "wearlink-feed.sock"),
		},
		Timing: TimingConfig{
			DialJitterMs:      500,
			RedialGapMs:       1000,
			DialingWatchdogMs: 5000,
			StartBarrierMs:    100,
			RestartCooldownMs: 800,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.DeviceName == "" {
		return fmt.Errorf("device_name must not be empty")
	}
	if c.Bearer != "sim" && c.Bearer != "hw" {
		return fmt.Errorf("bearer must be \"sim\" or \"hw\", got %q", c.Bearer)
	}
	if c.Feed.SocketPath == "" {
		return fmt.Errorf("feed.socket_path must not be empty")
	}
	if c.Timing.DialJitterMs < 0 || c.Timing.RedialGapMs < 0 || c.Timing.DialingWatchdogMs <= 0 {
		return fmt.Errorf("timing thresholds must be positive")
	}
	if c.Timing.DialJitterMs >= c.Timing.DialingWatchdogMs {
		return fmt.Errorf("dial_jitter_ms (%d) must be below dialing_watchdog_ms (%d)",
			c.Timing.DialJitterMs, c.Timing.DialingWatchdogMs)
	}
	return nil
}
