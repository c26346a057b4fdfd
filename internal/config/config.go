// Package config loads Jacques's YAML configuration file and resolves its
// XDG-compliant default paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration, one sub-config per component.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Registry   RegistryConfig   `yaml:"registry"`
	Notify     NotifyConfig     `yaml:"notify"`
	Tiling     TilingConfig     `yaml:"tiling"`
	Divergence DivergenceConfig `yaml:"divergence"`
	Hook       HookConfig       `yaml:"hook"`
}

// ServerConfig controls the HTTP/WebSocket listener (§4.9, §6).
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AuthToken      string   `yaml:"auth_token"`
	MaxConnections int      `yaml:"max_connections"`
}

// RegistryConfig holds the session registry's timers (§4.3, §4.4).
// cmd/jacquesd passes CleanupSweepInterval and MaxIdle to the cleanup
// sweep; RecentlyEndedTTL, PendingBypassTTL and AwaitingDebounce are not
// read anywhere — the registry uses its own fixed 30s, 60s and 1s values.
type RegistryConfig struct {
	CleanupSweepInterval time.Duration `yaml:"cleanup_sweep_interval"`
	MaxIdle              time.Duration `yaml:"max_idle"`
	RecentlyEndedTTL     time.Duration `yaml:"recently_ended_ttl"`
	PendingBypassTTL     time.Duration `yaml:"pending_bypass_ttl"`
	AwaitingDebounce     time.Duration `yaml:"awaiting_debounce"`
}

// NotifyConfig holds notification settings in the YAML config. Nothing
// reads it: the Notification Engine loads its settings from
// ~/.jacques/config.json (§6.3) and falls back to notify.DefaultConfig.
type NotifyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BugErrorThreshold int           `yaml:"bug_error_threshold"`
	Cooldown          time.Duration `yaml:"cooldown"`
	PlanDebounce      time.Duration `yaml:"plan_debounce"`
	HistoryLimit      int           `yaml:"history_limit"`
}

// TilingConfig holds Window Tiling Coordinator settings (§4.7). Nothing
// reads it; internal/tiling uses its own fixed sleep and tolerance.
type TilingConfig struct {
	TileSleep         time.Duration `yaml:"tile_sleep"`
	BoundsTolerancePx int           `yaml:"bounds_tolerance_px"`
}

// DivergenceConfig tunes the Branch Divergence Service (§4.6).
type DivergenceConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Debounce     time.Duration `yaml:"debounce"`
}

// HookConfig controls the hook ingestion HTTP endpoint (§6.2).
type HookConfig struct {
	Path string `yaml:"path"`
}

// Load reads and parses the YAML file at path, overlaying it on top of the
// defaults so a partial config file only overrides what it specifies.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads config from path, or returns the defaults if the file
// doesn't exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return Load(path)
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8765,
			MaxConnections: 100,
		},
		Registry: RegistryConfig{
			CleanupSweepInterval: 5 * time.Minute,
			MaxIdle:              60 * time.Minute,
			RecentlyEndedTTL:     30 * time.Second,
			PendingBypassTTL:     60 * time.Second,
			AwaitingDebounce:     time.Second,
		},
		Notify: NotifyConfig{
			Enabled:           true,
			BugErrorThreshold: 78,
			Cooldown:          5 * time.Minute,
			PlanDebounce:      30 * time.Second,
			HistoryLimit:      50,
		},
		Tiling: TilingConfig{
			TileSleep:         100 * time.Millisecond,
			BoundsTolerancePx: 50,
		},
		Divergence: DivergenceConfig{
			PollInterval: 15 * time.Second,
			Debounce:     2 * time.Second,
		},
		Hook: HookConfig{
			Path: "/hook",
		},
	}
}

func defaultStateDir() string {
	if value := os.Getenv("XDG_STATE_HOME"); value != "" {
		return value
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".local", "state")
}

func defaultConfigDir() string {
	if value := os.Getenv("XDG_CONFIG_HOME"); value != "" {
		return value
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config")
}

// DefaultConfigPath returns the default XDG-compliant config file path.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "jacques", "config.yaml")
}

// DefaultNotifyConfigPath returns where the Notification Engine persists
// its own runtime-editable config, per §6.3.
func DefaultNotifyConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(defaultStateDir(), "jacques", "config.json")
	}
	return filepath.Join(homeDir, ".jacques", "config.json")
}

// Diff compares two configs and returns human-readable descriptions of
// what changed, across every section safe to apply at runtime.
func Diff(old, new *Config) []string {
	var changes []string

	if old.Registry != new.Registry {
		changes = append(changes, fmt.Sprintf("registry: %+v → %+v", old.Registry, new.Registry))
	}
	if old.Notify != new.Notify {
		changes = append(changes, fmt.Sprintf("notify: %+v → %+v", old.Notify, new.Notify))
	}
	if old.Tiling != new.Tiling {
		changes = append(changes, fmt.Sprintf("tiling: %+v → %+v", old.Tiling, new.Tiling))
	}
	if old.Divergence != new.Divergence {
		changes = append(changes, fmt.Sprintf("divergence: %+v → %+v", old.Divergence, new.Divergence))
	}
	if old.Hook != new.Hook {
		changes = append(changes, fmt.Sprintf("hook: %+v → %+v", old.Hook, new.Hook))
	}

	return changes
}
