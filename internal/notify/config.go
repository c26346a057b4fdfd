package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Config is the Notification Engine's configurable settings (§4.8),
// persisted to a JSON file and merged with defaults on load.
type Config struct {
	Enabled                 bool            `json:"enabled"`
	Categories              map[string]bool `json:"categories"`
	LargeOperationThreshold int             `json:"largeOperationThreshold"`
	ContextThresholds       []int           `json:"contextThresholds"`
	BugAlertThreshold       int             `json:"bugAlertThreshold"`
}

// DefaultConfig returns the built-in defaults (§4.8, §6.3).
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		Categories:              defaultCategories(),
		LargeOperationThreshold: 50000,
		ContextThresholds:       []int{50, 70},
		BugAlertThreshold:       5,
	}
}

func defaultCategories() map[string]bool {
	return map[string]bool{
		string(CategoryContext):     true,
		string(CategoryOperation):   false,
		string(CategoryPlan):        true,
		string(CategoryHandoff):     true,
		string(CategoryAutoCompact): true,
		string(CategoryBugAlert):    false,
	}
}

func (c *Config) categoryEnabled(cat Category) bool {
	if c.Categories == nil {
		return defaultCategories()[string(cat)]
	}
	if v, ok := c.Categories[string(cat)]; ok {
		return v
	}
	return defaultCategories()[string(cat)]
}

// configWrapper matches §6.3's on-disk shape: the notification settings
// live nested under a "notifications" key.
type configWrapper struct {
	Notifications Config `json:"notifications"`
}

// ConfigStore loads and atomically persists Config at a fixed path,
// default ~/.jacques/config.json.
type ConfigStore struct {
	path string
}

// NewConfigStore constructs a ConfigStore. An empty path resolves to the
// default location.
func NewConfigStore(path string) *ConfigStore {
	if path == "" {
		path = DefaultConfigPath()
	}
	return &ConfigStore{path: path}
}

// DefaultConfigPath returns ~/.jacques/config.json.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".jacques", "config.json")
}

// Path returns the file path this store reads/writes.
func (s *ConfigStore) Path() string {
	return s.path
}

// Load reads Config from disk, merging it over the built-in defaults so a
// partial file (or missing category keys) only overrides what it
// specifies. A missing file returns the defaults.
func (s *ConfigStore) Load() (*Config, error) {
	fl := flock.New(s.path + ".lock")
	if err := fl.Lock(); err == nil {
		defer fl.Unlock()
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("reading notify config: %w", err)
	}

	var wrapper configWrapper
	wrapper.Notifications.Enabled = DefaultConfig().Enabled
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parsing notify config: %w", err)
	}

	merged := DefaultConfig()
	mergeConfig(&merged, &wrapper.Notifications)
	return &merged, nil
}

func mergeConfig(base *Config, loaded *Config) {
	base.Enabled = loaded.Enabled
	if loaded.LargeOperationThreshold > 0 {
		base.LargeOperationThreshold = loaded.LargeOperationThreshold
	}
	if len(loaded.ContextThresholds) > 0 {
		base.ContextThresholds = loaded.ContextThresholds
	}
	if loaded.BugAlertThreshold > 0 {
		base.BugAlertThreshold = loaded.BugAlertThreshold
	}
	for k, v := range loaded.Categories {
		base.Categories[k] = v
	}
}

// Save writes cfg to disk using an atomic temp-file-then-rename pattern,
// guarded by an advisory file lock so a concurrent reader never observes
// a half-written file.
func (s *ConfigStore) Save(cfg *Config) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	fl := flock.New(s.path + ".lock")
	if err := fl.Lock(); err == nil {
		defer fl.Unlock()
	}

	data, err := json.MarshalIndent(configWrapper{Notifications: *cfg}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling notify config: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming config file: %w", err)
	}
	committed = true

	return nil
}
