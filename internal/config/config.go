// Package config provides configuration management for storysync.
// It supports YAML configuration files, environment variables, and sensible defaults.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kettleworks/storysync/internal/remote"
	"github.com/kettleworks/storysync/internal/sync"
)

// Config represents the complete storysync configuration.
type Config struct {
	// Sync configures when and how rounds run
	Sync SyncConfig `yaml:"sync"`

	// Remote configures the object-store backend
	Remote RemoteConfig `yaml:"remote"`

	// Storage configures local data locations
	Storage StorageConfig `yaml:"storage"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output"`
}

// SyncConfig holds synchronization settings.
type SyncConfig struct {
	// Enabled turns syncing on or off entirely
	Enabled bool `yaml:"enabled"`
	// AutoSync enables scheduled background rounds
	AutoSync bool `yaml:"auto_sync"`
	// SyncOnStartup runs a round shortly after launch
	SyncOnStartup bool `yaml:"sync_on_startup"`
	// IntervalMinutes spaces periodic rounds; must be 5, 15, 30, or 60
	IntervalMinutes int `yaml:"interval_minutes"`
	// ConflictStrategy is the default conflict resolution strategy
	ConflictStrategy string `yaml:"conflict_strategy"`
}

// RemoteConfig holds object-store connection settings.
type RemoteConfig struct {
	// Endpoint is the S3-compatible endpoint host[:port]
	Endpoint string `yaml:"endpoint"`
	// AccessKey and SecretKey authenticate against the endpoint
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	// Bucket holds the sync namespace
	Bucket string `yaml:"bucket"`
	// Prefix isolates this user's namespace inside the bucket
	Prefix string `yaml:"prefix,omitempty"`
	// Insecure disables TLS for local development endpoints
	Insecure bool `yaml:"insecure,omitempty"`
}

// StorageConfig holds local data locations.
type StorageConfig struct {
	// DataDir holds the local database, device identity, and blobs.
	// Empty means the per-user default.
	DataDir string `yaml:"data_dir,omitempty"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Color controls color output (auto, always, never)
	Color string `yaml:"color"`
	// Verbose enables verbose output
	Verbose bool `yaml:"verbose"`
}

// allowedIntervals are the sync intervals the scheduler accepts, in
// minutes.
var allowedIntervals = []int{5, 15, 30, 60}

// defaultIntervalMinutes is used when the configured interval is not one
// of the allowed values.
const defaultIntervalMinutes = 15

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Sync: SyncConfig{
			Enabled:          true,
			AutoSync:         true,
			SyncOnStartup:    true,
			IntervalMinutes:  defaultIntervalMinutes,
			ConflictStrategy: string(sync.StrategyAsk),
		},
		Output: OutputConfig{
			Color: "auto",
		},
	}
}

// configFileName is the name of the config file.
const configFileName = "config.yaml"

// appDirName is the per-user directory holding config and data.
const appDirName = "storysync"

// baseDir returns the per-user application directory.
func baseDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "."+appDirName)
	}
	return filepath.Join(dir, appDirName)
}

// FilePath returns the path to the config file.
func FilePath() string {
	return filepath.Join(baseDir(), configFileName)
}

// Exists returns true if a config file exists.
func Exists() bool {
	_, err := os.Stat(FilePath())
	return err == nil
}

// Load loads the configuration from file, merging with defaults.
// If the config file doesn't exist, returns default configuration.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(FilePath())
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvironment()
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	return c.SaveToPath(FilePath())
}

// SaveToPath writes the configuration to a specific path.
func (c *Config) SaveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyEnvironment applies environment variable overrides.
// Environment variables follow the pattern STORYSYNC_<SECTION>_<KEY>.
func (c *Config) applyEnvironment() {
	if v := os.Getenv("STORYSYNC_SYNC_ENABLED"); v != "" {
		c.Sync.Enabled = parseBool(v)
	}
	if v := os.Getenv("STORYSYNC_SYNC_AUTO"); v != "" {
		c.Sync.AutoSync = parseBool(v)
	}
	if v := os.Getenv("STORYSYNC_SYNC_ON_STARTUP"); v != "" {
		c.Sync.SyncOnStartup = parseBool(v)
	}
	if v := os.Getenv("STORYSYNC_SYNC_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sync.IntervalMinutes = n
		}
	}
	if v := os.Getenv("STORYSYNC_SYNC_STRATEGY"); v != "" {
		c.Sync.ConflictStrategy = v
	}

	if v := os.Getenv("STORYSYNC_REMOTE_ENDPOINT"); v != "" {
		c.Remote.Endpoint = v
	}
	if v := os.Getenv("STORYSYNC_REMOTE_ACCESS_KEY"); v != "" {
		c.Remote.AccessKey = v
	}
	if v := os.Getenv("STORYSYNC_REMOTE_SECRET_KEY"); v != "" {
		c.Remote.SecretKey = v
	}
	if v := os.Getenv("STORYSYNC_REMOTE_BUCKET"); v != "" {
		c.Remote.Bucket = v
	}
	if v := os.Getenv("STORYSYNC_REMOTE_PREFIX"); v != "" {
		c.Remote.Prefix = v
	}

	if v := os.Getenv("STORYSYNC_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}

	if v := os.Getenv("STORYSYNC_OUTPUT_COLOR"); v != "" {
		c.Output.Color = v
	}
	if v := os.Getenv("STORYSYNC_OUTPUT_VERBOSE"); v != "" {
		c.Output.Verbose = parseBool(v)
	}
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// GetStrategy returns the conflict strategy from config, validating it.
func (c *Config) GetStrategy() sync.Strategy {
	strategy := sync.Strategy(c.Sync.ConflictStrategy)
	if strategy.IsValid() {
		return strategy
	}
	return sync.StrategyAsk
}

// Interval returns the validated sync interval. A value outside the
// allowed set falls back to the default.
func (c *Config) Interval() time.Duration {
	for _, allowed := range allowedIntervals {
		if c.Sync.IntervalMinutes == allowed {
			return time.Duration(allowed) * time.Minute
		}
	}
	return defaultIntervalMinutes * time.Minute
}

// IsRemoteConfigured reports whether the remote backend has enough
// settings to connect.
func (c *Config) IsRemoteConfigured() bool {
	return c.Remote.Endpoint != "" && c.Remote.Bucket != ""
}

// MinioConfig translates the remote settings for the object-store client.
func (c *Config) MinioConfig() remote.MinioConfig {
	return remote.MinioConfig{
		Endpoint:  c.Remote.Endpoint,
		AccessKey: c.Remote.AccessKey,
		SecretKey: c.Remote.SecretKey,
		Bucket:    c.Remote.Bucket,
		Prefix:    c.Remote.Prefix,
		Insecure:  c.Remote.Insecure,
	}
}

// DataDir returns the directory holding the local database, device
// identity file, and downloaded blobs.
func (c *Config) DataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return baseDir()
}

// StorePath returns the local database path.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir(), "storysync.db")
}

// BlobDir returns the directory downloaded image payloads are written to.
func (c *Config) BlobDir() string {
	return filepath.Join(c.DataDir(), "files")
}
