// Package config loads the vidqueue client configuration from a TOML
// file with the override chain defaults -> file -> environment -> CLI
// flags. CLI flags always win, matching user expectations for one-off
// overrides without editing the config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Defaults for a zero-config first run.
const (
	DefaultServerURL    = "http://localhost:8080"
	DefaultPollSeconds  = 10
	DefaultLogLevel     = "info"
	defaultUploadLimit  = 0 // unbounded
	appDirName          = "vidqueue"
	configFileName      = "config.toml"
	tokenFileName       = "token.json"
	historyDatabaseName = "history.db"
)

// Config is the on-disk configuration shape.
type Config struct {
	ServerURL string       `toml:"server_url"`
	LogLevel  string       `toml:"log_level"`
	Upload    UploadConfig `toml:"upload"`
	Poll      PollConfig   `toml:"poll"`
	Watch     WatchConfig  `toml:"watch"`
}

// UploadConfig tunes the upload orchestrator.
type UploadConfig struct {
	// Parallel bounds concurrent uploads; 0 means unbounded.
	Parallel int `toml:"parallel"`
}

// PollConfig tunes the status synchronizer.
type PollConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	// Extensions accepted by watch mode, e.g. [".mp4", ".mkv"].
	// Empty selects the built-in video formats.
	Extensions []string `toml:"extensions"`
}

// EnvOverrides carries the supported VIDQUEUE_* environment variables.
type EnvOverrides struct {
	ConfigPath string
	ServerURL  string
}

// CLIOverrides carries the persistent flag values.
type CLIOverrides struct {
	ConfigPath string
	ServerURL  string
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		ServerURL: DefaultServerURL,
		LogLevel:  DefaultLogLevel,
		Upload:    UploadConfig{Parallel: defaultUploadLimit},
		Poll:      PollConfig{IntervalSeconds: DefaultPollSeconds},
	}
}

// ReadEnvOverrides reads the supported environment variables.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv("VIDQUEUE_CONFIG"),
		ServerURL:  os.Getenv("VIDQUEUE_SERVER"),
	}
}

// Load reads and parses a TOML config file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise
// returns a Config populated with all default values. This supports
// the zero-config first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve applies the full override chain and returns the effective
// configuration.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.ServerURL != "" {
		cfg.ServerURL = env.ServerURL
	}

	if cli.ServerURL != "" {
		cfg.ServerURL = cli.ServerURL
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// validate rejects configurations that cannot work.
func validate(cfg *Config) error {
	if cfg.ServerURL == "" {
		return errors.New("server_url must not be empty")
	}

	if cfg.Poll.IntervalSeconds < 1 {
		return fmt.Errorf("poll.interval_seconds must be >= 1, got %d", cfg.Poll.IntervalSeconds)
	}

	if cfg.Upload.Parallel < 0 {
		return fmt.Errorf("upload.parallel must be >= 0, got %d", cfg.Upload.Parallel)
	}

	return nil
}

// DefaultConfigPath returns the platform config file location,
// e.g. ~/.config/vidqueue/config.toml on Linux.
func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", configFileName)
	}

	return filepath.Join(base, appDirName, configFileName)
}

// TokenPath returns the session token file location. The token lives
// under the user config dir alongside the config file.
func TokenPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", tokenFileName)
	}

	return filepath.Join(base, appDirName, tokenFileName)
}

// HistoryPath returns the submission ledger database location.
func HistoryPath() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".", historyDatabaseName)
	}

	return filepath.Join(base, appDirName, historyDatabaseName)
}
