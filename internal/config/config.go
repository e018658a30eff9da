package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Store selects the tabular record repository.
type Store struct {
	Driver     string `toml:"driver"`
	DSN        string `toml:"dsn"`
	SQLitePath string `toml:"sqlite_path"`
	BatchSize  int    `toml:"batch_size"`
	PageSize   int    `toml:"page_size"`
}

// Storage selects the object storage backend holding recordings.
type Storage struct {
	Backend        string `toml:"backend"`
	BaseURL        string `toml:"base_url"`
	Bucket         string `toml:"bucket"`
	APIKey         string `toml:"api_key"`
	Dir            string `toml:"dir"`
	Region         string `toml:"region"`
	Endpoint       string `toml:"endpoint"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Transcode contains configuration for the audio transcoding engine.
type Transcode struct {
	Enabled      bool   `toml:"enabled"`
	FFmpegBinary string `toml:"ffmpeg_binary"`
	WorkspaceDir string `toml:"workspace_dir"`
}

// Export contains configuration for archive assembly.
type Export struct {
	Concurrency int `toml:"concurrency"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for uttervault.
//
// Configuration sections by subsystem:
//   - Paths: output, state and log directories plus the API bind address and token
//   - Store: record repository driver (postgres or sqlite) and batch sizes
//   - Storage: recording blob backend (http, s3 or fs)
//   - Transcode: ffmpeg-backed audio conversion
//   - Export: archive assembly concurrency
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Store     Store     `toml:"store"`
	Storage   Storage   `toml:"storage"`
	Transcode Transcode `toml:"transcode"`
	Export    Export    `toml:"export"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/uttervault/config.toml")
}

// EnvConfigPath names the environment variable consulted when no explicit
// config path is given.
const EnvConfigPath = "UTTERVAULT_CONFIG"

// Load locates, parses and validates the configuration. It returns the
// config with every path expanded, the file it came from, and whether that
// file existed. Unknown keys are rejected so typos surface early.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file).DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config %s: %s", path, strings.TrimSpace(strict.String()))
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// resolveConfigPath picks the first of: the explicit path, $UTTERVAULT_CONFIG,
// the default path, ./uttervault.toml. When none exists the explicit path (or
// the default) is returned with exists=false.
func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if strings.TrimSpace(path) != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return "", false, err
		}
		exists, err := fileExists(expanded)
		if err != nil {
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, exists, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("uttervault.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{defaultPath, projectPath} {
		if ok, _ := fileExists(candidate); ok {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		return !info.IsDir(), nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// EnsureDirectories creates the directories exports and logs are written to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.OutputDir, c.Paths.StateDir, c.Paths.LogDir}
	if c.Transcode.Enabled {
		dirs = append(dirs, c.Transcode.WorkspaceDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ExportLockPath returns the lock file guarding concurrent CLI exports.
func (c *Config) ExportLockPath() string {
	return filepath.Join(c.Paths.StateDir, "export.lock")
}

// DaemonLockPath returns the lock file enforcing a single uttervaultd instance.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.StateDir, "uttervaultd.lock")
}

// LogFilePath returns the path of the persistent log file.
func (c *Config) LogFilePath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "uttervault.log")
}

// StorageTimeout returns the blob download timeout.
func (c *Config) StorageTimeout() time.Duration {
	return time.Duration(c.Storage.TimeoutSeconds) * time.Second
}

// ExpandPath resolves a leading ~ to the home directory and returns the
// cleaned absolute path. Empty input stays empty.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return "", nil
	}
	if pathValue == "~" || strings.HasPrefix(pathValue, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		pathValue = filepath.Join(home, strings.TrimPrefix(pathValue, "~"))
	}
	absolute, err := filepath.Abs(pathValue)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
