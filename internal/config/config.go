package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Extractor configures the external media-extraction service.
type Extractor struct {
	URL            string `toml:"url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Tagging configures the external tagging service.
type Tagging struct {
	Enabled        bool    `toml:"enabled"`
	URL            string  `toml:"url"`
	MinConfidence  float64 `toml:"min_confidence"`
	RequestTimeout int     `toml:"request_timeout"`
}

// Archive configures the content archive the pipeline publishes into.
type Archive struct {
	Endpoint        string `toml:"endpoint"`
	RequestTimeout  int    `toml:"request_timeout"`
	CredentialsPath string `toml:"credentials_path"`
	KeyPath         string `toml:"key_path"`
}

// Workers contains scheduler tuning: pool size, phase deadlines, retry policy.
type Workers struct {
	Concurrency        int     `toml:"concurrency"`
	QueuePollInterval  int     `toml:"queue_poll_interval"`
	ErrorRetryInterval int     `toml:"error_retry_interval"`
	HeartbeatInterval  int     `toml:"heartbeat_interval"`
	HeartbeatTimeout   int     `toml:"heartbeat_timeout"`
	MaxRetries         int     `toml:"max_retries"`
	RetryDelay         int     `toml:"retry_delay"`
	BackoffFactor      float64 `toml:"backoff_factor"`
	RetryMaxDelay      int     `toml:"retry_max_delay"`
	DownloadTimeout    int     `toml:"download_timeout"`
	TagTimeout         int     `toml:"tag_timeout"`
	UploadTimeout      int     `toml:"upload_timeout"`
}

// Events configures the in-process event bus and its SSE transport.
type Events struct {
	SubscriberBuffer  int `toml:"subscriber_buffer"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Merged         bool   `toml:"merged"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for curator.
//
// Configuration sections by subsystem:
//   - Paths: directories, API bind address, API token
//   - Extractor: media extraction service endpoint
//   - Tagging: tagging service endpoint and confidence threshold
//   - Archive: archive endpoint plus encrypted credential storage paths
//   - Workers: pool size, phase timeouts, retry/backoff policy
//   - Events: event bus buffering and heartbeat cadence
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Extractor     Extractor     `toml:"extractor"`
	Tagging       Tagging       `toml:"tagging"`
	Archive       Archive       `toml:"archive"`
	Workers       Workers       `toml:"workers"`
	Events        Events        `toml:"events"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/curator/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second return is
// the resolved path, the third reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("curator.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Archive.CredentialsPath, err = expandPath(c.Archive.CredentialsPath); err != nil {
		return err
	}
	if c.Archive.KeyPath, err = expandPath(c.Archive.KeyPath); err != nil {
		return err
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.Extractor.URL = strings.TrimRight(strings.TrimSpace(c.Extractor.URL), "/")
	c.Tagging.URL = strings.TrimRight(strings.TrimSpace(c.Tagging.URL), "/")
	c.Archive.Endpoint = strings.TrimRight(strings.TrimSpace(c.Archive.Endpoint), "/")
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Archive.CredentialsPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create credentials directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
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
