package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateExtractor(); err != nil {
		return err
	}
	if err := c.validateTagging(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateExtractor() error {
	if strings.TrimSpace(c.Extractor.URL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/curator/config.toml"
		}
		return fmt.Errorf("extractor.url is required. Edit %s (create with 'curator config init')", defaultPath)
	}
	if c.Extractor.RequestTimeout <= 0 {
		return errors.New("extractor.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateTagging() error {
	if !c.Tagging.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Tagging.URL) == "" {
		return errors.New("tagging.url must be set when tagging.enabled is true")
	}
	if c.Tagging.MinConfidence < 0 || c.Tagging.MinConfidence > 1 {
		return errors.New("tagging.min_confidence must be between 0 and 1")
	}
	if c.Tagging.RequestTimeout <= 0 {
		return errors.New("tagging.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateArchive() error {
	if strings.TrimSpace(c.Archive.Endpoint) == "" {
		return errors.New("archive.endpoint must be set")
	}
	if c.Archive.RequestTimeout <= 0 {
		return errors.New("archive.request_timeout must be positive")
	}
	if strings.TrimSpace(c.Archive.CredentialsPath) == "" {
		return errors.New("archive.credentials_path must be set")
	}
	if strings.TrimSpace(c.Archive.KeyPath) == "" {
		return errors.New("archive.key_path must be set")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if err := ensurePositiveMap(map[string]int{
		"workers.concurrency":          c.Workers.Concurrency,
		"workers.queue_poll_interval":  c.Workers.QueuePollInterval,
		"workers.error_retry_interval": c.Workers.ErrorRetryInterval,
		"workers.retry_delay":          c.Workers.RetryDelay,
		"workers.retry_max_delay":      c.Workers.RetryMaxDelay,
		"workers.download_timeout":     c.Workers.DownloadTimeout,
		"workers.tag_timeout":          c.Workers.TagTimeout,
		"workers.upload_timeout":       c.Workers.UploadTimeout,
	}); err != nil {
		return err
	}
	if c.Workers.MaxRetries < 0 {
		return errors.New("workers.max_retries must be >= 0")
	}
	if c.Workers.BackoffFactor < 1 {
		return errors.New("workers.backoff_factor must be >= 1")
	}
	if c.Workers.HeartbeatInterval <= 0 {
		return errors.New("workers.heartbeat_interval must be positive")
	}
	if c.Workers.HeartbeatTimeout <= c.Workers.HeartbeatInterval {
		return errors.New("workers.heartbeat_timeout must be greater than workers.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if c.Events.SubscriberBuffer <= 0 {
		return errors.New("events.subscriber_buffer must be positive")
	}
	if c.Events.HeartbeatInterval <= 0 {
		return errors.New("events.heartbeat_interval must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
