package config

const (
	defaultStagingDir      = "~/.local/share/curator/staging"
	defaultLogDir          = "~/.local/share/curator/logs"
	defaultAPIBind         = "127.0.0.1:7590"
	defaultCredentialsPath = "~/.config/curator/credentials.enc"
	defaultKeyPath         = "~/.config/curator/credentials.key"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"

	defaultWorkerConcurrency  = 3
	defaultQueuePollInterval  = 2
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultMaxRetries         = 3
	defaultRetryDelay         = 30
	defaultBackoffFactor      = 2.0
	defaultRetryMaxDelay      = 900
	defaultDownloadTimeout    = 600
	defaultTagTimeout         = 120
	defaultUploadTimeout      = 300

	defaultSubscriberBuffer       = 64
	defaultEventHeartbeatInterval = 15

	defaultTaggingMinConfidence = 0.5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Extractor: Extractor{
			RequestTimeout: defaultDownloadTimeout,
		},
		Tagging: Tagging{
			Enabled:        true,
			MinConfidence:  defaultTaggingMinConfidence,
			RequestTimeout: defaultTagTimeout,
		},
		Archive: Archive{
			RequestTimeout:  defaultUploadTimeout,
			CredentialsPath: defaultCredentialsPath,
			KeyPath:         defaultKeyPath,
		},
		Workers: Workers{
			Concurrency:        defaultWorkerConcurrency,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			MaxRetries:         defaultMaxRetries,
			RetryDelay:         defaultRetryDelay,
			BackoffFactor:      defaultBackoffFactor,
			RetryMaxDelay:      defaultRetryMaxDelay,
			DownloadTimeout:    defaultDownloadTimeout,
			TagTimeout:         defaultTagTimeout,
			UploadTimeout:      defaultUploadTimeout,
		},
		Events: Events{
			SubscriberBuffer:  defaultSubscriberBuffer,
			HeartbeatInterval: defaultEventHeartbeatInterval,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Completed:      true,
			Merged:         true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
