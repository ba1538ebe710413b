// Package config loads coordinator configuration in three layers, highest
// precedence last: built-in defaults, an optional YAML config file, then
// environment variables (with .env files loaded first via godotenv).
package config

import (
	"fmt"
	"time"
)

// Load builds the effective configuration. configFile may be empty, in
// which case "coordinator.yaml" is tried if present.
func Load(configFile string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := defaults()

	required := configFile != ""
	path := configFile
	if path == "" {
		path = getEnv("COORDINATOR_CONFIG", "coordinator.yaml")
	}
	if err := applyFile(cfg, path, required); err != nil {
		return nil, err
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays environment variables, the highest precedence layer.
// Each variable defaults to the value already present in cfg.
func applyEnv(cfg *Config) {
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.WorkerID = getEnv("WORKER_ID", cfg.WorkerID)
	cfg.MetricsEnabled = getBool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.OpsAddr = getEnv("OPS_ADDR", cfg.OpsAddr)

	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.APIWaitSeconds = getFloat("API_WAIT_SECONDS", cfg.Store.APIWaitSeconds)
	cfg.Store.Sheets.CredentialsFile = getEnv("CREDENTIALS_FILE", cfg.Store.Sheets.CredentialsFile)
	cfg.Store.Sheets.SpreadsheetID = getEnv("SPREADSHEET_ID", cfg.Store.Sheets.SpreadsheetID)

	cfg.Store.Postgres.Host = getEnv("DB_HOST", cfg.Store.Postgres.Host)
	cfg.Store.Postgres.Port = getInt("DB_PORT", cfg.Store.Postgres.Port)
	cfg.Store.Postgres.Database = getEnv("DB_NAME", cfg.Store.Postgres.Database)
	cfg.Store.Postgres.Username = getEnv("DB_USER", cfg.Store.Postgres.Username)
	cfg.Store.Postgres.Password = getEnv("DB_PASSWORD", cfg.Store.Postgres.Password)
	cfg.Store.Postgres.SSLMode = getEnv("DB_SSL_MODE", cfg.Store.Postgres.SSLMode)
	cfg.Store.Postgres.MaxOpenConns = getInt("DB_MAX_OPEN_CONNS", cfg.Store.Postgres.MaxOpenConns)
	cfg.Store.Postgres.MaxIdleConns = getInt("DB_MAX_IDLE_CONNS", cfg.Store.Postgres.MaxIdleConns)

	cfg.Tables.Sources = getEnv("SOURCES_WORKSHEET", cfg.Tables.Sources)
	cfg.Tables.VideoTasks = getEnv("VIDEO_TASKS_WORKSHEET", cfg.Tables.VideoTasks)
	cfg.Tables.DeadLetterSource = getEnv("SOURCE_DEAD_LETTER_WORKSHEET", cfg.Tables.DeadLetterSource)
	cfg.Tables.DeadLetterTask = getEnv("TASK_DEAD_LETTER_WORKSHEET", cfg.Tables.DeadLetterTask)
	cfg.Tables.Workers = getEnv("WORKERS_WORKSHEET", cfg.Tables.Workers)

	cfg.Protocol.ClaimJitterSeconds = getInt("CLAIM_JITTER_SECONDS", cfg.Protocol.ClaimJitterSeconds)
	cfg.Protocol.ClaimMaxAttempts = getInt("CLAIM_MAX_ATTEMPTS", cfg.Protocol.ClaimMaxAttempts)
	cfg.Protocol.StalledTaskTimeoutMinutes = getInt("STALLED_TASK_TIMEOUT_MINUTES", cfg.Protocol.StalledTaskTimeoutMinutes)
	cfg.Protocol.StalledReaperIntervalSeconds = getInt("STALLED_REAPER_INTERVAL_SECONDS", cfg.Protocol.StalledReaperIntervalSeconds)
	cfg.Protocol.MaxRetries = getInt("MAX_RETRIES", cfg.Protocol.MaxRetries)
	cfg.Protocol.VideoTaskBatchSize = getInt("VIDEO_TASK_BATCH_SIZE", cfg.Protocol.VideoTaskBatchSize)
	cfg.Protocol.HealthCheckIntervalSeconds = getInt("HEALTH_CHECK_INTERVAL_SECONDS", cfg.Protocol.HealthCheckIntervalSeconds)
	cfg.Protocol.FatalErrorSubstrings = getList("FATAL_ERROR_SUBSTRINGS", cfg.Protocol.FatalErrorSubstrings)

	cfg.Retry.MaxAttempts = getInt("RETRY_MAX_ATTEMPTS", cfg.Retry.MaxAttempts)
	cfg.Retry.InitialBackoff = getDuration("RETRY_INITIAL_BACKOFF", cfg.Retry.InitialBackoff)
	cfg.Retry.MaxBackoff = getDuration("RETRY_MAX_BACKOFF", cfg.Retry.MaxBackoff)
	cfg.Retry.BackoffMultiplier = getFloat("RETRY_BACKOFF_MULTIPLIER", cfg.Retry.BackoffMultiplier)

	cfg.Sources.FilePath = getEnv("SOURCES_FILE_PATH", cfg.Sources.FilePath)
	cfg.Sources.HashFile = getEnv("SOURCES_HASH_FILE", cfg.Sources.HashFile)

	cfg.Results.ResultsDir = getEnv("RESULTS_DIR", cfg.Results.ResultsDir)
	cfg.Results.SelectedDir = getEnv("SELECTED_DIR", cfg.Results.SelectedDir)

	cfg.Events.Backend = getEnv("EVENTS_BACKEND", cfg.Events.Backend)
	cfg.Events.AMQP.URL = getEnv("RABBITMQ_URL", cfg.Events.AMQP.URL)
	cfg.Events.AMQP.Queue = getEnv("EVENTS_QUEUE", cfg.Events.AMQP.Queue)
	cfg.Events.SQS.Region = getEnv("SQS_REGION", cfg.Events.SQS.Region)
	cfg.Events.SQS.Queue = getEnv("EVENTS_QUEUE", cfg.Events.SQS.Queue)

	cfg.Archive.Bucket = getEnv("ARCHIVE_BUCKET", cfg.Archive.Bucket)
	cfg.Archive.Region = getEnv("ARCHIVE_REGION", getEnv("AWS_REGION", cfg.Archive.Region))
	cfg.Archive.AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", cfg.Archive.AccessKeyID)
	cfg.Archive.SecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", cfg.Archive.SecretAccessKey)
	cfg.Archive.Endpoint = getEnv("S3_ENDPOINT", cfg.Archive.Endpoint)
}

// Validate rejects configurations the process cannot start with. These
// failures are fatal: there is no partial degradation at startup.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "sheets":
		if c.Store.Sheets.CredentialsFile == "" {
			return fmt.Errorf("credentials_file is required for the sheets backend")
		}
		if c.Store.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("spreadsheet_id is required for the sheets backend")
		}
	case "postgres":
		if c.Store.Postgres.Host == "" || c.Store.Postgres.Database == "" {
			return fmt.Errorf("postgres host and database are required for the postgres backend")
		}
	case "memory":
		// Nothing to validate; test and local backend.
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.WorkerID == "" {
		return fmt.Errorf("worker_id must not be empty")
	}
	if c.Protocol.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.Protocol.VideoTaskBatchSize <= 0 {
		return fmt.Errorf("video_task_batch_size must be positive")
	}
	if c.Protocol.ClaimMaxAttempts <= 0 {
		return fmt.Errorf("claim_max_attempts must be positive")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry max_attempts must not be negative")
	}

	switch c.Events.Backend {
	case "", "none", "amqp", "sqs":
	default:
		return fmt.Errorf("unknown events backend %q", c.Events.Backend)
	}

	return nil
}

// StallTimeout returns the lease expiry as a duration.
func (c *Config) StallTimeout() time.Duration {
	return time.Duration(c.Protocol.StalledTaskTimeoutMinutes) * time.Minute
}

// ReaperInterval returns the minimum spacing between reaper passes.
func (c *Config) ReaperInterval() time.Duration {
	return time.Duration(c.Protocol.StalledReaperIntervalSeconds) * time.Second
}

// APIWait returns the minimum spacing between remote store calls.
func (c *Config) APIWait() time.Duration {
	return time.Duration(c.Store.APIWaitSeconds * float64(time.Second))
}

// HeartbeatInterval returns the spacing between worker heartbeats.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Protocol.HealthCheckIntervalSeconds) * time.Second
}
