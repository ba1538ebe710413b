package config

import "time"

// Config holds all coordinator configuration.
type Config struct {
	// Core settings
	Environment string `yaml:"environment"`
	ServiceName string `yaml:"service_name"`
	LogLevel    string `yaml:"log_level"`
	// WorkerID is the identity written into ClaimedBy and the Workers table.
	// Defaults to the machine hostname.
	WorkerID string `yaml:"worker_id"`

	// MetricsEnabled turns the Prometheus registry on; OpsAddr exposes it.
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	OpsAddr        string `yaml:"ops_addr"`

	Store    StoreConfig    `yaml:"store"`
	Tables   TableNames     `yaml:"tables"`
	Statuses StatusStrings  `yaml:"statuses"`
	Protocol ProtocolConfig `yaml:"protocol"`
	Retry    RetryConfig    `yaml:"retry"`
	Sources  SourcesConfig  `yaml:"sources"`
	Results  ResultsConfig  `yaml:"results"`
	Events   EventsConfig   `yaml:"events"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

// StoreConfig selects and configures the backing table store.
type StoreConfig struct {
	// Backend is one of "sheets", "postgres", "memory".
	Backend string `yaml:"backend"`

	// APIWaitSeconds is the minimum spacing between remote store calls.
	APIWaitSeconds float64 `yaml:"api_wait_seconds"`

	Sheets   SheetsConfig   `yaml:"sheets"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SheetsConfig holds Google Sheets settings.
type SheetsConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// TableNames defines the five logical table (worksheet) names.
type TableNames struct {
	Sources          string `yaml:"sources"`
	VideoTasks       string `yaml:"video_tasks"`
	DeadLetterSource string `yaml:"dead_letter_sources"`
	DeadLetterTask   string `yaml:"dead_letter_tasks"`
	Workers          string `yaml:"workers"`
}

// StatusStrings are the fixed status values written to and compared against
// store cells verbatim.
type StatusStrings struct {
	Pending    string `yaml:"pending"`
	InProgress string `yaml:"in_progress"`
	Done       string `yaml:"done"`
	Error      string `yaml:"error"`
	Active     string `yaml:"active"`
}

// ProtocolConfig tunes the claim/lease/retry protocol.
type ProtocolConfig struct {
	// ClaimJitterSeconds bounds the random pre-claim sleep.
	ClaimJitterSeconds int `yaml:"claim_jitter_seconds"`
	// ClaimMaxAttempts bounds candidate attempts per claim call.
	ClaimMaxAttempts int `yaml:"claim_max_attempts"`
	// StalledTaskTimeoutMinutes is the lease expiry for in-progress rows.
	StalledTaskTimeoutMinutes int `yaml:"stalled_task_timeout_minutes"`
	// StalledReaperIntervalSeconds spaces reaper passes per table.
	StalledReaperIntervalSeconds int `yaml:"stalled_reaper_interval_seconds"`
	// MaxRetries is the per-row retry budget before dead-lettering.
	MaxRetries int `yaml:"max_retries"`
	// VideoTaskBatchSize caps rows per append during source expansion.
	VideoTaskBatchSize int `yaml:"video_task_batch_size"`
	// HealthCheckIntervalSeconds spaces worker heartbeats.
	HealthCheckIntervalSeconds int `yaml:"health_check_interval_seconds"`
	// FatalErrorSubstrings dead-letter a row on first match, regardless of
	// remaining retry budget.
	FatalErrorSubstrings []string `yaml:"fatal_error_substrings"`
}

// RetryConfig tunes the store-level transient retry decorator.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// SourcesConfig configures the sources import file.
type SourcesConfig struct {
	// FilePath is the pipe-delimited sources file; empty disables import.
	FilePath string `yaml:"file_path"`
	// HashFile tracks the last imported file hash for change detection.
	HashFile string `yaml:"hash_file"`
}

// ResultsConfig configures local artifact directories.
type ResultsConfig struct {
	ResultsDir  string `yaml:"results_dir"`
	SelectedDir string `yaml:"selected_dir"`
}

// EventsConfig configures the optional lifecycle event publisher.
type EventsConfig struct {
	// Backend is one of "none", "amqp", "sqs".
	Backend string `yaml:"backend"`

	AMQP AMQPConfig `yaml:"amqp"`
	SQS  SQSConfig  `yaml:"sqs"`
}

// AMQPConfig holds RabbitMQ settings for event publishing.
type AMQPConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

// SQSConfig holds SQS settings for event publishing.
type SQSConfig struct {
	Region string `yaml:"region"`
	Queue  string `yaml:"queue"`
}

// ArchiveConfig configures the optional S3 archive for promoted results.
// An empty bucket disables archiving.
type ArchiveConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
}
