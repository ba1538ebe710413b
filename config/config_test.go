package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	assert.Equal(t, "sheets", cfg.Store.Backend)
	assert.Equal(t, 3.0, cfg.Store.APIWaitSeconds)
	assert.Equal(t, "Sources", cfg.Tables.Sources)
	assert.Equal(t, "Video Tasks", cfg.Tables.VideoTasks)
	assert.Equal(t, "Dead-Letter Sources", cfg.Tables.DeadLetterSource)
	assert.Equal(t, "Dead-Letter Tasks", cfg.Tables.DeadLetterTask)
	assert.Equal(t, "Workers", cfg.Tables.Workers)
	assert.Equal(t, "pending", cfg.Statuses.Pending)
	assert.Equal(t, "in-progress", cfg.Statuses.InProgress)
	assert.Equal(t, 5, cfg.Protocol.ClaimJitterSeconds)
	assert.Equal(t, 60, cfg.Protocol.StalledTaskTimeoutMinutes)
	assert.Equal(t, 3, cfg.Protocol.MaxRetries)
	assert.Equal(t, 25, cfg.Protocol.VideoTaskBatchSize)
	assert.Len(t, cfg.Protocol.FatalErrorSubstrings, 9)
	assert.NotEmpty(t, cfg.WorkerID)
}

func TestEnvOverridesFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "coordinator.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
store:
  backend: memory
  api_wait_seconds: 0.5
protocol:
  max_retries: 5
  claim_jitter_seconds: 2
`), 0o644))

	t.Setenv("MAX_RETRIES", "7")
	t.Setenv("WORKER_ID", "worker-a")

	cfg, err := Load(file)
	require.NoError(t, err)

	// File layer applied.
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 0.5, cfg.Store.APIWaitSeconds)
	assert.Equal(t, 2, cfg.Protocol.ClaimJitterSeconds)
	// Env layer wins over file.
	assert.Equal(t, 7, cfg.Protocol.MaxRetries)
	assert.Equal(t, "worker-a", cfg.WorkerID)
	// Defaults survive where nothing overrides.
	assert.Equal(t, 25, cfg.Protocol.VideoTaskBatchSize)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateSheetsRequiresCredentials(t *testing.T) {
	cfg := defaults()
	cfg.Store.Backend = "sheets"
	cfg.Store.Sheets.CredentialsFile = ""
	assert.Error(t, cfg.Validate())

	cfg.Store.Sheets.CredentialsFile = "creds.json"
	cfg.Store.Sheets.SpreadsheetID = ""
	assert.Error(t, cfg.Validate())

	cfg.Store.Sheets.SpreadsheetID = "sheet-id"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := defaults()
	cfg.Store.Backend = "etcd"
	assert.Error(t, cfg.Validate())
}

func TestFatalSubstringsFromEnv(t *testing.T) {
	t.Setenv("FATAL_ERROR_SUBSTRINGS", "Private video;Video unavailable")

	cfg := defaults()
	applyEnv(cfg)

	assert.Equal(t, []string{"Private video", "Video unavailable"}, cfg.Protocol.FatalErrorSubstrings)
}

func TestDerivedDurations(t *testing.T) {
	cfg := defaults()
	cfg.Store.APIWaitSeconds = 1.5

	assert.Equal(t, 60*time.Minute, cfg.StallTimeout())
	assert.Equal(t, 300*time.Second, cfg.ReaperInterval())
	assert.Equal(t, 1500*time.Millisecond, cfg.APIWait())
	assert.Equal(t, 60*time.Second, cfg.HeartbeatInterval())
}
