package config

import (
	"time"

	"github.com/avaluotech/fieldsync/internal/client/queue"
	"github.com/avaluotech/fieldsync/internal/drive"
)

// Config holds runtime settings for the device agent.
//
// Fields:
//   - ServerURL: base URL of the reconciliation backend.
//   - DriveBaseURL: base URL of the Blob Store drive root.
//   - QueuePath: local SQLite database file backing the outbound queue.
//   - RootFolderName: name of the remote folder all cases live under.
//   - PeritoID: identifier of the inspector this device belongs to.
//   - Token: bearer forwarded to backend and Blob Store.
//   - BatchSize: items dispatched per sync cycle.
//   - MaxAttempts: retry ceiling after which an item is terminally failed.
//   - RetryPause: fixed pause between in-cycle retries.
//   - SyncInterval: period of the background scheduler.
//   - ChunkSize: chunked-upload fragment size (must stay 320KiB-aligned).
//   - HTTPTimeout: per-request timeout for Blob Store calls.
type Config struct {
	ServerURL      string
	DriveBaseURL   string
	QueuePath      string
	RootFolderName string
	PeritoID       string
	Token          string
	BatchSize      int
	MaxAttempts    int
	RetryPause     time.Duration
	SyncInterval   time.Duration
	ChunkSize      int64
	HTTPTimeout    time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.DriveBaseURL = "http://127.0.0.1:8081/v1.0/me/drive"
	c.QueuePath = "fieldsync.db"
	c.RootFolderName = drive.DefaultRootFolderName
	c.BatchSize = 25
	c.MaxAttempts = queue.DefaultMaxAttempts
	c.RetryPause = 2 * time.Second
	c.SyncInterval = 5 * time.Minute
	c.ChunkSize = drive.DefaultChunkSize
	c.HTTPTimeout = 60 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
