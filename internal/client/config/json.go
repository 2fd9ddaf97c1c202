package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/avaluotech/fieldsync/internal/flagx"
	"github.com/avaluotech/fieldsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "5m" or
// as integer nanoseconds. After parsing, values are copied into the runtime
// Config (which uses time.Duration).
type JsonConfig struct {
	ServerURL      *string         `json:"server_url"`
	DriveBaseURL   *string         `json:"drive_base_url"`
	QueuePath      *string         `json:"queue_path"`
	RootFolderName *string         `json:"root_folder_name"`
	PeritoID       *string         `json:"perito_id"`
	Token          *string         `json:"token"`
	BatchSize      *int            `json:"batch_size"`
	MaxAttempts    *int            `json:"max_attempts"`
	RetryPause     *timex.Duration `json:"retry_pause"`
	SyncInterval   *timex.Duration `json:"sync_interval"`
	ChunkSize      *int64          `json:"chunk_size"`
	HTTPTimeout    *timex.Duration `json:"http_timeout"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Only fields present in the file overwrite the Config; absent fields keep
// their earlier value. Panics on read or unmarshal errors (caller should
// recover if desired).
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != nil {
		cfg.ServerURL = *jc.ServerURL
	}
	if jc.DriveBaseURL != nil {
		cfg.DriveBaseURL = *jc.DriveBaseURL
	}
	if jc.QueuePath != nil {
		cfg.QueuePath = *jc.QueuePath
	}
	if jc.RootFolderName != nil {
		cfg.RootFolderName = *jc.RootFolderName
	}
	if jc.PeritoID != nil {
		cfg.PeritoID = *jc.PeritoID
	}
	if jc.Token != nil {
		cfg.Token = *jc.Token
	}
	if jc.BatchSize != nil {
		cfg.BatchSize = *jc.BatchSize
	}
	if jc.MaxAttempts != nil {
		cfg.MaxAttempts = *jc.MaxAttempts
	}
	if jc.RetryPause != nil {
		cfg.RetryPause = time.Duration(jc.RetryPause.Duration)
	}
	if jc.SyncInterval != nil {
		cfg.SyncInterval = time.Duration(jc.SyncInterval.Duration)
	}
	if jc.ChunkSize != nil {
		cfg.ChunkSize = *jc.ChunkSize
	}
	if jc.HTTPTimeout != nil {
		cfg.HTTPTimeout = time.Duration(jc.HTTPTimeout.Duration)
	}
}
