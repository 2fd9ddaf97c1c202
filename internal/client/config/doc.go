// Package config loads runtime configuration for the fieldsync device agent.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-s string   base URL of the reconciliation backend
//	-d string   base URL of the Blob Store drive
//	-q string   path of the local queue database file
//	-u string   perito (inspector) identifier
//	-b int      items dispatched per sync cycle
//	-i int      scheduled sync interval (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "5m" or integer nanoseconds:
//
//	{
//	  "server_url": "https://backend.example",
//	  "drive_base_url": "https://drive.example/v1.0/me/drive",
//	  "queue_path": "/var/lib/fieldsync/queue.db",
//	  "root_folder_name": "Peritajes",
//	  "perito_id": "perito1",
//	  "batch_size": 25,
//	  "max_attempts": 5,
//	  "retry_pause": "2s",
//	  "sync_interval": "5m",
//	  "chunk_size": 3276800,
//	  "http_timeout": "60s"
//	}
//
// The bearer token is never read from flags; supply it via the JSON file.
// This package does not read environment variables.
package config
