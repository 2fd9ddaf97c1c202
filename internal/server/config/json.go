package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/avaluotech/fieldsync/internal/flagx"
	"github.com/avaluotech/fieldsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It uses
// timex.Duration for interval fields, which allows parsing both string
// values such as "10s" and integer nanoseconds. After unmarshalling, its
// fields are copied into the runtime Config struct.
type JsonConfig struct {
	EndpointAddr    *string         `json:"endpoint_addr"`
	DatabaseDSN     *string         `json:"database_dsn"`
	DriveBaseURL    *string         `json:"drive_base_url"`
	RootFolderName  *string         `json:"root_folder_name"`
	DriveTimeout    *timex.Duration `json:"drive_timeout"`
	ShutdownTimeout *timex.Duration `json:"shutdown_timeout"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is:
//
//	The -c or -config command-line flags.
//	If it is not set, no JSON file is loaded.
//
// Only fields present in the file overwrite the Config. If the file cannot
// be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.EndpointAddr != nil {
		config.EndpointAddr = *c.EndpointAddr
	}
	if c.DatabaseDSN != nil {
		config.DatabaseDSN = *c.DatabaseDSN
	}
	if c.DriveBaseURL != nil {
		config.DriveBaseURL = *c.DriveBaseURL
	}
	if c.RootFolderName != nil {
		config.RootFolderName = *c.RootFolderName
	}
	if c.DriveTimeout != nil {
		config.DriveTimeout = time.Duration(c.DriveTimeout.Duration)
	}
	if c.ShutdownTimeout != nil {
		config.ShutdownTimeout = time.Duration(c.ShutdownTimeout.Duration)
	}
}
