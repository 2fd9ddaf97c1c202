package config

import (
	"flag"
	"os"
	"time"

	"github.com/avaluotech/fieldsync/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-e string   Blob Store drive base URL
//	-f string   remote root folder name
//	-t int      Blob Store request timeout, seconds
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-e", "-f", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.DriveBaseURL, "e", config.DriveBaseURL, "Blob Store drive base URL")
	fs.StringVar(&config.RootFolderName, "f", config.RootFolderName, "remote root folder name")

	driveTimeout := fs.Int("t", int(config.DriveTimeout.Seconds()), "Blob Store request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.DriveTimeout = time.Duration(*driveTimeout) * time.Second
}
