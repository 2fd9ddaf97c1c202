package config

import (
	"flag"
	"os"
	"time"

	"github.com/avaluotech/fieldsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-s string   base URL of the reconciliation backend (default from Config)
//	-d string   base URL of the Blob Store drive (default from Config)
//	-q string   path of the local queue database file (default from Config)
//	-u string   perito identifier (default from Config)
//	-b int      items dispatched per sync cycle (default from Config)
//	-i int      scheduled sync interval in seconds (default from Config)
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-s", "-d", "-q", "-u", "-b", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "s", cfg.ServerURL, "base URL of the reconciliation backend")
	fs.StringVar(&cfg.DriveBaseURL, "d", cfg.DriveBaseURL, "base URL of the Blob Store drive")
	fs.StringVar(&cfg.QueuePath, "q", cfg.QueuePath, "path of the local queue database file")
	fs.StringVar(&cfg.PeritoID, "u", cfg.PeritoID, "perito identifier")
	fs.IntVar(&cfg.BatchSize, "b", cfg.BatchSize, "items dispatched per sync cycle")
	syncInterval := fs.Int("i", int(cfg.SyncInterval.Seconds()), "scheduled sync interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
}
