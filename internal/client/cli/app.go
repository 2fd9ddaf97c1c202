// Package cli assembles the device agent: local queue, Blob Store client,
// backend client and the sync scheduler, wired from configuration.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/avaluotech/fieldsync/internal/client/api"
	"github.com/avaluotech/fieldsync/internal/client/auth"
	"github.com/avaluotech/fieldsync/internal/client/config"
	"github.com/avaluotech/fieldsync/internal/client/queue"
	syncer "github.com/avaluotech/fieldsync/internal/client/sync"
	"github.com/avaluotech/fieldsync/internal/drive"
	"github.com/avaluotech/fieldsync/internal/filex"
	"github.com/avaluotech/fieldsync/internal/logging"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	queue     *queue.SQLiteQueue
	scheduler *syncer.Scheduler
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	queuePath := c.QueuePath
	if filepath.Dir(queuePath) == "." {
		dir, err := filex.EnsureSubDir("data")
		if err != nil {
			return nil, fmt.Errorf("preparing data dir: %w", err)
		}
		queuePath = filepath.Join(dir, queuePath)
	}

	q, err := queue.Open(ctx, queuePath, c.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("opening queue: %w", err)
	}

	tokens := auth.NewRefreshable(c.Token)

	driveClient := drive.NewClient(c.DriveBaseURL, tokens, c.HTTPTimeout)
	uploader := drive.NewUploader(driveClient, c.ChunkSize, logger)
	provisioner := drive.NewProvisioner(driveClient, c.RootFolderName, logger)

	backend := api.NewClient(c.ServerURL, tokens, c.HTTPTimeout)

	orchestrator := syncer.NewOrchestrator(q, uploader, provisioner, driveClient, backend, logger, syncer.Options{
		PeritoID:    c.PeritoID,
		BatchSize:   c.BatchSize,
		MaxAttempts: c.MaxAttempts,
		RetryPause:  c.RetryPause,
	})

	scheduler := syncer.NewScheduler(orchestrator, c.SyncInterval, logger)

	return &App{config: c, logger: logger, queue: q, scheduler: scheduler}, nil
}

// Queue exposes the durable queue so capture flows can enqueue items.
func (a *App) Queue() queue.Repository {
	return a.queue
}

// TriggerSync requests an immediate sync cycle.
func (a *App) TriggerSync() {
	a.scheduler.TriggerNow()
}

func (a *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the scheduler and an immediate first cycle, then blocks until
// the context is cancelled or a termination signal arrives.
func (a *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	a.logger.Info(ctx, "Starting agent...", "perito", a.config.PeritoID)

	a.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.scheduler.Run(ctx)
	}()

	// Anything left over from a previous run should not wait a full period.
	a.scheduler.TriggerNow()

	wg.Wait()

	if err := a.queue.Close(); err != nil {
		a.logger.Error(ctx, "closing queue", "error", err)
	}
	a.logger.Info(ctx, "Agent stopped")
}
