// Package sync drains the local queue against the Blob Store and the
// reconciliation backend. One cycle is one bounded pass: take a batch,
// upload photos item by item, push forms through the batch endpoint, retire
// what was confirmed. A single consumer runs at a time; overlapping cycle
// requests are rejected, not queued.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/avaluotech/fieldsync/internal/client/api"
	"github.com/avaluotech/fieldsync/internal/client/models"
	"github.com/avaluotech/fieldsync/internal/client/queue"
	"github.com/avaluotech/fieldsync/internal/common"
	"github.com/avaluotech/fieldsync/internal/drive"
	"github.com/avaluotech/fieldsync/internal/logging"
	"github.com/sethvargo/go-retry"
)

// ErrCycleInProgress is returned when RunCycle is called while another cycle
// is still draining.
var ErrCycleInProgress = errors.New("sync cycle already in progress")

// Uploader transfers one blob to a remote path.
type Uploader interface {
	Upload(ctx context.Context, remotePath string, data []byte, contentType string, progress drive.ProgressFunc) (*drive.RemoteObject, error)
}

// Provisioner guarantees the case folder hierarchy before uploads.
type Provisioner interface {
	EnsureCaseHierarchy(ctx context.Context, caseCode string) (*drive.CaseFolders, error)
	CasePath(caseCode, subfolder, fileName string) string
}

// Sharer creates an organization-scoped view link for a remote item.
// Link creation is best-effort: failures are logged, never fatal.
type Sharer interface {
	CreateLink(ctx context.Context, itemID string) (string, error)
}

// Backend is the reconciliation API surface the orchestrator needs.
type Backend interface {
	SyncBatch(ctx context.Context, peritoID string, forms []api.FormSubmission, evidences []api.EvidenceSubmission) (*api.BatchResult, error)
	RegisterEvidence(ctx context.Context, reg api.Registration) error
}

// Progress reports acknowledged upload bytes for one item.
type Progress func(item *models.WorkItem, bytesSent, totalBytes int64)

// Summary is the outcome of one cycle.
type Summary struct {
	Synced    int
	Failed    int
	Remaining int
	// CaseLinks maps case codes to share links created this cycle.
	CaseLinks map[string]string
}

// Orchestrator owns the drain loop. All collaborators are injected; the
// orchestrator itself keeps no durable state beyond the single-flight guard.
type Orchestrator struct {
	queue       queue.Repository
	uploader    Uploader
	provisioner Provisioner
	sharer      Sharer
	backend     Backend
	logger      logging.Logger

	peritoID    string
	batchSize   int
	maxAttempts int
	retryPause  time.Duration
	progress    Progress

	running atomic.Bool
}

// Options tunes an Orchestrator. Zero values fall back to defaults.
type Options struct {
	PeritoID    string
	BatchSize   int
	MaxAttempts int
	RetryPause  time.Duration
	Progress    Progress
}

// NewOrchestrator wires the collaborators together. sharer may be nil, in
// which case no share links are created.
func NewOrchestrator(q queue.Repository, up Uploader, prov Provisioner, sharer Sharer, backend Backend, logger logging.Logger, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 25
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = queue.DefaultMaxAttempts
	}
	if opts.RetryPause <= 0 {
		opts.RetryPause = 2 * time.Second
	}
	return &Orchestrator{
		queue:       q,
		uploader:    up,
		provisioner: prov,
		sharer:      sharer,
		backend:     backend,
		logger:      logger,
		peritoID:    opts.PeritoID,
		batchSize:   opts.BatchSize,
		maxAttempts: opts.MaxAttempts,
		retryPause:  opts.RetryPause,
		progress:    opts.Progress,
	}
}

// RunCycle drains one batch. It returns ErrCycleInProgress if another cycle
// holds the guard, and a partial Summary alongside the error when the cycle
// aborts midway (stale token, cancellation).
func (o *Orchestrator) RunCycle(ctx context.Context) (*Summary, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer o.running.Store(false)

	summary := &Summary{CaseLinks: map[string]string{}}

	items, err := o.queue.NextBatch(ctx, o.batchSize)
	if err != nil {
		return summary, fmt.Errorf("fetching batch: %w", err)
	}

	o.logger.Info(ctx, "sync cycle started", "items", len(items))

	var photos, forms []*models.WorkItem
	for _, item := range items {
		if item.Kind == models.KindForm {
			forms = append(forms, item)
		} else {
			photos = append(photos, item)
		}
	}

	if err := o.syncPhotos(ctx, photos, summary); err != nil {
		o.finish(ctx, summary)
		return summary, err
	}

	if err := o.syncForms(ctx, forms, summary); err != nil {
		o.finish(ctx, summary)
		return summary, err
	}

	o.finish(ctx, summary)
	return summary, nil
}

func (o *Orchestrator) finish(ctx context.Context, summary *Summary) {
	remaining, err := o.queue.CountDispatchable(context.WithoutCancel(ctx))
	if err != nil {
		o.logger.Error(ctx, "counting remaining items", "error", err)
		return
	}
	summary.Remaining = remaining
	o.logger.Info(ctx, "sync cycle finished",
		"synced", summary.Synced, "failed", summary.Failed, "remaining", remaining)
}

// syncPhotos handles photos sequentially, provisioning each case hierarchy
// at most once per cycle. Cancellation is honored between items, never
// mid-upload.
func (o *Orchestrator) syncPhotos(ctx context.Context, photos []*models.WorkItem, summary *Summary) error {
	folders := map[string]*drive.CaseFolders{}

	for _, item := range photos {
		if err := ctx.Err(); err != nil {
			return err
		}

		caseFolders, ok := folders[item.CaseCode]
		if !ok {
			var err error
			caseFolders, err = o.provisioner.EnsureCaseHierarchy(ctx, item.CaseCode)
			if err != nil {
				if errors.Is(err, common.ErrTokenStale) {
					return fmt.Errorf("provisioning case %s: %w", item.CaseCode, err)
				}
				o.logger.Error(ctx, "case provisioning failed, skipping its items this cycle",
					"case", item.CaseCode, "error", err)
				if markErr := o.queue.MarkStatus(ctx, item.ID, models.StatusFailed, err.Error()); markErr != nil {
					return markErr
				}
				summary.Failed++
				continue
			}
			folders[item.CaseCode] = caseFolders
		}

		if err := o.syncPhoto(ctx, item, caseFolders); err != nil {
			if errors.Is(err, common.ErrTokenStale) || errors.Is(err, context.Canceled) || errors.Is(err, common.ErrStorageFatal) {
				return err
			}
			summary.Failed++
			continue
		}
		summary.Synced++
		o.shareCase(ctx, item.CaseCode, caseFolders.Case.ID, summary)
	}
	return nil
}

// syncPhoto walks one item through upload and registration with in-cycle
// retries. The retry budget honors attempts carried over from earlier
// cycles so the ceiling holds across restarts.
func (o *Orchestrator) syncPhoto(ctx context.Context, item *models.WorkItem, folders *drive.CaseFolders) error {
	remotePath := o.provisioner.CasePath(item.CaseCode, drive.PhotosFolderName, item.RemoteName())

	var progress drive.ProgressFunc
	if o.progress != nil {
		progress = func(sent, total int64) { o.progress(item, sent, total) }
	}

	budget := o.maxAttempts - item.Attempts - 1
	if budget < 0 {
		budget = 0
	}

	attempt := func(ctx context.Context) error {
		// Queue writes are local bookkeeping: they must land even when the
		// surrounding context is being torn down, or the recorded state
		// drifts from what actually reached the remote side.
		qctx := context.WithoutCancel(ctx)

		if err := o.queue.MarkStatus(qctx, item.ID, models.StatusUploading, ""); err != nil {
			return err
		}

		obj, err := o.uploader.Upload(ctx, remotePath, item.Payload, item.ContentType, progress)
		if err != nil {
			return o.recordFailure(qctx, item, fmt.Errorf("uploading %s: %w", remotePath, err))
		}

		if err := o.queue.MarkStatus(qctx, item.ID, models.StatusAwaitingRegistration, ""); err != nil {
			return err
		}

		reg := api.Registration{
			CaseCode:   item.CaseCode,
			RemoteRef:  obj.ID,
			Checksum:   common.Checksum(item.Payload),
			Size:       obj.Size,
			CapturedBy: item.CapturedBy,
			CapturedAt: item.CapturedAt,
			Latitude:   item.Latitude,
			Longitude:  item.Longitude,
		}
		if err := o.backend.RegisterEvidence(ctx, reg); err != nil {
			if errors.Is(err, common.ErrTokenStale) {
				if relErr := o.queue.Release(qctx, item.ID, err.Error()); relErr != nil {
					return relErr
				}
				return fmt.Errorf("registering %s: %w", item.ID, err)
			}
			// The blob exists remotely but the registry does not know it.
			// Back to pending; the deterministic remote name makes the next
			// upload overwrite rather than duplicate.
			if requeueErr := o.queue.Requeue(qctx, item.ID, err.Error()); requeueErr != nil {
				return requeueErr
			}
			item.Attempts++
			err = fmt.Errorf("registering %s: %w", item.ID, err)
			if common.IsRetryable(err) && item.Attempts < o.maxAttempts {
				return retry.RetryableError(err)
			}
			return err
		}

		if err := o.queue.MarkStatus(qctx, item.ID, models.StatusConfirmed, ""); err != nil {
			return err
		}
		return o.queue.Retire(qctx, item.ID)
	}

	err := retry.Do(ctx, retry.WithMaxRetries(uint64(budget), retry.NewConstant(o.retryPause)), attempt)
	if err != nil {
		o.logger.Error(ctx, "photo sync failed", "item", item.ID, "attempts", item.Attempts, "error", err)
		return err
	}
	o.logger.Info(ctx, "photo synced", "item", item.ID, "case", item.CaseCode)
	return nil
}

// recordFailure applies the failure taxonomy to one upload error: stale
// credentials release the item untouched, validation failures are pinned
// terminal, retryable ones are marked failed and handed back to the retry
// loop, everything else stops the item for this cycle.
func (o *Orchestrator) recordFailure(ctx context.Context, item *models.WorkItem, err error) error {
	if errors.Is(err, common.ErrTokenStale) {
		// Not the item's failure: it stays dispatchable with the attempt
		// counter where it was until a fresh token arrives.
		if relErr := o.queue.Release(ctx, item.ID, err.Error()); relErr != nil {
			return relErr
		}
		return err
	}

	if errors.Is(err, common.ErrValidation) {
		if markErr := o.queue.MarkPermanentlyFailed(ctx, item.ID, err.Error()); markErr != nil {
			return markErr
		}
		item.Attempts = o.maxAttempts
		return err
	}

	if markErr := o.queue.MarkStatus(ctx, item.ID, models.StatusFailed, err.Error()); markErr != nil {
		return markErr
	}
	item.Attempts++

	if common.IsRetryable(err) && item.Attempts < o.maxAttempts {
		return retry.RetryableError(err)
	}
	return err
}

// syncForms dispatches all queued forms through the batch reconciliation
// endpoint. The call is retried as a whole on transport failure; per-item
// failures reported by the backend are not retried within the cycle.
func (o *Orchestrator) syncForms(ctx context.Context, forms []*models.WorkItem, summary *Summary) error {
	if len(forms) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	active := forms
	budget := o.maxAttempts - 1
	for _, item := range forms {
		if remaining := o.maxAttempts - item.Attempts - 1; remaining < budget {
			budget = remaining
		}
	}
	if budget < 0 {
		budget = 0
	}

	attempt := func(ctx context.Context) error {
		qctx := context.WithoutCancel(ctx)

		submissions := make([]api.FormSubmission, 0, len(active))
		for _, item := range active {
			if err := o.queue.MarkStatus(qctx, item.ID, models.StatusUploading, ""); err != nil {
				return err
			}
			submissions = append(submissions, api.FormSubmission{
				ID:         item.ID,
				CaseCode:   item.CaseCode,
				Payload:    item.Payload,
				CapturedAt: item.CapturedAt,
				Latitude:   item.Latitude,
				Longitude:  item.Longitude,
			})
		}

		result, err := o.backend.SyncBatch(ctx, o.peritoID, submissions, nil)
		if err != nil {
			if errors.Is(err, common.ErrTokenStale) {
				for _, item := range active {
					if relErr := o.queue.Release(qctx, item.ID, err.Error()); relErr != nil {
						return relErr
					}
				}
				active = nil
				return err
			}
			var still []*models.WorkItem
			for _, item := range active {
				if markErr := o.queue.MarkStatus(qctx, item.ID, models.StatusFailed, err.Error()); markErr != nil {
					return markErr
				}
				item.Attempts++
				if item.Attempts < o.maxAttempts {
					still = append(still, item)
				} else {
					summary.Failed++
				}
			}
			active = still
			if common.IsRetryable(err) && len(active) > 0 {
				return retry.RetryableError(err)
			}
			return err
		}

		failures := result.FailedForms()
		for _, item := range active {
			if reason, failed := failures[item.ID]; failed {
				if markErr := o.queue.MarkStatus(qctx, item.ID, models.StatusFailed, reason); markErr != nil {
					return markErr
				}
				summary.Failed++
				continue
			}
			if err := o.queue.MarkStatus(qctx, item.ID, models.StatusAwaitingRegistration, ""); err != nil {
				return err
			}
			if err := o.queue.MarkStatus(qctx, item.ID, models.StatusConfirmed, ""); err != nil {
				return err
			}
			if err := o.queue.Retire(qctx, item.ID); err != nil {
				return err
			}
			summary.Synced++
		}
		return nil
	}

	err := retry.Do(ctx, retry.WithMaxRetries(uint64(budget), retry.NewConstant(o.retryPause)), attempt)
	if err != nil {
		summary.Failed += len(active)
		o.logger.Error(ctx, "form batch failed", "forms", len(active), "error", err)
		if errors.Is(err, common.ErrTokenStale) || errors.Is(err, context.Canceled) || errors.Is(err, common.ErrStorageFatal) {
			return err
		}
	}
	return nil
}

// shareCase creates one view link per case per cycle, best-effort.
func (o *Orchestrator) shareCase(ctx context.Context, caseCode, caseFolderID string, summary *Summary) {
	if o.sharer == nil {
		return
	}
	if _, done := summary.CaseLinks[caseCode]; done {
		return
	}
	url, err := o.sharer.CreateLink(ctx, caseFolderID)
	if err != nil {
		o.logger.Warn(ctx, "share link creation failed", "case", caseCode, "error", err)
		return
	}
	summary.CaseLinks[caseCode] = url
}
