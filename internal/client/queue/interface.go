// Package queue implements the durable local work-item queue backed by
// SQLite. Items survive process crashes; all status transitions go through
// atomic single-statement updates so one consumer can drain while capture
// keeps enqueueing.
package queue

import (
	"context"

	"github.com/avaluotech/fieldsync/internal/client/models"
)

// Repository is the contract between the capture path (producer) and the
// sync orchestrator (consumer).
type Repository interface {
	// Enqueue persists the item with status pending before returning.
	Enqueue(ctx context.Context, item *models.WorkItem) (string, error)

	// NextBatch returns up to max dispatchable items, oldest first: pending
	// items plus failed items still under the retry ceiling. Items already
	// uploading or awaiting registration are excluded (no double-dispatch).
	NextBatch(ctx context.Context, max int) ([]*models.WorkItem, error)

	// MarkStatus performs one atomic status transition. Transitioning to
	// failed increments the attempt counter and appends a ledger entry.
	// Illegal transitions return an error.
	MarkStatus(ctx context.Context, id string, status models.ItemStatus, lastError string) error

	// Requeue returns an in-flight item to pending (upload succeeded but
	// registration failed), incrementing attempts and recording the error.
	Requeue(ctx context.Context, id string, lastError string) error

	// Release returns an in-flight item to pending without charging an
	// attempt. Used when the failure is environmental (stale credentials),
	// not the item's: the retry ceiling must not move.
	Release(ctx context.Context, id string, lastError string) error

	// MarkPermanentlyFailed moves an item straight to terminal failed
	// (validation errors are never retried).
	MarkPermanentlyFailed(ctx context.Context, id string, lastError string) error

	// Retire deletes the row. Only legal from confirmed.
	Retire(ctx context.Context, id string) error

	// RecoverStale resets items stuck in uploading/awaiting_registration
	// back to pending. Run once at open, before any dispatch.
	RecoverStale(ctx context.Context) (int, error)

	// CountDispatchable returns how many items NextBatch could still return.
	CountDispatchable(ctx context.Context) (int, error)

	// TerminallyFailed lists items at or over the retry ceiling so the user
	// can inspect, manually retry or discard them.
	TerminallyFailed(ctx context.Context) ([]*models.WorkItem, error)

	// Ledger returns the append-only attempt history for one item.
	Ledger(ctx context.Context, itemID string) ([]models.LedgerEntry, error)

	// Discard removes an item regardless of status (explicit user action).
	Discard(ctx context.Context, id string) error
}
