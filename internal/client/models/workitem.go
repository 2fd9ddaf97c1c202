// Package models defines the client-side domain types of the sync engine.
package models

import (
	"path"
	"time"
)

// ItemKind distinguishes the two evidence types the capture UI produces.
type ItemKind string

const (
	KindPhoto ItemKind = "photo"
	KindForm  ItemKind = "form"
)

// ItemStatus is the queue state of a WorkItem. Transitions only move forward
// through Pending → Uploading → AwaitingRegistration → Confirmed, or sideways
// to Failed; a registration failure returns the item to Pending. Confirmed
// rows are deleted, never archived.
type ItemStatus string

const (
	StatusPending              ItemStatus = "pending"
	StatusUploading            ItemStatus = "uploading"
	StatusAwaitingRegistration ItemStatus = "awaiting_registration"
	StatusConfirmed            ItemStatus = "confirmed"
	StatusFailed               ItemStatus = "failed"
)

// WorkItem is one unit of evidence pending upload: a photo blob or a
// completed form payload plus its capture metadata.
type WorkItem struct {
	ID          string
	Kind        ItemKind
	CaseCode    string
	FileName    string
	ContentType string
	Payload     []byte
	CapturedAt  time.Time
	CapturedBy  string
	Latitude    *float64
	Longitude   *float64
	Status      ItemStatus
	Attempts    int
	LastError   string
	EnqueuedAt  time.Time
}

// RemoteName derives the remote object name from the item id, keeping the
// original extension. Deterministic naming makes a retried upload overwrite
// the previous blob instead of duplicating it.
func (w *WorkItem) RemoteName() string {
	ext := path.Ext(w.FileName)
	if ext == "" && w.Kind == KindForm {
		ext = ".json"
	}
	return w.ID + ext
}

// LedgerEntry is one row of the append-only retry ledger.
type LedgerEntry struct {
	Seq         int64
	ItemID      string
	Attempt     int
	Outcome     string
	Error       string
	AttemptedAt time.Time
}
