package models

import "time"

// EvidenceRecord is the registry row for one photo. The blob itself lives in
// the Blob Store; RemoteRef points at it. Keyed by the client-generated item
// id for idempotent re-registration.
type EvidenceRecord struct {
	ID          string
	CaseID      string
	PeritoID    string
	FileName    string
	ContentType string
	Size        int64
	Checksum    string
	RemoteRef   string
	CapturedAt  time.Time
	Latitude    *float64
	Longitude   *float64
	SyncedAt    time.Time
}
