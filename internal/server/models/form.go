package models

import (
	"encoding/json"
	"time"
)

// FormRecord is one reconciled form. The primary key is the client-generated
// item id, which makes re-submission after a lost acknowledgment an upsert
// rather than a duplicate.
type FormRecord struct {
	ID         string
	CaseID     string
	PeritoID   string
	Payload    json.RawMessage
	CapturedAt time.Time
	Latitude   *float64
	Longitude  *float64
	SyncedAt   time.Time
}
