// Package models defines the server-side persistence types.
package models

import "time"

// Case is one inspection file (expediente). Cases are created by back-office
// tooling; the sync endpoints only look them up by code.
type Case struct {
	ID        string
	Code      string
	PeritoID  string
	CreatedAt time.Time
}
