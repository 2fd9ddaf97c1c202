// Package api is the device-side HTTP client for the reconciliation backend:
// the batched form/evidence sync call and the per-item registry upsert.
package api

import (
	"encoding/json"
	"time"
)

// FormSubmission is one completed form sent through the batch endpoint.
type FormSubmission struct {
	ID         string          `json:"id"`
	CaseCode   string          `json:"expedienteId"`
	Payload    json.RawMessage `json:"datos"`
	CapturedAt time.Time       `json:"fechaCaptura"`
	Latitude   *float64        `json:"latitud,omitempty"`
	Longitude  *float64        `json:"longitud,omitempty"`
}

// EvidenceSubmission is one photo sent through the batch endpoint, payload
// base64-encoded by encoding/json.
type EvidenceSubmission struct {
	ID          string    `json:"id"`
	CaseCode    string    `json:"expedienteId"`
	FileName    string    `json:"nombreArchivo"`
	ContentType string    `json:"tipoContenido"`
	Payload     []byte    `json:"contenido"`
	CapturedAt  time.Time `json:"fechaCaptura"`
	Latitude    *float64  `json:"latitud,omitempty"`
	Longitude   *float64  `json:"longitud,omitempty"`
}

type batchRequest struct {
	PeritoID    string               `json:"peritoId"`
	Formularios []FormSubmission     `json:"formularios"`
	Evidencias  []EvidenceSubmission `json:"evidencias"`
}

// ItemError identifies one failed batch element and the reason.
type ItemError struct {
	ID     string `json:"id"`
	Reason string `json:"motivo"`
}

// GroupResult carries the per-array counters of a batch response. Warnings
// mark items that succeeded metadata-only (the store copy is missing).
type GroupResult struct {
	Synced   int         `json:"sincronizados"`
	Failed   int         `json:"fallidos"`
	Errors   []ItemError `json:"errores"`
	Warnings []ItemError `json:"advertencias"`
}

// BatchResult is the full reconciliation response. The call is not atomic:
// partial success is expected and reported here, never via the HTTP status.
type BatchResult struct {
	Success     bool        `json:"success"`
	Formularios GroupResult `json:"formularios"`
	Evidencias  GroupResult `json:"evidencias"`
	Timestamp   time.Time   `json:"timestamp"`
}

// FailedForms maps failed form ids to their reasons.
func (r *BatchResult) FailedForms() map[string]string {
	return errorMap(r.Formularios.Errors)
}

// FailedEvidences maps failed evidence ids to their reasons.
func (r *BatchResult) FailedEvidences() map[string]string {
	return errorMap(r.Evidencias.Errors)
}

func errorMap(errs []ItemError) map[string]string {
	m := make(map[string]string, len(errs))
	for _, e := range errs {
		m[e.ID] = e.Reason
	}
	return m
}

// Registration is the upsert sent to the Metadata Registry once a blob is
// confirmed in the Blob Store.
type Registration struct {
	CaseCode   string    `json:"caseId"`
	RemoteRef  string    `json:"remoteRef"`
	Checksum   string    `json:"checksum"`
	Size       int64     `json:"size"`
	CapturedBy string    `json:"capturedBy"`
	CapturedAt time.Time `json:"capturedAt"`
	Latitude   *float64  `json:"lat,omitempty"`
	Longitude  *float64  `json:"lon,omitempty"`
}
