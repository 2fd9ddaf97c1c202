package httpapi

import (
	"encoding/json"
	"time"

	"github.com/avaluotech/fieldsync/internal/server/services"
)

// Wire DTOs for the reconciliation endpoints. Field names are part of the
// device contract and must not drift.

type formDTO struct {
	ID         string          `json:"id"`
	CaseCode   string          `json:"expedienteId"`
	Payload    json.RawMessage `json:"datos"`
	CapturedAt time.Time       `json:"fechaCaptura"`
	Latitude   *float64        `json:"latitud,omitempty"`
	Longitude  *float64        `json:"longitud,omitempty"`
}

type evidenceDTO struct {
	ID          string    `json:"id"`
	CaseCode    string    `json:"expedienteId"`
	FileName    string    `json:"nombreArchivo"`
	ContentType string    `json:"tipoContenido"`
	Content     []byte    `json:"contenido"`
	CapturedAt  time.Time `json:"fechaCaptura"`
	Latitude    *float64  `json:"latitud,omitempty"`
	Longitude   *float64  `json:"longitud,omitempty"`
}

type batchRequest struct {
	PeritoID    string        `json:"peritoId"`
	Formularios []formDTO     `json:"formularios"`
	Evidencias  []evidenceDTO `json:"evidencias"`
}

type itemErrorDTO struct {
	ID     string `json:"id"`
	Reason string `json:"motivo"`
}

type groupResultDTO struct {
	Synced   int            `json:"sincronizados"`
	Failed   int            `json:"fallidos"`
	Errors   []itemErrorDTO `json:"errores"`
	Warnings []itemErrorDTO `json:"advertencias"`
}

type batchResponse struct {
	Success     bool           `json:"success"`
	Formularios groupResultDTO `json:"formularios"`
	Evidencias  groupResultDTO `json:"evidencias"`
	Timestamp   time.Time      `json:"timestamp"`
}

type registrationRequest struct {
	CaseCode   string    `json:"caseId"`
	RemoteRef  string    `json:"remoteRef"`
	Checksum   string    `json:"checksum"`
	Size       int64     `json:"size"`
	CapturedBy string    `json:"capturedBy"`
	CapturedAt time.Time `json:"capturedAt"`
	Latitude   *float64  `json:"lat,omitempty"`
	Longitude  *float64  `json:"lon,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toFormInputs(dtos []formDTO) []services.FormInput {
	inputs := make([]services.FormInput, 0, len(dtos))
	for _, d := range dtos {
		inputs = append(inputs, services.FormInput{
			ID:         d.ID,
			CaseCode:   d.CaseCode,
			Payload:    d.Payload,
			CapturedAt: d.CapturedAt,
			Latitude:   d.Latitude,
			Longitude:  d.Longitude,
		})
	}
	return inputs
}

func toEvidenceInputs(dtos []evidenceDTO) []services.EvidenceInput {
	inputs := make([]services.EvidenceInput, 0, len(dtos))
	for _, d := range dtos {
		inputs = append(inputs, services.EvidenceInput{
			ID:          d.ID,
			CaseCode:    d.CaseCode,
			FileName:    d.FileName,
			ContentType: d.ContentType,
			Content:     d.Content,
			CapturedAt:  d.CapturedAt,
			Latitude:    d.Latitude,
			Longitude:   d.Longitude,
		})
	}
	return inputs
}

func toGroupResult(g services.GroupOutcome) groupResultDTO {
	dto := groupResultDTO{
		Synced:   g.Synced,
		Failed:   len(g.Failures),
		Errors:   []itemErrorDTO{},
		Warnings: []itemErrorDTO{},
	}
	for _, f := range g.Failures {
		dto.Errors = append(dto.Errors, itemErrorDTO{ID: f.ID, Reason: f.Reason})
	}
	for _, w := range g.Warnings {
		dto.Warnings = append(dto.Warnings, itemErrorDTO{ID: w.ID, Reason: w.Reason})
	}
	return dto
}
