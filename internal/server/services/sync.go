// Package services holds the server-side business logic: batch
// reconciliation of forms and evidences, and single-item registry upserts.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avaluotech/fieldsync/internal/common"
	"github.com/avaluotech/fieldsync/internal/dbx"
	"github.com/avaluotech/fieldsync/internal/logging"
	"github.com/avaluotech/fieldsync/internal/server/models"
	"github.com/avaluotech/fieldsync/internal/server/repositories/repomanager"
)

// ReasonCaseNotFound is the per-item failure reason for an unknown case code.
const ReasonCaseNotFound = "expediente no encontrado"

// ReasonBlobNotForwarded warns that an evidence was registered metadata-only
// because its content could not be copied to the Blob Store.
const ReasonBlobNotForwarded = "contenido no replicado en almacenamiento remoto"

// FormInput is one form element of a reconciliation batch.
type FormInput struct {
	ID         string
	CaseCode   string
	Payload    json.RawMessage
	CapturedAt time.Time
	Latitude   *float64
	Longitude  *float64
}

// EvidenceInput is one photo element of a reconciliation batch.
type EvidenceInput struct {
	ID          string
	CaseCode    string
	FileName    string
	ContentType string
	Content     []byte
	CapturedAt  time.Time
	Latitude    *float64
	Longitude   *float64
}

// RegistrationInput upserts one already-uploaded blob into the registry.
type RegistrationInput struct {
	CaseCode   string
	RemoteRef  string
	Checksum   string
	Size       int64
	CapturedBy string
	CapturedAt time.Time
	Latitude   *float64
	Longitude  *float64
}

// ItemFailure names one failed batch element.
type ItemFailure struct {
	ID     string
	Reason string
}

// ItemWarning marks an element that succeeded with a caveat the device needs
// to know about.
type ItemWarning struct {
	ID     string
	Reason string
}

// GroupOutcome is the per-array result of a batch.
type GroupOutcome struct {
	Synced   int
	Failures []ItemFailure
	Warnings []ItemWarning
}

// BatchOutcome is the full, inherently partial, result of one Reconcile call.
type BatchOutcome struct {
	Forms     GroupOutcome
	Evidences GroupOutcome
	Timestamp time.Time
}

// SyncService reconciles device batches against the registry database and
// forwards evidence content to the Blob Store.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       BlobForwarder
	logger      logging.Logger
}

// NewSyncService builds a SyncService. blobs may be nil, in which case
// evidence content is not forwarded and rows carry an empty remote_ref.
func NewSyncService(db *sql.DB, rm repomanager.RepositoryManager, blobs BlobForwarder, logger logging.Logger) *SyncService {
	return &SyncService{db: db, repomanager: rm, blobs: blobs, logger: logger}
}

// Reconcile applies a device batch item by item. A bad item never poisons
// the rest of the batch: each element commits or fails on its own, and the
// outcome reports both sides. The only whole-batch errors are a missing
// perito id and context cancellation.
func (s *SyncService) Reconcile(ctx context.Context, peritoID, token string, forms []FormInput, evidences []EvidenceInput) (*BatchOutcome, error) {
	if peritoID == "" {
		return nil, fmt.Errorf("%w: peritoId is required", common.ErrValidation)
	}

	outcome := &BatchOutcome{Timestamp: time.Now().UTC()}

	for _, form := range forms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.applyForm(ctx, peritoID, form); err != nil {
			outcome.Forms.Failures = append(outcome.Forms.Failures, ItemFailure{ID: form.ID, Reason: failureReason(err)})
			s.logger.Warn(ctx, "form rejected", "id", form.ID, "case", form.CaseCode, "error", err)
			continue
		}
		outcome.Forms.Synced++
	}

	for _, evidence := range evidences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		warning, err := s.applyEvidence(ctx, peritoID, token, evidence)
		if err != nil {
			outcome.Evidences.Failures = append(outcome.Evidences.Failures, ItemFailure{ID: evidence.ID, Reason: failureReason(err)})
			s.logger.Warn(ctx, "evidence rejected", "id", evidence.ID, "case", evidence.CaseCode, "error", err)
			continue
		}
		outcome.Evidences.Synced++
		if warning != "" {
			outcome.Evidences.Warnings = append(outcome.Evidences.Warnings, ItemWarning{ID: evidence.ID, Reason: warning})
		}
	}

	s.logger.Info(ctx, "batch reconciled", "perito", peritoID,
		"forms_synced", outcome.Forms.Synced, "forms_failed", len(outcome.Forms.Failures),
		"evidences_synced", outcome.Evidences.Synced, "evidences_failed", len(outcome.Evidences.Failures))

	return outcome, nil
}

func (s *SyncService) applyForm(ctx context.Context, peritoID string, form FormInput) error {
	if form.ID == "" || len(form.Payload) == 0 {
		return fmt.Errorf("%w: form id and payload are required", common.ErrValidation)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		c, err := s.repomanager.Cases(tx).GetByCode(ctx, form.CaseCode)
		if err != nil {
			return err
		}

		return s.repomanager.Forms(tx).Upsert(ctx, &models.FormRecord{
			ID:         form.ID,
			CaseID:     c.ID,
			PeritoID:   peritoID,
			Payload:    form.Payload,
			CapturedAt: form.CapturedAt,
			Latitude:   form.Latitude,
			Longitude:  form.Longitude,
		})
	})
}

// applyEvidence stores one evidence and returns a non-empty warning reason
// when the item succeeded metadata-only.
func (s *SyncService) applyEvidence(ctx context.Context, peritoID, token string, evidence EvidenceInput) (string, error) {
	if evidence.ID == "" || len(evidence.Content) == 0 {
		return "", fmt.Errorf("%w: evidence id and content are required", common.ErrValidation)
	}

	c, err := s.repomanager.Cases(s.db).GetByCode(ctx, evidence.CaseCode)
	if err != nil {
		return "", err
	}

	// Forward the blob before touching the registry. A forwarding failure
	// only costs the remote copy: the metadata row still lands so the photo
	// is not lost, and the warning tells the device the store copy is missing.
	var remoteRef, warning string
	if s.blobs != nil {
		remoteRef, err = s.blobs.Forward(ctx, token, evidence.CaseCode, evidence.FileName, evidence.Content, evidence.ContentType)
		if err != nil {
			s.logger.Warn(ctx, "blob forwarding failed, registering metadata only",
				"id", evidence.ID, "case", evidence.CaseCode, "error", err)
			remoteRef = ""
			warning = ReasonBlobNotForwarded
		}
	}

	return warning, s.repomanager.Evidences(s.db).Upsert(ctx, &models.EvidenceRecord{
		ID:          evidence.ID,
		CaseID:      c.ID,
		PeritoID:    peritoID,
		FileName:    evidence.FileName,
		ContentType: evidence.ContentType,
		Size:        int64(len(evidence.Content)),
		Checksum:    common.Checksum(evidence.Content),
		RemoteRef:   remoteRef,
		CapturedAt:  evidence.CapturedAt,
		Latitude:    evidence.Latitude,
		Longitude:   evidence.Longitude,
	})
}

// RegisterEvidence upserts the registry row for a blob the device uploaded
// itself. The remote reference is the registry key to the Blob Store copy.
func (s *SyncService) RegisterEvidence(ctx context.Context, in RegistrationInput) error {
	if in.RemoteRef == "" {
		return fmt.Errorf("%w: remoteRef is required", common.ErrValidation)
	}

	c, err := s.repomanager.Cases(s.db).GetByCode(ctx, in.CaseCode)
	if err != nil {
		return err
	}

	return s.repomanager.Evidences(s.db).Upsert(ctx, &models.EvidenceRecord{
		ID:         in.RemoteRef,
		CaseID:     c.ID,
		PeritoID:   in.CapturedBy,
		FileName:   in.RemoteRef,
		Size:       in.Size,
		Checksum:   in.Checksum,
		RemoteRef:  in.RemoteRef,
		CapturedAt: in.CapturedAt,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
	})
}

// failureReason keeps wire-visible reasons stable and free of internals.
func failureReason(err error) string {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return ReasonCaseNotFound
	case errors.Is(err, common.ErrValidation):
		return err.Error()
	default:
		return "error interno"
	}
}
