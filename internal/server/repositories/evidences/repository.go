package evidences

import (
	"context"

	"github.com/avaluotech/fieldsync/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, e *models.EvidenceRecord) error
	ListByCase(ctx context.Context, caseID string) ([]*models.EvidenceRecord, error)
}
